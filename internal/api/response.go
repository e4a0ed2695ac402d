package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const internalErrorMessage = "Internal Server Error"

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// writeProblem is the single place where errors become HTTP responses.
// Classified errors are returned with their own message; anything else is
// logged and answered with a generic 500.
func writeProblem(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	}

	if ae, ok := apperr.As(err); ok && status < http.StatusInternalServerError {
		logger.Warn("request rejected", fields...)
		writeJSON(w, status, ae.Body())
		return
	}

	// Server-side failures keep their status but never leak their message.
	logger.Error("request failed", fields...)
	writeJSON(w, status, map[string]any{"message": internalErrorMessage})
}
