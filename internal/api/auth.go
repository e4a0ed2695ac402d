package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
)

// Check is a capability check run before a protected handler. A non-nil error
// rejects the request; unclassified errors are reported as NotAuthorized.
type Check func(r *http.Request) error

// BearerToken accepts requests carrying an HS256 JWT signed with secret in
// the Authorization header.
func BearerToken(secret []byte) Check {
	return func(r *http.Request) error {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return apperr.NotAuthorized("missing bearer token")
		}

		token, err := jwt.Parse(strings.TrimSpace(raw), func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return apperr.NotAuthorized("invalid bearer token")
		}
		return nil
	}
}

func authorizeMiddleware(logger *zap.Logger, checks []Check, next http.Handler) http.Handler {
	if len(checks) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r); err != nil {
				if _, ok := apperr.As(err); !ok {
					err = apperr.Wrap(apperr.KindNotAuthorized, err, "request not authorized")
				}
				writeProblem(logger, w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
