package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
	"github.com/eugenenazirov/k8s-webapp/internal/config"
	"github.com/eugenenazirov/k8s-webapp/internal/metrics"
	"github.com/eugenenazirov/k8s-webapp/internal/policy"
	"github.com/eugenenazirov/k8s-webapp/internal/store"
)

const (
	healthBody          = `{"status":"UP"}`
	maskValue           = "*******"
	trackingCookie      = "y-track"
	trackingCookiePath  = "/config"
	trackingPrefix      = "config-tracker-"
	entityPath          = "/api/v1/entity"
	defaultReadyTimeout = 250 * time.Millisecond
	maxBodyBytes        = 1 << 20
	forcedFailureCode   = "666"
)

// PolicyEvaluator evaluates a named policy against an input document.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, policy string, input json.RawMessage) (policy.Decision, error)
}

// Handler wires the configuration snapshot, the document store, and the policy
// client into HTTP handlers. It keeps no per-request state.
type Handler struct {
	snap      config.Snapshot
	sensitive map[string]struct{}
	store     store.Store
	policy    PolicyEvaluator
	logger    *zap.Logger
	metrics   *metrics.Metrics

	readyTimeout time.Duration
	randomN      func(n int) int
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithMetrics records handler-level instruments.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithRandom overrides the random source for the tracking cookie, primarily
// for tests. randomN must return a value in [0, n).
func WithRandom(randomN func(n int) int) HandlerOption {
	return func(h *Handler) {
		h.randomN = randomN
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(snap config.Snapshot, st store.Store, pol PolicyEvaluator, logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		snap:         snap,
		sensitive:    config.SensitiveKeys(),
		store:        st,
		policy:       pol,
		logger:       logger,
		readyTimeout: snap.ReadyTimeout,
		randomN:      rand.Intn,
	}
	if h.readyTimeout <= 0 {
		h.readyTimeout = defaultReadyTimeout
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// handlerFunc is a handler whose failures are translated by writeProblem.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeProblem(h.logger, w, r, err)
		}
	}
}

// handleHealth is the liveness probe: no I/O, no encoding.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, healthBody)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	type outcome struct {
		status store.Status
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := h.store.Status(ctx)
		done <- outcome{status: s, err: err}
	}()

	// The deadline holds even if the store ignores ctx.
	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = fmt.Errorf("document store did not answer within %s: %w", h.readyTimeout, ctx.Err())
	}

	if res.err != nil {
		h.logger.Warn("readiness check failed", zap.Error(res.err))
		h.countReadiness(statusDown)
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: statusDown, Error: res.err.Error()})
		return nil
	}

	status := statusUp
	if !res.status.OK {
		status = statusWarn
	}
	h.countReadiness(status)
	writeJSON(w, http.StatusOK, readyResponse{
		Status: status,
		Store: &storeInfo{
			Status:  status,
			OK:      res.status.OK,
			Debug:   res.status.Debug,
			Version: res.status.Version,
		},
	})
	return nil
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	body := map[string]any{
		"health":  statusUp,
		"cookies": cookies,
	}
	for _, v := range h.snap.Values() {
		value := v.Value
		if _, ok := h.sensitive[v.Key]; ok && !h.snap.Debug {
			value = maskValue
		}
		body[strings.ToLower(v.Key)] = value
	}

	tracker := h.nextTracker(cookies[trackingCookie])
	h.logger.Info("setting tracking cookie", zap.String("value", tracker))
	http.SetCookie(w, &http.Cookie{
		Name:  trackingCookie,
		Value: tracker,
		Path:  trackingCookiePath,
	})
	writeJSON(w, http.StatusOK, body)
}

// nextTracker returns config-tracker-NNNN, never equal to previous.
func (h *Handler) nextTracker(previous string) string {
	for {
		v := trackingPrefix + strconv.Itoa(1000+h.randomN(9000))
		if v != previous {
			return v
		}
	}
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, store.Expose(doc))
	return nil
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) error {
	docs, err := h.store.List(r.Context())
	if err != nil {
		return err
	}
	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, store.Expose(doc))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) error {
	var doc store.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&doc); err != nil || doc == nil {
		return apperr.Response(http.StatusBadRequest, "request body must be a JSON object", nil)
	}
	// The store assigns identifiers.
	delete(doc, store.IDField)

	id, err := h.store.Insert(r.Context(), doc)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.EntitiesCreated.Inc()
	}

	w.Header().Set("Location", entityPath+"/"+id)
	writeJSON(w, http.StatusCreated, createdResponse{Msg: "inserted", ID: id})
	return nil
}

func (h *Handler) handlePolicy(w http.ResponseWriter, r *http.Request) error {
	policyName := strings.Trim(chi.URLParam(r, "*"), "/")
	if policyName == "" {
		return apperr.NotFound("no policy named in %s", r.URL.Path)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Response(http.StatusBadRequest, "unable to read request body", nil)
	}
	if len(body) > 0 && !json.Valid(body) {
		return apperr.Response(http.StatusBadRequest, "request body must be valid JSON", nil)
	}

	decision, err := h.policy.Evaluate(r.Context(), policyName, body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, decision)
	return nil
}

func (h *Handler) handleStatusCode(w http.ResponseWriter, r *http.Request) error {
	code := chi.URLParam(r, "code")
	h.logger.Info("returning status code", zap.String("code", code))

	if code == forcedFailureCode {
		return errors.New("forced failure")
	}
	if code == "" || strings.Trim(code, "0123456789") != "" {
		return apperr.InvalidStatusCode("%s is not a valid integer status code", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return apperr.InvalidStatusCode("%s is not a valid integer status code", code)
	}
	if n < 200 || n > 599 {
		return apperr.InvalidStatusCode("%d is not a supported status code", n)
	}
	if n == http.StatusNoContent || n == http.StatusNotModified {
		w.WriteHeader(n)
		return nil
	}
	writeJSON(w, n, statusCodeResponse{Status: strconv.Itoa(n)})
	return nil
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) error {
	if h.snap.Workdir == "" || !filepath.IsAbs(h.snap.Workdir) {
		return apperr.Response(0, fmt.Sprintf("%s is not an absolute path", h.snap.Workdir), nil)
	}
	writeJSON(w, http.StatusOK, indexResponse{
		Workdir:   h.snap.Workdir,
		Version:   h.snap.Version,
		V1URL:     h.snap.URLV1,
		URLPrefix: h.snap.URLPrefix,
	})
	return nil
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	err := apperr.NotFound("The path `%s` was not found on this server [%s]", r.URL.Path, fullURL(r))
	writeProblem(h.logger, w, r, err)
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	err := apperr.Response(http.StatusMethodNotAllowed, fmt.Sprintf("method %s is not allowed on %s", r.Method, r.URL.Path), nil)
	writeProblem(h.logger, w, r, err)
}

func (h *Handler) countReadiness(status string) {
	if h.metrics != nil {
		h.metrics.ReadinessChecks.WithLabelValues(status).Inc()
	}
}

func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

const (
	statusUp   = "UP"
	statusWarn = "WARN"
	statusDown = "DOWN"
)

type readyResponse struct {
	Status string     `json:"status"`
	Store  *storeInfo `json:"store,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type storeInfo struct {
	Status  string `json:"status"`
	OK      bool   `json:"ok"`
	Debug   any    `json:"debug"`
	Version string `json:"version"`
}

type createdResponse struct {
	Msg string `json:"msg"`
	ID  string `json:"id"`
}

type statusCodeResponse struct {
	Status string `json:"status"`
}

type indexResponse struct {
	Workdir   string `json:"workdir"`
	Version   string `json:"version"`
	V1URL     string `json:"v1_url"`
	URLPrefix string `json:"url_prefix"`
}
