package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/k8s-webapp/internal/api"
	"github.com/eugenenazirov/k8s-webapp/internal/config"
	"github.com/eugenenazirov/k8s-webapp/internal/metrics"
	"github.com/eugenenazirov/k8s-webapp/internal/policy"
	"github.com/eugenenazirov/k8s-webapp/internal/store"
)

// MemoryURIScheme selects the in-process store instead of MongoDB.
const MemoryURIScheme = "memory://"

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	staticDirName     = "static"
	faviconName       = "favicon.png"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	store   store.Store
	metrics *metrics.Metrics
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(ctx context.Context, cfg config.Snapshot, logger *zap.Logger) (*App, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	m := metrics.New()
	handler := api.NewHandler(cfg, st, policy.New(policy.DefaultConfig(cfg.OPAServer)), logger,
		api.WithMetrics(m),
	)

	opts := []api.RouterOption{
		api.WithLogging(cfg.RequestLogging),
		api.WithRateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}
	if dir := resolveStaticDir(cfg.Workdir); dir != "" {
		opts = append(opts, api.WithStaticDir(dir))
	}
	if cfg.AuthEnabled() {
		logger.Info("bearer token authentication enabled")
		opts = append(opts, api.WithChecks(api.BearerToken([]byte(cfg.SecretKey))))
	}
	router := api.NewRouter(handler, logger, opts...)

	return &App{
		store:   st,
		metrics: m,
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Snapshot, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases the document store. Call it after the server has shut down.
func (a *App) Close(ctx context.Context) error {
	if err := a.store.Close(ctx); err != nil {
		return fmt.Errorf("close document store: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Snapshot, logger *zap.Logger) (store.Store, error) {
	if strings.HasPrefix(cfg.DBURI, MemoryURIScheme) {
		logger.Warn("using in-memory document store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewMongoStore(ctx, store.MongoOptions{
		URI:                    cfg.DBURI,
		Collection:             cfg.DBCollection,
		TLS:                    cfg.TLS,
		TLSCAFile:              cfg.TLSCAFile,
		TLSAllowInvalid:        cfg.TLSAllowInvalid,
		ServerSelectionTimeout: cfg.ReadyTimeout,
	}, logger)
}

// resolveStaticDir prefers <workdir>/static and falls back to the project's
// static directory. It returns "" when neither holds a favicon.
func resolveStaticDir(workdir string) string {
	if workdir != "" {
		candidate := filepath.Join(workdir, staticDirName)
		if _, err := os.Stat(filepath.Join(candidate, faviconName)); err == nil {
			return candidate
		}
	}
	path, err := resolveProjectPath(filepath.Join(staticDirName, faviconName))
	if err != nil {
		return ""
	}
	return filepath.Dir(path)
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
