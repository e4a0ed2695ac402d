package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/k8s-webapp/internal/application"
	"github.com/eugenenazirov/k8s-webapp/internal/config"
	"github.com/eugenenazirov/k8s-webapp/internal/logging"
)

const shutdownGracePeriod = 10 * time.Second

var signalNotify = signal.Notify

func main() {
	args, err := parseArgs(os.Args[1:])
	kingpin.FatalIfError(err, "invalid arguments")

	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Debug: cfg.Debug, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.ConfigFile != "" && !cfg.ConfigFileFound {
		logger.Warn("config file not found, continuing with other sources", zap.String("path", cfg.ConfigFile))
	}
	logger.Info("configuration loaded",
		zap.String("version", cfg.Version),
		zap.Int("port", cfg.Port),
		zap.Bool("debug", cfg.Debug),
		zap.Bool("auth", cfg.AuthEnabled()),
		zap.String("collection", cfg.DBCollection),
	)

	app, err := application.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), app, shutdownGracePeriod, logger)
}

// parseArgs parses argv and returns only the flags the user set, so that
// unset flags fall through to the environment, the file, and the defaults.
func parseArgs(argv []string) (config.Args, error) {
	fs := &flagSet{
		app:  kingpin.New("k8s-webapp", "Cloud-native demo web service backed by MongoDB and OPA"),
		args: config.Args{},
	}

	bindFlag(fs, "port", "HTTP port exposed by the service", (*kingpin.FlagClause).Int)
	bindFlag(fs, "debug", "Enable debug mode (disables authentication and masking)", (*kingpin.FlagClause).Bool)
	bindFlag(fs, "secret-key", "Secret used to sign bearer tokens", (*kingpin.FlagClause).String)
	bindFlag(fs, "workdir", "Absolute server working directory", (*kingpin.FlagClause).String)
	bindFlag(fs, "db-uri", "MongoDB connection URI (memory:// for an in-process store)", (*kingpin.FlagClause).String)
	bindFlag(fs, "tls", "Connect to MongoDB over TLS", (*kingpin.FlagClause).Bool)
	bindFlag(fs, "tls-ca-file", "CA bundle for the MongoDB TLS connection", (*kingpin.FlagClause).String)
	bindFlag(fs, "tls-allow-invalid", "Accept invalid MongoDB server certificates", (*kingpin.FlagClause).Bool)
	bindFlag(fs, "opa-server", "OPA server host:port", (*kingpin.FlagClause).String)
	bindFlag(fs, "auth-required", "Require a bearer token on API routes", (*kingpin.FlagClause).Bool)
	bindFlag(fs, "rate-limit-rps", "Requests per second allowed on API routes (set 0 to disable)", (*kingpin.FlagClause).Int)
	bindFlag(fs, "rate-limit-burst", "Burst capacity for the rate limiter (set 0 to disable)", (*kingpin.FlagClause).Int)
	bindFlag(fs, "log-file", "Also write logs to this file, rotated", (*kingpin.FlagClause).String)
	bindFlag(fs, "config", "Path to YAML configuration file", (*kingpin.FlagClause).String)
	bindFlag(fs, "require-config", "Fail when the configuration file is missing", (*kingpin.FlagClause).Bool)
	bindFlag(fs, "env-file", "Path to a dotenv file layered below the environment", (*kingpin.FlagClause).String)

	if _, err := fs.app.Parse(argv); err != nil {
		return nil, err
	}
	for _, bind := range fs.binds {
		bind()
	}
	return fs.args, nil
}

type flagSet struct {
	app   *kingpin.Application
	args  config.Args
	binds []func()
}

func bindFlag[T any](fs *flagSet, name, help string, kind func(*kingpin.FlagClause) *T) {
	var set bool
	value := kind(fs.app.Flag(name, help).IsSetByUser(&set))
	fs.binds = append(fs.binds, func() {
		if set {
			fs.args[name] = *value
		}
	})
}

// releaser frees what the server depended on once no request can reach it.
type releaser interface {
	Close(ctx context.Context) error
}

// shutdown blocks until SIGINT or SIGTERM, drains server, and only then
// closes res. Each stage gets its own timeout.
func shutdown(server *http.Server, res releaser, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.Stringer("signal", sig))

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), timeout)
	defer cancelDrain()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}

	releaseCtx, cancelRelease := context.WithTimeout(context.Background(), timeout)
	defer cancelRelease()
	if err := res.Close(releaseCtx); err != nil {
		logger.Warn("failed to release resources", zap.Error(err))
		return
	}
	logger.Info("resources released")
}
