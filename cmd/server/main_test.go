package main

import (
	"testing"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
	"github.com/eugenenazirov/k8s-webapp/internal/config"
)

func TestParseArgsKeepsOnlyExplicitFlags(t *testing.T) {
	args, err := parseArgs([]string{"--port", "8080", "--no-debug", "--db-uri", "mongodb://db:27017/app"})
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}

	if args["port"] != 8080 {
		t.Fatalf("expected port 8080, got %v", args["port"])
	}
	if args["debug"] != false {
		t.Fatalf("expected explicit --no-debug to be kept, got %v", args["debug"])
	}
	if args["db-uri"] != "mongodb://db:27017/app" {
		t.Fatalf("unexpected db-uri %v", args["db-uri"])
	}
	for _, unset := range []string{"tls", "secret-key", "rate-limit-rps", "config"} {
		if _, ok := args[unset]; ok {
			t.Fatalf("expected unset flag %s to be absent", unset)
		}
	}
}

func TestParseArgsRejectsUnknownFlags(t *testing.T) {
	if _, err := parseArgs([]string{"--bogus"}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
	if _, err := parseArgs([]string{"--port", "eighty"}); err == nil {
		t.Fatalf("expected error for non-integer port")
	}
}

func TestExplicitFlagsOverrideEnvironment(t *testing.T) {
	args, err := parseArgs([]string{"--port", "9000"})
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}

	env := map[string]string{"FLASK_PORT": "7000", "MONGO_DB_URI": "memory://"}
	cfg, err := config.Load(args,
		config.WithLookupEnv(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}),
		config.WithBuildSettingsDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("expected CLI port to win, got %d", cfg.Port)
	}
}

func TestMissingDBURIFailsBeforeStartup(t *testing.T) {
	args, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}

	_, err = config.Load(args,
		config.WithLookupEnv(func(string) (string, bool) { return "", false }),
		config.WithBuildSettingsDir(t.TempDir()),
	)
	if !apperr.IsKind(err, apperr.KindMissingConfig) {
		t.Fatalf("expected MissingConfig, got %v", err)
	}
}
