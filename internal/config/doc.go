// Package config resolves runtime configuration from multiple sources (CLI
// flags, environment variables, a YAML file, defaults) with precedence:
// CLI flags > Environment variables > YAML config > Defaults. The result is
// one immutable Snapshot built at startup and shared read-only by every
// request handler.
package config
