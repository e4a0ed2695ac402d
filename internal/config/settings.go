package config

import (
	"strings"

	"github.com/google/uuid"
)

// Snapshot keys.
const (
	KeyDebug               = "DEBUG"
	KeyPort                = "PORT"
	KeyTesting             = "TESTING"
	KeySecretKey           = "SECRET_KEY"
	KeyVersion             = "VERSION"
	KeyRunningAs           = "RUNNING_AS"
	KeyWorkdir             = "WORKDIR"
	KeyURLPrefix           = "URL_PREFIX"
	KeyURLV1               = "URL_V1"
	KeyDBURI               = "DB_URI"
	KeyDBCollection        = "DB_COLLECTION"
	KeyTLS                 = "TLS"
	KeyTLSCAFile           = "TLS_CA_FILE"
	KeyTLSAllowInvalid     = "TLS_ALLOW_INVALID"
	KeyOPAServer           = "OPA_SERVER"
	KeySessionCookieDomain = "SESSION_COOKIE_DOMAIN"
	KeySessionCookiePath   = "SESSION_COOKIE_PATH"
	KeyAuthRequired        = "AUTH_REQUIRED"
	KeyReadyTimeoutMS      = "READY_TIMEOUT_MS"
	KeyRateLimitRPS        = "RATE_LIMIT_RPS"
	KeyRateLimitBurst      = "RATE_LIMIT_BURST"
	KeyRequestLogging      = "REQUEST_LOGGING"
	KeyLogFile             = "LOG_FILE"
)

const (
	defaultPort         = 5050
	defaultWorkdir      = "/tmp"
	defaultCollection   = "simple-data"
	defaultURLV1        = "/api/v1"
	defaultOPAServer    = "localhost:8181"
	defaultReadyTimeout = 250
	defaultRateLimitRPS = 25
	defaultRateBurst    = 50
	secretKeyLength     = 12
)

// Bootstrap settings locate the other sources; they never come from the file.
var (
	configFileSetting    = Setting{Key: "CONFIG_FILE", Env: "CONFIG_FILE", Flag: "config", Default: ""}
	requireConfigSetting = Setting{Key: "REQUIRE_CONFIG", Env: "REQUIRE_CONFIG", Flag: "require-config", Default: false, Type: Bool}
	envFileSetting       = Setting{Key: "ENV_FILE", Env: "ENV_FILE", Flag: "env-file", Default: ""}
)

// Settings returns the table of known keys in reporting order. The secret key
// default is random per call.
func Settings() []Setting {
	return []Setting{
		{Key: KeyDebug, Env: "FLASK_DEBUG", Flag: "debug", File: "debug", Default: false, Type: Bool},
		{Key: KeyPort, Env: "FLASK_PORT", Flag: "port", File: "server.port", FileAliases: []string{"port"}, Default: defaultPort, Type: Int},
		{Key: KeyTesting, Env: "FLASK_TESTING", File: "testing", Default: false, Type: Bool},
		{Key: KeySecretKey, Env: "FLASK_SECRET_KEY", Flag: "secret-key", File: "secret-key", Default: randomKey(), Sensitive: true},
		{Key: KeyRunningAs, Env: "USER", Default: "unknown", Sensitive: true},
		{Key: KeyWorkdir, Env: "SERVER_WORKDIR", Flag: "workdir", File: "server.workdir", Default: defaultWorkdir},
		{Key: KeyURLPrefix, Env: "URL_PREFIX", File: "server.url_prefix", Default: ""},
		{Key: KeyURLV1, Env: "URL_V1", File: "server.url_v1", Default: defaultURLV1},
		{Key: KeyDBURI, Env: "MONGO_DB_URI", Flag: "db-uri", File: "db.uri", Default: "", Required: true},
		{Key: KeyDBCollection, Env: "DB_COLLECTION", File: "db.collection", Default: defaultCollection},
		{Key: KeyTLS, Env: "MONGO_TLS", Flag: "tls", File: "db.tls", Default: false, Type: Bool},
		{Key: KeyTLSCAFile, Env: "MONGO_TLS_CA_FILE", Flag: "tls-ca-file", File: "db.tls-ca-file", Default: ""},
		{Key: KeyTLSAllowInvalid, Env: "MONGO_TLS_ALLOW_INVALID", Flag: "tls-allow-invalid", File: "db.tls-allow-invalid", Default: false, Type: Bool},
		{Key: KeyOPAServer, Env: "OPA_SERVER", Flag: "opa-server", File: "opa.server", Default: defaultOPAServer},
		{Key: KeySessionCookieDomain, Env: "SESSION_COOKIE_DOMAIN", File: "session.cookie_domain", Default: "", Sensitive: true},
		{Key: KeySessionCookiePath, Env: "SESSION_COOKIE_PATH", File: "session.cookie_path", Default: "/", Sensitive: true},
		{Key: KeyAuthRequired, Env: "AUTH_REQUIRED", Flag: "auth-required", File: "auth.required", Default: false, Type: Bool},
		{Key: KeyReadyTimeoutMS, Env: "READY_TIMEOUT_MS", File: "db.ready_timeout_ms", Default: defaultReadyTimeout, Type: Int},
		{Key: KeyRateLimitRPS, Env: "RATE_LIMIT_RPS", Flag: "rate-limit-rps", File: "rate_limit.rps", Default: defaultRateLimitRPS, Type: Int},
		{Key: KeyRateLimitBurst, Env: "RATE_LIMIT_BURST", Flag: "rate-limit-burst", File: "rate_limit.burst", Default: defaultRateBurst, Type: Int},
		{Key: KeyRequestLogging, Env: "REQUEST_LOGGING", File: "server.request_logging", Default: true, Type: Bool},
		{Key: KeyLogFile, Env: "LOG_FILE", Flag: "log-file", File: "log.file", Default: ""},
	}
}

// SensitiveKeys lists the keys /config masks outside debug mode.
func SensitiveKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range Settings() {
		if s.Sensitive {
			out[s.Key] = struct{}{}
		}
	}
	return out
}

func randomKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:secretKeyLength]
}
