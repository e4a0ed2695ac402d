package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
	"github.com/eugenenazirov/k8s-webapp/internal/buildinfo"
)

var validate = validator.New()

// Value is one resolved entry of the snapshot, in reporting order.
type Value struct {
	Key   string
	Value any
}

// Snapshot is the resolved configuration. It is built once by Load and
// handed out by value; nothing mutates it afterwards.
type Snapshot struct {
	Debug               bool
	Port                int `validate:"min=1,max=65535"`
	Testing             bool
	SecretKey           string `validate:"required"`
	Version             string
	RunningAs           string
	Workdir             string
	URLPrefix           string `validate:"omitempty,startswith=/"`
	URLV1               string `validate:"omitempty,startswith=/"`
	DBURI               string `validate:"required"`
	DBCollection        string `validate:"required,excludesall=$"`
	TLS                 bool
	TLSCAFile           string
	TLSAllowInvalid     bool
	OPAServer           string `validate:"required"`
	SessionCookieDomain string
	SessionCookiePath   string
	AuthRequired        bool
	ReadyTimeout        time.Duration `validate:"gt=0"`
	RateLimitRPS        int           `validate:"gte=0"`
	RateLimitBurst      int           `validate:"gte=0"`
	RequestLogging      bool
	LogFile             string

	// ConfigFile is the YAML file that was requested, if any.
	ConfigFile string
	// ConfigFileFound reports whether ConfigFile existed and was applied.
	ConfigFileFound bool

	values []Value
}

// Values returns a copy of every resolved key in reporting order.
func (s Snapshot) Values() []Value {
	out := make([]Value, len(s.values))
	copy(out, s.values)
	return out
}

// AuthEnabled reports whether capability checks guard the API. Debug mode
// disables authentication.
func (s Snapshot) AuthEnabled() bool {
	return s.AuthRequired && !s.Debug
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	lookupEnv   func(string) (string, bool)
	settingsDir string
}

// WithLookupEnv overrides the environment lookup, primarily for tests.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		o.lookupEnv = lookup
	}
}

// WithBuildSettingsDir sets where build.settings is looked up. Defaults to
// the working directory.
func WithBuildSettingsDir(dir string) Option {
	return func(o *loadOptions) {
		o.settingsDir = dir
	}
}

// Load builds the Snapshot from the explicitly set CLI flags, the
// environment, an optional dotenv file, an optional YAML file, and defaults.
// A required key that no source provides fails with a MissingConfig error.
func Load(args Args, opts ...Option) (Snapshot, error) {
	o := loadOptions{lookupEnv: os.LookupEnv, settingsDir: "."}
	for _, opt := range opts {
		opt(&o)
	}

	boot := Resolver{Args: args, LookupEnv: o.lookupEnv}

	envFile, _, err := boot.ResolveTyped(envFileSetting)
	if err != nil {
		return Snapshot{}, err
	}
	lookup := o.lookupEnv
	if path := envFile.(string); path != "" {
		dotenv, err := readEnvFile(path)
		if err != nil {
			return Snapshot{}, err
		}
		lookup = layeredLookup(o.lookupEnv, dotenv)
		boot.LookupEnv = lookup
	}

	configFile, _, err := boot.ResolveTyped(configFileSetting)
	if err != nil {
		return Snapshot{}, err
	}
	requireConfig, _, err := boot.ResolveTyped(requireConfigSetting)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{ConfigFile: configFile.(string)}
	var fileValues map[string]any
	if snap.ConfigFile != "" {
		found, err := fileExists(snap.ConfigFile)
		if err != nil {
			return Snapshot{}, fmt.Errorf("stat config file: %w", err)
		}
		if found {
			fileValues, err = ReadFile(snap.ConfigFile)
			if err != nil {
				return Snapshot{}, fmt.Errorf("load YAML config: %w", err)
			}
			snap.ConfigFileFound = true
		}
	}
	if requireConfig.(bool) && !snap.ConfigFileFound {
		return Snapshot{}, apperr.MissingConfig(configFileSetting.Key)
	}

	r := Resolver{Args: args, File: fileValues, LookupEnv: lookup}
	resolved := make(map[string]any)
	for _, s := range Settings() {
		v, _, err := r.ResolveTyped(s)
		if err != nil {
			return Snapshot{}, err
		}
		if s.Required && v == "" {
			return Snapshot{}, apperr.MissingConfig(s.Key)
		}
		resolved[s.Key] = v
		snap.values = append(snap.values, Value{Key: s.Key, Value: v})
	}

	snap.Debug = resolved[KeyDebug].(bool)
	snap.Port = resolved[KeyPort].(int)
	snap.Testing = resolved[KeyTesting].(bool)
	snap.SecretKey = resolved[KeySecretKey].(string)
	snap.Version = buildinfo.Lookup(o.settingsDir).String()
	snap.RunningAs = resolved[KeyRunningAs].(string)
	snap.Workdir = resolved[KeyWorkdir].(string)
	snap.URLPrefix = resolved[KeyURLPrefix].(string)
	snap.URLV1 = resolved[KeyURLV1].(string)
	snap.DBURI = resolved[KeyDBURI].(string)
	snap.DBCollection = resolved[KeyDBCollection].(string)
	snap.TLS = resolved[KeyTLS].(bool)
	snap.TLSCAFile = resolved[KeyTLSCAFile].(string)
	snap.TLSAllowInvalid = resolved[KeyTLSAllowInvalid].(bool)
	snap.OPAServer = resolved[KeyOPAServer].(string)
	snap.SessionCookieDomain = resolved[KeySessionCookieDomain].(string)
	snap.SessionCookiePath = resolved[KeySessionCookiePath].(string)
	snap.AuthRequired = resolved[KeyAuthRequired].(bool)
	snap.ReadyTimeout = time.Duration(resolved[KeyReadyTimeoutMS].(int)) * time.Millisecond
	snap.RateLimitRPS = resolved[KeyRateLimitRPS].(int)
	snap.RateLimitBurst = resolved[KeyRateLimitBurst].(int)
	snap.RequestLogging = resolved[KeyRequestLogging].(bool)
	snap.LogFile = resolved[KeyLogFile].(string)

	snap.values = insertAfter(snap.values, KeySecretKey, Value{Key: KeyVersion, Value: snap.Version})

	if err := validate.Struct(snap); err != nil {
		return Snapshot{}, apperr.Wrap(apperr.KindInvalidConfigValue, err, "invalid configuration")
	}

	return snap, nil
}

func insertAfter(values []Value, key string, v Value) []Value {
	out := make([]Value, 0, len(values)+1)
	for _, existing := range values {
		out = append(out, existing)
		if existing.Key == key {
			out = append(out, v)
		}
	}
	return out
}

func layeredLookup(base func(string) (string, bool), dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := base(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}
