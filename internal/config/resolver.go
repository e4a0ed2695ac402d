package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
)

// Type is the value type a Setting is coerced to.
type Type int

const (
	String Type = iota
	Int
	Bool
)

// Source identifies where a resolved value came from.
type Source string

const (
	SourceCLI     Source = "cli"
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// Args holds the command-line flags the user set explicitly, keyed by flag
// name. A nil value is treated the same as an absent flag.
type Args map[string]any

// Setting describes one configuration key and where to look for it.
type Setting struct {
	// Key is the snapshot key reported by /config.
	Key string
	// Env is the environment variable name. It doubles as the CLI lookup
	// name when Flag is empty.
	Env string
	// Flag is the CLI attribute name when it differs from Env.
	Flag string
	// File is the dotted path inside the YAML file.
	File string
	// FileAliases are further YAML paths tried, in order, after File.
	FileAliases []string
	Default     any
	Type        Type
	Required    bool
	Sensitive   bool
}

func (s Setting) flagName() string {
	if s.Flag != "" {
		return s.Flag
	}
	return s.Env
}

func (s Setting) filePaths() []string {
	paths := make([]string, 0, 1+len(s.FileAliases))
	if s.File != "" {
		paths = append(paths, s.File)
	}
	return append(paths, s.FileAliases...)
}

// Resolver looks a Setting up in the pre-parsed sources. It never parses argv
// or YAML itself and has no side effects besides reading the environment.
type Resolver struct {
	Args      Args
	File      map[string]any
	LookupEnv func(string) (string, bool)
}

// Resolve returns the raw value for s with precedence
// CLI > environment > file > default, and the source that provided it.
func (r Resolver) Resolve(s Setting) (any, Source) {
	if r.Args != nil {
		if v, ok := r.Args[s.flagName()]; ok && v != nil {
			return v, SourceCLI
		}
	}

	if s.Env != "" {
		lookup := r.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		if v, ok := lookup(s.Env); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), SourceEnv
		}
	}

	if r.File != nil {
		for _, path := range s.filePaths() {
			if v, ok := r.File[path]; ok && v != nil {
				return v, SourceFile
			}
		}
	}

	return s.Default, SourceDefault
}

// ResolveTyped resolves s and coerces the value to the Setting's Type.
func (r Resolver) ResolveTyped(s Setting) (any, Source, error) {
	raw, src := r.Resolve(s)
	v, err := coerce(s, raw)
	if err != nil {
		return nil, src, fmt.Errorf("%s (from %s): %w", s.Key, src, err)
	}
	return v, src, nil
}

func coerce(s Setting, raw any) (any, error) {
	switch s.Type {
	case Bool:
		return ParseBool(raw)
	case Int:
		return parseInt(raw)
	default:
		if raw == nil {
			return "", nil
		}
		if str, ok := raw.(string); ok {
			return str, nil
		}
		return fmt.Sprint(raw), nil
	}
}

func parseInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, apperr.InvalidConfigValue("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, apperr.InvalidConfigValue("%q is not an integer", v)
		}
		return n, nil
	case nil:
		return 0, apperr.InvalidConfigValue("<nil> is not an integer")
	default:
		return 0, apperr.InvalidConfigValue("%v (%T) is not an integer", v, v)
	}
}
