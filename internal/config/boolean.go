package config

import (
	"strings"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
)

var (
	trueValues  = map[string]struct{}{"true": {}, "1": {}, "t": {}, "y": {}, "yes": {}}
	falseValues = map[string]struct{}{"false": {}, "0": {}, "f": {}, "n": {}, "no": {}}
)

// ParseBool converts a loosely-typed value into a strict boolean.
// Booleans pass through, integers use != 0, and strings must match the fixed
// true/false vocabulary case-insensitively. Anything else, nil included, is an
// InvalidConfigValue error.
func ParseBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int8:
		return v != 0, nil
	case int16:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case uint:
		return v != 0, nil
	case uint8:
		return v != 0, nil
	case uint16:
		return v != 0, nil
	case uint32:
		return v != 0, nil
	case uint64:
		return v != 0, nil
	case string:
		lower := strings.ToLower(v)
		if _, ok := trueValues[lower]; ok {
			return true, nil
		}
		if _, ok := falseValues[lower]; ok {
			return false, nil
		}
		return false, apperr.InvalidConfigValue("could not convert %q to a valid bool value", v)
	case nil:
		return false, apperr.InvalidConfigValue("could not convert <nil> to a valid bool value")
	default:
		return false, apperr.InvalidConfigValue("could not convert %v (%T) to a valid bool value", v, v)
	}
}
