// Package config provides configuration loading and parsing for loadengine.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

// blank reports whether a setting was written but left empty. Blank values
// decode to the zero value instead of failing.
func blank(value interface{}) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func trimmed(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func asString(value interface{}) (string, error) {
	return cast.ToStringE(value)
}

func asInt(value interface{}) (int, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToIntE(trimmed(value))
}

func asInt64(value interface{}) (int64, error) {
	if blank(value) {
		return 0, nil
	}
	if v, ok := value.(uint64); ok && v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d overflows int64", v)
	}
	return cast.ToInt64E(trimmed(value))
}

func asFloat64(value interface{}) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	return cast.ToFloat64E(trimmed(value))
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	return cast.ToBoolE(trimmed(value))
}

// asDuration accepts Go duration strings and bare numbers, which count
// seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	}
	secs, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("unsupported duration %v: %w", value, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// asLimitDuration is asDuration that also accepts the unlimited sentinel,
// written as -1 or "unlimited".
func asLimitDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "-1", "unlimited":
			return Unlimited, nil
		}
	case int, int64, float64:
		if n, err := cast.ToFloat64E(v); err == nil && n == Unlimited {
			return Unlimited, nil
		}
	}
	return asDuration(value)
}

// asProperties converts a properties block into a flat map. Nested maps are
// joined with dots, so "header: {X-Trace: 1}" and "header.X-Trace: 1" both
// become the key "header.x-trace".
func asProperties(value interface{}) (map[string]string, error) {
	if _, isMap := value.(map[string]string); !isMap {
		if _, err := toStringKeyMap(value); err != nil {
			return nil, err
		}
	}
	result := map[string]string{}
	if err := flattenProperties(result, "", value); err != nil {
		return nil, err
	}
	return result, nil
}

func flattenProperties(dst map[string]string, prefix string, value interface{}) error {
	if flat, ok := value.(map[string]string); ok {
		for k, v := range flat {
			dst[joinKey(prefix, k)] = v
		}
		return nil
	}
	if nested, err := toStringKeyMap(value); err == nil {
		for k, v := range nested {
			if k == "" {
				return fmt.Errorf("property key cannot be empty")
			}
			if err := flattenProperties(dst, joinKey(prefix, k), v); err != nil {
				return err
			}
		}
		return nil
	}
	str, err := asString(value)
	if err != nil {
		return fmt.Errorf("property %s: %w", prefix, err)
	}
	dst[prefix] = str
	return nil
}

func joinKey(prefix, key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// asStringSlice accepts a list or a single string. A single string is one
// element; it is not split on whitespace.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// toStringKeyMap converts a decoded YAML or JSON object to a map with
// lowercase keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	raw, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}
