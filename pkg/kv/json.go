package kv

import (
	"fmt"

	"github.com/bastiangx/tagserve/internal/encoding/jsonx"
)

// GetJSON decodes the value stored under key into v.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := jsonx.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(s Store, key string, v any) error {
	raw, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(key, raw)
}

// Bool reads key as a feature flag. Missing keys, read errors, null, false,
// zero and the empty string are all false; anything else is true.
func Bool(s Store, key string) bool {
	var v any
	ok, err := GetJSON(s, key, &v)
	if err != nil || !ok {
		return false
	}
	return truthy(v)
}

// Int reads a numeric flag, returning def when the key is missing or not a number.
func Int(s Store, key string, def int) int {
	var v any
	ok, err := GetJSON(s, key, &v)
	if err != nil || !ok {
		return def
	}
	if n, isNum := v.(float64); isNum {
		return int(n)
	}
	return def
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
