//go:build !tagfastjson

// Package jsonx switches the JSON codec used for KV values and HTTP payloads.
// Build with -tags tagfastjson to swap in sonic.
package jsonx

import "encoding/json"

func Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
