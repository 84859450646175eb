// Package encoding provides the byte-stable JSON form used for payload hashing.
package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON re-encodes a JSON document with sorted object keys and no
// insignificant whitespace. Numbers keep their literal form.
func CanonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("decode json: trailing data")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return encoded, nil
}

// MustCanonicalJSON marshals v and canonicalizes it, panicking on failure.
// It is meant for payload structs built in code, where failure is a programming error.
func MustCanonicalJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal payload: %v", err))
	}
	canonical, err := CanonicalJSON(raw)
	if err != nil {
		panic(fmt.Sprintf("canonical payload: %v", err))
	}
	return canonical
}
