package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/automaton/internal/ir"
)

// marshalData converts an attribute map to JSON TEXT for storage.
// Keys are sorted so equal maps are stored byte-identically.
func marshalData(data ir.IRObject) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := ir.MarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}

// unmarshalData parses JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps integers integral and other
// numbers as decimals.
func unmarshalData(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}

// marshalJSON stores schema parts (attributes, rules) as JSON TEXT.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
