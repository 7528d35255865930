package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AsInt64 converts a stored scalar into an int64. Floats are floored and
// clamped; numeric strings written by older clients are parsed.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsBool reports whether a stored value is truthy.
func AsBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	if n, ok := AsInt64(v); ok {
		return n != 0
	}
	return false
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	f = math.Floor(f)
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}

// OwnedFrom reads an inventory subtree into item counts. Non-numeric or
// non-positive entries are skipped.
func OwnedFrom(v any) map[string]int64 {
	m, _ := v.(map[string]any)
	out := make(map[string]int64, len(m))
	for id, raw := range m {
		if n, ok := AsInt64(raw); ok && n > 0 {
			out[id] = n
		}
	}
	return out
}

// UpgradesFrom reads an upgrade subtree into the set of owned upgrades.
func UpgradesFrom(v any) map[string]bool {
	m, _ := v.(map[string]any)
	out := make(map[string]bool, len(m))
	for id, raw := range m {
		if AsBool(raw) {
			out[id] = true
		}
	}
	return out
}

// AddSat adds two int64 values, clamping at the int64 bounds.
func AddSat(a, b int64) int64 {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return s
}
