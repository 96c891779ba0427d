// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Literal and input coercion.
 *
 * Condition right-hand sides are typed by spelling, in priority order:
 *   1. "true" / "false" (any case)  -> bool
 *   2. decimal number               -> float64, narrowed to int when whole
 *   3. anything else                -> the trimmed text as a string
 *
 * Only plain decimal spellings count as numbers. "inf", "NaN" and hex floats
 * stay strings so a rule like `grade is nan` compares text.
 *
 * Inputs get the same boolean treatment when the context is seeded: form
 * fields often arrive as "true"/"false" strings. Other values pass through
 * unchanged, except that integer-like numeric types from decoders (int64,
 * uint, json.Number, ...) are normalized to int and float32 to float64 so
 * the comparison and expression layers only see int, float64, bool, string.
 */

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// CoerceLiteral types a condition right-hand side by its spelling.
func CoerceLiteral(text string) any {
	text = strings.TrimSpace(text)
	if b, ok := parseBoolSpelling(text); ok {
		return b
	}
	if decimalLiteral.MatchString(text) {
		f, err := strconv.ParseFloat(text, 64)
		if err == nil {
			return types.NarrowNumber(f)
		}
	}
	return text
}

// SeedContext builds a fresh evaluation context from caller inputs.
func SeedContext(inputs types.Inputs) map[string]any {
	ctx := make(map[string]any, len(inputs))
	for name, v := range inputs {
		ctx[name] = normalizeInput(v)
	}
	return ctx
}

func normalizeInput(v any) any {
	switch val := v.(type) {
	case string:
		if b, ok := parseBoolSpelling(val); ok {
			return b
		}
		return val
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case int64:
		return int(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case uint64:
		return int(val)
	case uint:
		return int(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

func parseBoolSpelling(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// toFloat64 returns the numeric value of an int or float64.
// Booleans are not numbers here.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
