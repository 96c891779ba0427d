// internal/rules/operators.go
package rules

import (
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Compare never fails: a type mismatch is a non-match, not an error.
 *
 *   - int and float64 mix freely and compare by value
 *   - string vs string supports all six operators (byte-wise ordering)
 *   - bool vs bool supports == and != only
 *   - anything else: == is false, != is true, ordering is false
 *
 * Booleans are not numbers: `flag == 1` with flag=true is false.
 */

// Compare applies op to value (context side) and target (literal side).
func Compare(op types.Operator, value, target any) bool {
	if a, b, ok := asNumbers(value, target); ok {
		return compareOrdered(op, a, b)
	}

	switch v := value.(type) {
	case string:
		if t, ok := target.(string); ok {
			return compareOrdered(op, v, t)
		}
	case bool:
		if t, ok := target.(bool); ok {
			switch op {
			case types.OpEq:
				return v == t
			case types.OpNeq:
				return v != t
			default:
				return false
			}
		}
	}

	return op == types.OpNeq
}

func compareOrdered[T float64 | string](op types.Operator, a, b T) bool {
	switch op {
	case types.OpEq:
		return a == b
	case types.OpNeq:
		return a != b
	case types.OpLt:
		return a < b
	case types.OpLte:
		return a <= b
	case types.OpGt:
		return a > b
	case types.OpGte:
		return a >= b
	default:
		return false
	}
}

// asNumbers converts both values to float64 when both are numeric.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}
