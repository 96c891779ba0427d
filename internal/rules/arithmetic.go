// internal/rules/arithmetic.go
package rules

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
)

// Arithmetic operators are patched into calls to the functions below so
// that operands follow scoring-formula semantics instead of expr's:
//   - true and false count as 1 and 0;
//   - int results that would overflow are computed as float64;
//   - / always yields float64 and division by zero is an error;
//   - ** yields float64.
//
// Comparisons, and/or/not and the conditional keep expr's own operators,
// so booleans stay booleans there.

var arithmeticCalls = map[string]string{
	"+":  "_add",
	"-":  "_sub",
	"*":  "_mul",
	"/":  "_div",
	"**": "_pow",
}

var unaryCalls = map[string]string{
	"-": "_neg",
	"+": "_pos",
}

func arithmeticOptions() []expr.Option {
	return []expr.Option{
		expr.Patch(arithmeticPatcher{}),
		expr.Function("_add", binaryArith("+", addInt, func(a, b float64) float64 { return a + b })),
		expr.Function("_sub", binaryArith("-", subInt, func(a, b float64) float64 { return a - b })),
		expr.Function("_mul", binaryArith("*", mulInt, func(a, b float64) float64 { return a * b })),
		expr.Function("_div", divFunc),
		expr.Function("_pow", powOpFunc),
		expr.Function("_neg", negFunc),
		expr.Function("_pos", posFunc),
	}
}

type arithmeticPatcher struct{}

func (arithmeticPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		if fn, ok := arithmeticCalls[n.Operator]; ok {
			patchCall(node, fn, n.Left, n.Right)
		}
	case *ast.UnaryNode:
		if fn, ok := unaryCalls[n.Operator]; ok {
			patchCall(node, fn, n.Node)
		}
	}
}

func patchCall(node *ast.Node, fn string, args ...ast.Node) {
	ast.Patch(node, &ast.CallNode{Callee: &ast.IdentifierNode{Value: fn}, Arguments: args})
}

// arithOperand maps an operand onto int or float64.
func arithOperand(v any) (any, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int, float64:
		return val, true
	default:
		return nil, false
	}
}

func arithOperands(op string, params []any) (any, any, error) {
	if len(params) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2 operands, got %d", op, len(params))
	}
	a, okA := arithOperand(params[0])
	b, okB := arithOperand(params[1])
	if !okA || !okB {
		return nil, nil, fmt.Errorf("unsupported operand types for %s: %T and %T", op, params[0], params[1])
	}
	return a, b, nil
}

func binaryArith(op string, ints func(a, b int) (int, bool), floats func(a, b float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		a, b, err := arithOperands(op, params)
		if err != nil {
			return nil, err
		}
		ia, aInt := a.(int)
		ib, bInt := b.(int)
		if aInt && bInt {
			if r, ok := ints(ia, ib); ok {
				return r, nil
			}
		}
		fa, _ := toFloat64(a)
		fb, _ := toFloat64(b)
		return floats(fa, fb), nil
	}
}

func addInt(a, b int) (int, bool) {
	if (b > 0 && a > math.MaxInt-b) || (b < 0 && a < math.MinInt-b) {
		return 0, false
	}
	return a + b, true
}

func subInt(a, b int) (int, bool) {
	if (b < 0 && a > math.MaxInt+b) || (b > 0 && a < math.MinInt+b) {
		return 0, false
	}
	return a - b, true
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
		return 0, false
	}
	return r, true
}

func divFunc(params ...any) (any, error) {
	a, b, err := arithOperands("/", params)
	if err != nil {
		return nil, err
	}
	fa, _ := toFloat64(a)
	fb, _ := toFloat64(b)
	if fb == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return fa / fb, nil
}

func powOpFunc(params ...any) (any, error) {
	a, b, err := arithOperands("**", params)
	if err != nil {
		return nil, err
	}
	fa, _ := toFloat64(a)
	fb, _ := toFloat64(b)
	if fa == 0 && fb < 0 {
		return nil, fmt.Errorf("zero cannot be raised to a negative power")
	}
	return math.Pow(fa, fb), nil
}

func negFunc(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("-: expected 1 operand, got %d", len(params))
	}
	v, ok := arithOperand(params[0])
	if !ok {
		return nil, fmt.Errorf("bad operand type for unary -: %T", params[0])
	}
	switch n := v.(type) {
	case int:
		if n == math.MinInt {
			return -float64(n), nil
		}
		return -n, nil
	default:
		f, _ := toFloat64(n)
		return -f, nil
	}
}

func posFunc(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("+: expected 1 operand, got %d", len(params))
	}
	v, ok := arithOperand(params[0])
	if !ok {
		return nil, fmt.Errorf("bad operand type for unary +: %T", params[0])
	}
	return v, nil
}
