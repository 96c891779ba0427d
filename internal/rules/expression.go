// internal/rules/expression.go
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Sandboxed arithmetic expression evaluator.
 *
 * Pipeline:
 *   1. Substitute: every whole word naming a context entry is replaced by
 *      its literal rendering ("age" never matches inside "average").
 *   2. Rewrite: `A if C else B` becomes `(C) ? (A) : (B)`, innermost
 *      parenthesized groups first, then the top level (right-associative).
 *   3. Validate: the expr AST is walked against a node allow-list and the
 *      cost budget. Only literals, True/False, unary - + not, arithmetic
 *      + - * / **, comparisons, and/or, sqrt/pow/abs calls and the
 *      conditional are admitted. Any other identifier fails the expression.
 *   4. Compile and run with every expr builtin disabled and an environment
 *      holding only True, False and the three functions. Arithmetic
 *      operators are patched into the functions in arithmetic.go, where
 *      booleans count as 1/0 and overflowing ints become float64.
 *
 * Results are int, float64 or bool. NaN and infinities are reported as
 * failures.
 */

var (
	wordToken = regexp.MustCompile(`[\p{L}\p{N}_]+`)

	allowedUnary  = map[string]bool{"-": true, "+": true, "not": true, "!": true}
	allowedBinary = map[string]bool{
		"+": true, "-": true, "*": true, "/": true, "**": true,
		"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
		"and": true, "or": true, "&&": true, "||": true,
	}
	allowedFunctions = map[string]bool{"sqrt": true, "pow": true, "abs": true}
	allowedConstants = map[string]bool{"True": true, "False": true}

	expressionEnv = map[string]any{"True": true, "False": false}
)

// EvaluateExpression evaluates an arithmetic expression against ctx.
// Errors wrap ErrDisallowedExpression or ErrExpressionFailed.
func EvaluateExpression(expression string, ctx map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: empty expression", types.ErrExpressionFailed)
	}

	source := rewriteTernary(substitute(expression, ctx))
	if err := validateExpression(source); err != nil {
		return nil, err
	}

	options := append([]expr.Option{
		expr.Env(expressionEnv),
		expr.DisableAllBuiltins(),
		expr.Function("sqrt", sqrtFunc),
		expr.Function("pow", powFunc),
		expr.Function("abs", absFunc),
	}, arithmeticOptions()...)
	program, err := expr.Compile(source, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExpressionFailed, err)
	}

	out, err := expr.Run(program, expressionEnv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExpressionFailed, err)
	}

	switch v := out.(type) {
	case int, bool:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: result is not a finite number", types.ErrExpressionFailed)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: result has type %T", types.ErrExpressionFailed, out)
	}
}

// substitute replaces whole-word context names with literal renderings.
// Values with no literal form (nil, maps, NaN) are left as names, which
// the validator then rejects.
func substitute(expression string, ctx map[string]any) string {
	if len(ctx) == 0 {
		return expression
	}
	return wordToken.ReplaceAllStringFunc(expression, func(word string) string {
		v, ok := ctx[word]
		if !ok {
			return word
		}
		if lit, ok := renderLiteral(v); ok {
			return lit
		}
		return word
	})
}

func renderLiteral(v any) (string, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case int:
		if val == math.MinInt {
			// expr has no literal for the most negative int.
			return "(" + strconv.Itoa(math.MinInt+1) + " - 1)", true
		}
		if val < 0 {
			return "(" + strconv.Itoa(val) + ")", true
		}
		return strconv.Itoa(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", false
		}
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.ContainsAny(s, ".") {
			s += ".0"
		}
		if val < 0 {
			s = "(" + s + ")"
		}
		return s, true
	case string:
		return strconv.Quote(val), true
	default:
		return "", false
	}
}

// rewriteTernary converts `A if C else B` into expr's `(C) ? (A) : (B)`.
func rewriteTernary(s string) string {
	s = rewriteGroups(s)

	ifAt := findKeyword(s, "if", 0)
	if ifAt < 0 {
		return s
	}
	elseAt := findKeyword(s, "else", ifAt+2)
	if elseAt < 0 {
		return s
	}

	value := strings.TrimSpace(s[:ifAt])
	cond := strings.TrimSpace(s[ifAt+2 : elseAt])
	alt := rewriteTernary(strings.TrimSpace(s[elseAt+4:]))
	return "(" + cond + ") ? (" + value + ") : (" + alt + ")"
}

// rewriteGroups applies rewriteTernary inside every top-level parenthesized
// group, argument by argument so `pow(a if c else b, 2)` stays a call.
func rewriteGroups(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		switch s[i] {
		case '"', '\'':
			end := skipString(s, i)
			b.WriteString(s[i:end])
			i = end
		case '(':
			end := matchParen(s, i)
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			args := splitArgs(s[i+1 : end])
			for j, arg := range args {
				args[j] = rewriteTernary(arg)
			}
			b.WriteByte('(')
			b.WriteString(strings.Join(args, ", "))
			b.WriteByte(')')
			i = end + 1
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// findKeyword returns the index of the first depth-0 whole-word kw at or
// after from, skipping string literals. Returns -1 when absent.
func findKeyword(s, kw string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' || c == '\'':
			i = skipString(s, i) - 1
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], kw):
			before := i == 0 || !isWordByte(s[i-1])
			after := i+len(kw) == len(s) || !isWordByte(s[i+len(kw)])
			if before && after {
				return i
			}
		}
	}
	return -1
}

// matchParen returns the index of the paren closing the one at open, or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = skipString(s, i) - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitArgs(s string) []string {
	var args []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = skipString(s, i) - 1
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(args, strings.TrimSpace(s[start:]))
}

// skipString returns the index just past the string literal starting at i.
func skipString(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type sandboxVisitor struct {
	cost int
	err  error
}

func (v *sandboxVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.StringNode, *ast.ConditionalNode:
	case *ast.IdentifierNode:
		if !allowedConstants[n.Value] && !allowedFunctions[n.Value] {
			v.err = fmt.Errorf("%w: unknown name %q", types.ErrDisallowedExpression, n.Value)
		}
	case *ast.UnaryNode:
		if !allowedUnary[n.Operator] {
			v.err = fmt.Errorf("%w: operator %q", types.ErrDisallowedExpression, n.Operator)
		}
	case *ast.BinaryNode:
		if !allowedBinary[n.Operator] {
			v.err = fmt.Errorf("%w: operator %q", types.ErrDisallowedExpression, n.Operator)
		}
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || !allowedFunctions[callee.Value] {
			v.err = fmt.Errorf("%w: call to non-allow-listed function", types.ErrDisallowedExpression)
		}
	case *ast.BuiltinNode:
		if !allowedFunctions[n.Name] {
			v.err = fmt.Errorf("%w: function %q", types.ErrDisallowedExpression, n.Name)
		}
	default:
		v.err = fmt.Errorf("%w: %T", types.ErrDisallowedExpression, n)
		return
	}

	v.cost += nodeCost(*node)
	if v.err == nil && v.cost > MaxExpressionCost {
		v.err = fmt.Errorf("%w: expression exceeds cost budget %d", types.ErrDisallowedExpression, MaxExpressionCost)
	}
}

// validateExpression parses source and checks it against the allow-list.
func validateExpression(source string) error {
	tree, err := parser.Parse(source)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrExpressionFailed, err)
	}
	v := &sandboxVisitor{}
	ast.Walk(&tree.Node, v)
	return v.err
}

func numericArg(fn string, arg any) (float64, error) {
	if f, ok := toFloat64(arg); ok {
		return f, nil
	}
	return 0, fmt.Errorf("%s: argument must be a number, got %T", fn, arg)
}

func sqrtFunc(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("sqrt: expected 1 argument, got %d", len(params))
	}
	x, err := numericArg("sqrt", params[0])
	if err != nil {
		return nil, err
	}
	if x < 0 {
		return nil, fmt.Errorf("sqrt: math domain error")
	}
	return math.Sqrt(x), nil
}

func powFunc(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("pow: expected 2 arguments, got %d", len(params))
	}
	base, err := numericArg("pow", params[0])
	if err != nil {
		return nil, err
	}
	exp, err := numericArg("pow", params[1])
	if err != nil {
		return nil, err
	}
	result := math.Pow(base, exp)

	// Integer base and non-negative integer exponent stay integral.
	_, baseInt := params[0].(int)
	e, expInt := params[1].(int)
	if baseInt && expInt && e >= 0 && result >= math.MinInt64 && result < math.MaxInt64 {
		return int(result), nil
	}
	return result, nil
}

func absFunc(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("abs: expected 1 argument, got %d", len(params))
	}
	switch v := params[0].(type) {
	case int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, fmt.Errorf("abs: argument must be a number, got %T", v)
	}
}
