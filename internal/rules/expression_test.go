// internal/rules/expression_test.go
package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/scorekeeper/internal/types"
)

func TestEvaluateExpression(t *testing.T) {
	tests := []struct {
		name string
		expr string
		ctx  map[string]any
		want any
	}{
		{"int arithmetic", "x + 1", map[string]any{"x": 1}, 2},
		{"bmi", "weight / (height * height)", map[string]any{"weight": 70, "height": 1.75}, 70 / (1.75 * 1.75)},
		{"sqrt", "sqrt(16)", nil, 4.0},
		{"pow ints stays int", "pow(2, 3)", nil, 8},
		{"pow float", "pow(2.5, 2)", nil, 6.25},
		{"abs int", "abs(x)", map[string]any{"x": -3}, 3},
		{"abs float", "abs(-2.5)", nil, 2.5},
		{"exponent operator", "2 ** 3", nil, 8.0},
		{"negative substitution", "x * 2", map[string]any{"x": -3}, -6},
		{"whole float keeps float", "w * 2", map[string]any{"w": 70.0}, 140.0},
		{"word boundary", "average - age", map[string]any{"age": 2, "average": 10}, 8},
		{"ternary true", "1 if flag else 0", map[string]any{"flag": true}, 1},
		{"ternary false", "1 if flag else 0", map[string]any{"flag": false}, 0},
		{"chained ternary", "10 if x > 5 else 5 if x > 2 else 0", map[string]any{"x": 3}, 5},
		{"ternary inside call", "pow(2 if big else 3, 2)", map[string]any{"big": false}, 9},
		{"ternary inside parens", "(2 if a >= 1 else 4) * 10", map[string]any{"a": 1}, 20},
		{"boolean constants", "True and not False", nil, true},
		{"comparison result", "x >= 18.5 and x < 25", map[string]any{"x": 22.0}, true},
		{"string comparison", `sex == "M"`, map[string]any{"sex": "M"}, true},
		{"if inside string literal", `"if" == s`, map[string]any{"s": "if"}, true},
		{"bool times int", "has_disease * 2", map[string]any{"has_disease": true}, 2},
		{"bool constant plus int", "True + 1", nil, 2},
		{"weighted flags", "2 * hypertension + age_pts", map[string]any{"hypertension": true, "age_pts": 3}, 5},
		{"false counts as zero", "smoker * 10 + 1", map[string]any{"smoker": false}, 1},
		{"bool plus float", "flag + 0.5", map[string]any{"flag": true}, 1.5},
		{"negated bool", "-flag", map[string]any{"flag": true}, -1},
		{"bool division", "flag / 2", map[string]any{"flag": true}, 0.5},
		{"bool equality stays bool", "flag == true", map[string]any{"flag": true}, true},
		{"add overflow promotes", "9223372036854775807 + 1", nil, 9223372036854775808.0},
		{"sub overflow promotes", "x - 1", map[string]any{"x": math.MinInt}, float64(math.MinInt)},
		{"mul overflow promotes", "x * 2", map[string]any{"x": math.MaxInt}, 2 * float64(math.MaxInt)},
		{"negate min int promotes", "-x", map[string]any{"x": math.MinInt}, 9223372036854775808.0},
		{"large ints stay exact", "x + 1", map[string]any{"x": math.MaxInt - 1}, math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateExpression(tt.expr, tt.ctx)
			if err != nil {
				t.Fatalf("EvaluateExpression(%q) error = %v, want nil", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("EvaluateExpression(%q) = %v (%T), want %v (%T)", tt.expr, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluateExpression_Errors(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		ctx     map[string]any
		wantErr error
	}{
		{"unknown name", "foo + 1", nil, types.ErrDisallowedExpression},
		{"unsubstituted nil", "x + 1", map[string]any{"x": nil}, types.ErrDisallowedExpression},
		{"builtin", `len("ab")`, nil, types.ErrDisallowedExpression},
		{"member access", "a.b", map[string]any{}, types.ErrDisallowedExpression},
		{"array literal", "[1, 2]", nil, types.ErrDisallowedExpression},
		{"map literal", "{a: 1}", nil, types.ErrDisallowedExpression},
		{"modulo", "7 % 2", nil, types.ErrDisallowedExpression},
		{"empty", "   ", nil, types.ErrExpressionFailed},
		{"syntax error", "x +", map[string]any{"x": 1}, types.ErrExpressionFailed},
		{"sqrt domain", "sqrt(-1)", nil, types.ErrExpressionFailed},
		{"division by zero", "1 / 0", nil, types.ErrExpressionFailed},
		{"pow arity", "pow(2)", nil, types.ErrExpressionFailed},
		{"string result", `"abc"`, nil, types.ErrExpressionFailed},
		{"string arithmetic", `s * 2`, map[string]any{"s": "ab"}, types.ErrExpressionFailed},
		{"bool division by zero", "1 / flag", map[string]any{"flag": false}, types.ErrExpressionFailed},
		{"helper not callable", "_add(1, 2)", nil, types.ErrDisallowedExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateExpression(tt.expr, tt.ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EvaluateExpression(%q) = (%v, %v), want error %v", tt.expr, got, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateExpression_CostBudget(t *testing.T) {
	expr := "sqrt(1)"
	for i := 0; i < 300; i++ {
		expr += " + sqrt(1)"
	}
	_, err := EvaluateExpression(expr, nil)
	if !errors.Is(err, types.ErrDisallowedExpression) {
		t.Errorf("EvaluateExpression(huge) error = %v, want ErrDisallowedExpression", err)
	}
}

func TestRewriteTernary(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a + b", "a + b"},
		{"1 if c else 0", "(c) ? (1) : (0)"},
		{"1 if c else 2 if d else 3", "(c) ? (1) : ((d) ? (2) : (3))"},
		{"elif + 1", "elif + 1"},
	}

	for _, tt := range tests {
		if got := rewriteTernary(tt.in); got != tt.want {
			t.Errorf("rewriteTernary(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderLiteral(t *testing.T) {
	tests := []struct {
		v      any
		want   string
		wantOK bool
	}{
		{true, "true", true},
		{false, "false", true},
		{42, "42", true},
		{-7, "(-7)", true},
		{math.MinInt, "(-9223372036854775807 - 1)", true},
		{1.75, "1.75", true},
		{70.0, "70.0", true},
		{-0.5, "(-0.5)", true},
		{`say "hi"`, `"say \"hi\""`, true},
		{math.NaN(), "", false},
		{nil, "", false},
		{[]int{1}, "", false},
	}

	for _, tt := range tests {
		got, ok := renderLiteral(tt.v)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("renderLiteral(%v) = (%q, %v), want (%q, %v)", tt.v, got, ok, tt.want, tt.wantOK)
		}
	}
}

// Property-based test: substituted linear formulas agree with Go arithmetic.
func TestEvaluateExpression_PropertyLinear(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a * x + b matches native arithmetic", prop.ForAll(
		func(a, x, b int) bool {
			got, err := EvaluateExpression("a * x + b", map[string]any{"a": a, "x": x, "b": b})
			return err == nil && got == a*x+b
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}
