// internal/rules/evaluate.go
package rules

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Rule document evaluation.
 *
 * Evaluation flow:
 *   1. Seed a fresh context from inputs ("true"/"false" strings -> bool)
 *   2. Derived formulas in declaration order; each sees the results of the
 *      ones before it. A failing formula records 0 plus a warning
 *   3. Dispatch on shape:
 *        formula kind with a formula  -> result path
 *        score kinds, or any rules    -> score path
 *        bare formula (no kind)       -> result path
 *        formula named "score"        -> result path over its value
 *        otherwise                    -> ErrUnknownDocumentShape
 *   4. Risk levels, first match wins, against the context plus "score"
 *
 * Result path: the formula result rounded to 2 places is both result and
 * score. Its arithmetic failures are returned, not defaulted.
 * Score path: the sum of matching add actions; computed holds every context
 * entry that was not a raw input, floats rounded to 2 places.
 *
 * Evaluation is pure. Documents are never mutated, so one parsed document
 * may be evaluated from many goroutines at once.
 */

// EvaluateCondition reports whether cond holds in ctx.
// A nil condition, or a comparison on a missing name, is false.
func EvaluateCondition(cond *types.Condition, ctx map[string]any) bool {
	if cond == nil {
		return false
	}

	switch cond.Combinator {
	case types.CombinatorAnd:
		for _, op := range cond.Operands {
			if !EvaluateCondition(op, ctx) {
				return false
			}
		}
		return true
	case types.CombinatorOr:
		for _, op := range cond.Operands {
			if EvaluateCondition(op, ctx) {
				return true
			}
		}
		return false
	case "":
	default:
		return false
	}

	if cond.Left == "" || !cond.Op.IsValid() {
		return false
	}
	value, ok := ctx[cond.Left]
	if !ok || value == nil {
		return false
	}
	return Compare(cond.Op, value, cond.Right)
}

// Evaluate runs doc against inputs.
func Evaluate(doc *types.RuleDocument, inputs types.Inputs) (*types.EvaluationResult, error) {
	ctx := SeedContext(inputs)
	var warnings []string

	for _, f := range doc.Formulas {
		v, err := EvaluateExpression(f.Expr, ctx)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("formula %q failed: %v", f.Name, err))
			v = 0
		}
		ctx[f.Name] = v
	}

	var (
		res *types.EvaluationResult
		err error
	)
	switch {
	case doc.Kind == types.KindFormula && doc.Formula != "":
		res, err = evaluateResult(doc, ctx)
	case doc.Kind == types.KindScore || doc.Kind == types.KindScoreWithFormula || len(doc.Rules) > 0:
		res = evaluateScore(doc, ctx, inputs)
	case doc.Formula != "":
		res, err = evaluateResult(doc, ctx)
	default:
		if !hasFormula(doc, "score") {
			return nil, types.ErrUnknownDocumentShape
		}
		computed := ctx["score"]
		score, numeric := toFloat64(computed)
		if !numeric {
			return nil, fmt.Errorf("%w: score is %T", types.ErrExpressionFailed, computed)
		}
		res = resultFor(doc, ctx, Round2(score))
	}
	if err != nil {
		return nil, err
	}

	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

func hasFormula(doc *types.RuleDocument, name string) bool {
	for _, f := range doc.Formulas {
		if f.Name == name {
			return true
		}
	}
	return false
}

func evaluateResult(doc *types.RuleDocument, ctx map[string]any) (*types.EvaluationResult, error) {
	v, err := EvaluateExpression(doc.Formula, ctx)
	if err != nil {
		return nil, err
	}
	f, ok := toFloat64(v)
	if !ok {
		return nil, fmt.Errorf("%w: formula result is %T, want a number", types.ErrExpressionFailed, v)
	}
	return resultFor(doc, ctx, Round2(f)), nil
}

func resultFor(doc *types.RuleDocument, ctx map[string]any, result float64) *types.EvaluationResult {
	return &types.EvaluationResult{
		Result:    &result,
		Score:     result,
		RiskLevel: matchRiskLevel(doc.RiskLevels, ctx, result),
	}
}

func evaluateScore(doc *types.RuleDocument, ctx map[string]any, inputs types.Inputs) *types.EvaluationResult {
	score := 0
	for _, rule := range doc.Rules {
		if rule.Action.Type != types.ActionAdd {
			continue
		}
		if EvaluateCondition(rule.Condition, ctx) {
			score += rule.Action.Value
		}
	}

	computed := make(map[string]any)
	for name, v := range ctx {
		if _, isInput := inputs[name]; isInput {
			continue
		}
		if f, ok := v.(float64); ok {
			v = Round2(f)
		}
		computed[name] = v
	}

	return &types.EvaluationResult{
		Score:     float64(score),
		Computed:  computed,
		RiskLevel: matchRiskLevel(doc.RiskLevels, ctx, score),
	}
}

// matchRiskLevel returns the text of the first risk level whose condition
// holds with score bound, or nil.
func matchRiskLevel(levels []types.RiskLevel, ctx map[string]any, score any) *string {
	if len(levels) == 0 {
		return nil
	}
	riskCtx := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		riskCtx[k] = v
	}
	riskCtx["score"] = score

	for _, level := range levels {
		if EvaluateCondition(level.Condition, riskCtx) {
			text := level.Text
			return &text
		}
	}
	return nil
}

// Round2 rounds to 2 decimal places, half away from zero, on the shortest
// decimal representation of f (so 2.675 rounds to 2.68).
func Round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}
