// internal/rules/format.go
package rules

import (
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

// Format renders doc as canonical rule text.
// ParseDocument(Format(doc)) reproduces doc for documents the parser can
// produce: sections are written in a fixed order and variables sorted by
// name, so formatting twice is stable.
func Format(doc *types.RuleDocument) string {
	var b strings.Builder

	if doc.Kind == types.KindFormula {
		writeLine(&b, 0, "formula_name: "+doc.Name)
	} else {
		writeLine(&b, 0, "score_name: "+doc.Name)
	}

	if len(doc.Variables) > 0 {
		writeLine(&b, 0, "variables:")
		names := make([]string, 0, len(doc.Variables))
		for name := range doc.Variables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			writeLine(&b, 1, name+": "+string(doc.Variables[name]))
		}
	}

	if doc.Formula != "" {
		writeLine(&b, 0, "formula: "+doc.Formula)
	}

	if doc.Formulas != nil || doc.Kind == types.KindScoreWithFormula {
		writeLine(&b, 0, "formulas:")
		for _, f := range doc.Formulas {
			writeLine(&b, 1, f.Name+": "+f.Expr)
		}
	}

	if doc.Rules != nil {
		writeLine(&b, 0, "rules:")
		for _, r := range doc.Rules {
			writeLine(&b, 1, "- if: "+FormatCondition(r.Condition))
			writeLine(&b, 2, "add: "+strconv.Itoa(r.Action.Value))
		}
	}

	if doc.RiskLevels != nil {
		writeLine(&b, 0, "risk_levels:")
		for _, rl := range doc.RiskLevels {
			writeLine(&b, 1, "- if: "+FormatCondition(rl.Condition))
			writeLine(&b, 2, "text: "+rl.Text)
		}
	}

	return b.String()
}

// FormatCondition renders cond as condition text. Nested compounds are
// parenthesized except an and inside an or, which precedence already groups.
func FormatCondition(cond *types.Condition) string {
	if cond == nil {
		return ""
	}
	if !cond.IsCompound() {
		return cond.Left + " " + string(cond.Op) + " " + formatLiteral(cond.Right)
	}

	parts := make([]string, len(cond.Operands))
	for i, op := range cond.Operands {
		s := FormatCondition(op)
		if op.IsCompound() && !(cond.Combinator == types.CombinatorOr && op.Combinator == types.CombinatorAnd) {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+string(cond.Combinator)+" ")
}

func formatLiteral(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	default:
		return ""
	}
}

func writeLine(b *strings.Builder, indent int, s string) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(strings.TrimRight(s, " "))
	b.WriteByte('\n')
}
