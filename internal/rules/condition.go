// internal/rules/condition.go
package rules

import (
	"regexp"
	"strings"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Condition text parser.
 *
 * Grammar, lowest precedence first:
 *   condition  := and_expr (" or " and_expr)*
 *   and_expr   := atom (" and " atom)*
 *   atom       := "(" condition ")" | comparison | identifier
 *   comparison := identifier op rhs
 *   op         := ">=" | "<=" | "==" | "!=" | ">" | "<" | "is" | "is not"
 *
 * Splits only happen at parenthesis depth 0, so "(a or b) and c" is an and of
 * two atoms. Textual operators are case-insensitive and must be surrounded by
 * whitespace; symbolic operators need none ("age>=65").
 *
 * A bare identifier is sugar for "identifier == true". Anything else is
 * unparseable: ParseCondition returns nil with ErrUnparseableCondition and the
 * caller keeps going with an absent (never matching) condition. Inside a
 * compound, an unparseable operand becomes a nil operand rather than failing
 * the whole compound.
 */

var (
	symbolicComparison = regexp.MustCompile(`^([\p{L}\p{N}_]+)\s*(>=|<=|==|!=|>|<)\s*(.+)$`)
	textualComparison  = regexp.MustCompile(`(?i)^([\p{L}\p{N}_]+)\s+(is\s+not|is)\s+(.+)$`)
	bareIdentifier     = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
)

// ValidIdentifier reports whether name can be referenced as a bare variable
// in rule text.
func ValidIdentifier(name string) bool {
	return bareIdentifier.MatchString(name)
}

// ParseCondition parses condition text into a Condition.
// Returns ErrUnparseableCondition (non-fatal) when the text, or any
// operand of a compound, matches no grammar form. The returned condition is
// still usable in that case: compound results keep nil operands.
func ParseCondition(text string) (*types.Condition, error) {
	var failed bool
	cond := parseCondition(text, &failed)
	if failed {
		return cond, types.ErrUnparseableCondition
	}
	return cond, nil
}

func parseCondition(text string, failed *bool) *types.Condition {
	text = strings.TrimSpace(text)

	if parts := splitDepthZero(text, " or "); len(parts) > 1 {
		return &types.Condition{Combinator: types.CombinatorOr, Operands: parseOperands(parts, failed)}
	}
	if parts := splitDepthZero(text, " and "); len(parts) > 1 {
		return &types.Condition{Combinator: types.CombinatorAnd, Operands: parseOperands(parts, failed)}
	}

	if inner, ok := stripEnclosingParens(text); ok {
		return parseCondition(inner, failed)
	}

	if m := symbolicComparison.FindStringSubmatch(text); m != nil {
		return types.Compare(m[1], types.Operator(m[2]), CoerceLiteral(m[3]))
	}
	if m := textualComparison.FindStringSubmatch(text); m != nil {
		op := types.OpEq
		if len(strings.Fields(m[2])) == 2 {
			op = types.OpNeq
		}
		return types.Compare(m[1], op, CoerceLiteral(m[3]))
	}
	if bareIdentifier.MatchString(text) {
		return types.Compare(text, types.OpEq, true)
	}

	*failed = true
	return nil
}

func parseOperands(parts []string, failed *bool) []*types.Condition {
	operands := make([]*types.Condition, 0, len(parts))
	for _, part := range parts {
		operands = append(operands, parseCondition(part, failed))
	}
	return operands
}

// splitDepthZero splits s on sep wherever the parenthesis depth is zero.
// Parts are trimmed; a trailing empty part is dropped.
func splitDepthZero(s, sep string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); {
		switch {
		case s[i] == '(':
			depth++
		case s[i] == ')':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, strings.TrimSpace(s[start:i]))
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

// stripEnclosingParens removes one layer of parentheses when the opening
// paren at position 0 closes at the final byte. "(a) and (b)" is not enclosed.
func stripEnclosingParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s, false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s, false
			}
		}
	}
	if depth != 0 {
		return s, false
	}
	return strings.TrimSpace(s[1 : len(s)-1]), true
}
