// internal/rules/cost.go
package rules

import (
	"github.com/expr-lang/expr/ast"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Cost model for arithmetic expressions.
 *
 * Every node admitted by the sandbox carries a static cost; an expression
 * whose total exceeds MaxExpressionCost is rejected before compilation.
 * Formula text is user-authored and evaluated on every /calculate call, so
 * the bound is checked once per evaluation on the substituted text.
 *
 * Cost formula: sum(node_cost), with calls and exponentiation weighted
 * above plain arithmetic since both go through math.Pow / math.Sqrt.
 *
 * Condition trees get the same treatment through ConditionDepth: the DSL
 * parser cannot produce deep nesting, but AST documents decoded from JSON
 * (stored rows, AI output) can.
 */

const (
	CostLiteral     = 1
	CostIdentifier  = 1
	CostUnary       = 1
	CostBinary      = 2
	CostPow         = 8
	CostConditional = 2
	CostCall        = 16

	// MaxExpressionCost bounds a single formula after substitution.
	// Real scoring formulas stay well under 200.
	MaxExpressionCost = 4096

	// MaxConditionDepth bounds compound nesting in decoded documents.
	MaxConditionDepth = 32
)

// nodeCost returns the static cost of one allowed expression node.
func nodeCost(node ast.Node) int {
	switch n := node.(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.StringNode:
		return CostLiteral
	case *ast.IdentifierNode:
		return CostIdentifier
	case *ast.UnaryNode:
		return CostUnary
	case *ast.BinaryNode:
		if n.Operator == "**" {
			return CostPow
		}
		return CostBinary
	case *ast.ConditionalNode:
		return CostConditional
	default: // calls
		return CostCall
	}
}

// ConditionDepth returns the nesting depth of a condition tree.
// A comparison has depth 1; nil has depth 0.
func ConditionDepth(cond *types.Condition) int {
	if cond == nil {
		return 0
	}
	if !cond.IsCompound() {
		return 1
	}
	deepest := 0
	for _, op := range cond.Operands {
		if d := ConditionDepth(op); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}
