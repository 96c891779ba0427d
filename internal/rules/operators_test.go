// internal/rules/operators_test.go
package rules

import (
	"testing"

	"github.com/solatis/scorekeeper/internal/types"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		op     types.Operator
		value  any
		target any
		want   bool
	}{
		{"int eq", types.OpEq, 5, 5, true},
		{"int float eq", types.OpEq, 5, 5.0, true},
		{"float lt int", types.OpLt, 4.9, 5, true},
		{"gte equal", types.OpGte, 5, 5, true},
		{"gt equal", types.OpGt, 5, 5, false},
		{"lte", types.OpLte, 3, 5, true},
		{"neq numbers", types.OpNeq, 3, 5, true},
		{"string eq", types.OpEq, "abc", "abc", true},
		{"string ordering", types.OpLt, "abc", "abd", true},
		{"string neq", types.OpNeq, "a", "b", true},
		{"bool eq", types.OpEq, true, true, true},
		{"bool neq", types.OpNeq, true, false, true},
		{"bool ordering", types.OpGte, true, false, false},
		{"bool vs int eq", types.OpEq, true, 1, false},
		{"bool vs int neq", types.OpNeq, true, 1, true},
		{"string vs int eq", types.OpEq, "5", 5, false},
		{"string vs int gt", types.OpGt, "5", 4, false},
		{"string vs int neq", types.OpNeq, "5", 5, true},
		{"unsupported type", types.OpEq, []int{1}, 1, false},
		{"unknown operator", types.Operator("~"), 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.op, tt.value, tt.target); got != tt.want {
				t.Errorf("Compare(%v, %v, %v) = %v, want %v", tt.op, tt.value, tt.target, got, tt.want)
			}
		})
	}
}
