// internal/rules/coercion_test.go
package rules

import (
	"encoding/json"
	"testing"

	"github.com/solatis/scorekeeper/internal/types"
)

func TestCoerceLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{" True ", true},
		{"65", 65},
		{"65.0", 65},
		{"-3", -3},
		{"+4", 4},
		{"25.5", 25.5},
		{".5", 0.5},
		{"1e3", 1000},
		{"2.5e-1", 0.25},
		{"1e30", 1e30},
		{"abc", "abc"},
		{"inf", "inf"},
		{"NaN", "NaN"},
		{"0x10", "0x10"},
		{"1_000", "1_000"},
		{"yes", "yes"},
		{"", ""},
	}

	for _, tt := range tests {
		got := CoerceLiteral(tt.in)
		if got != tt.want {
			t.Errorf("CoerceLiteral(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
		}
	}
}

func TestSeedContext(t *testing.T) {
	inputs := types.Inputs{
		"flag":   "TRUE",
		"off":    "false",
		"name":   "Alice",
		"age":    int64(70),
		"count":  uint8(3),
		"weight": float32(80.5),
		"height": 1.75,
		"num":    json.Number("42"),
		"ratio":  json.Number("0.25"),
		"raw":    true,
	}

	ctx := SeedContext(inputs)

	want := map[string]any{
		"flag":   true,
		"off":    false,
		"name":   "Alice",
		"age":    70,
		"count":  3,
		"weight": 80.5,
		"height": 1.75,
		"num":    42,
		"ratio":  0.25,
		"raw":    true,
	}
	for k, v := range want {
		if ctx[k] != v {
			t.Errorf("SeedContext()[%q] = %v (%T), want %v (%T)", k, ctx[k], ctx[k], v, v)
		}
	}
	if len(ctx) != len(inputs) {
		t.Errorf("len(SeedContext()) = %d, want %d", len(ctx), len(inputs))
	}

	// Seeding copies: formula results written to ctx must not leak into inputs.
	ctx["derived"] = 1
	if _, ok := inputs["derived"]; ok {
		t.Errorf("SeedContext() aliased the inputs map")
	}
}
