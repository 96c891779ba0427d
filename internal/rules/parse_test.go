// internal/rules/parse_test.go
package rules

import (
	"reflect"
	"testing"

	"github.com/solatis/scorekeeper/internal/types"
)

const scoreText = `score_name: Test
variables:
  age: int
rules:
  - if: age >= 65
    add: 1
risk_levels:
  - if: score >= 1
    text: elevated
`

const combinedText = `score_name: Obesity Risk
variables:
  weight: float
  height: float
  smoker: boolean
formulas:
  BMI: weight / (height * height)
  formula: BMI * 2
rules:
  - if: BMI >= 30
    add: 2
  - if: BMI >= 25 and BMI < 30
    add: 1
  - if: smoker
    add: 1
risk_levels:
  - if: score >= 3
    text: high
  - if: score >= 1
    text: moderate
`

func TestParseDocument_Score(t *testing.T) {
	doc, diags := ParseDocument(scoreText)
	if len(diags) != 0 {
		t.Errorf("ParseDocument() diagnostics = %v, want none", diags)
	}

	if doc.Kind != types.KindScore {
		t.Errorf("Kind = %v, want %v", doc.Kind, types.KindScore)
	}
	if doc.Name != "Test" {
		t.Errorf("Name = %q, want Test", doc.Name)
	}
	if !reflect.DeepEqual(doc.Variables, map[string]types.VarType{"age": types.VarInt}) {
		t.Errorf("Variables = %v, want age:int", doc.Variables)
	}
	if len(doc.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, want 1", len(doc.Rules))
	}
	if !doc.Rules[0].Condition.Equal(types.Compare("age", types.OpGte, 65)) {
		t.Errorf("Rules[0].Condition = %s, want age >= 65", FormatCondition(doc.Rules[0].Condition))
	}
	if doc.Rules[0].Action != (types.Action{Type: types.ActionAdd, Value: 1}) {
		t.Errorf("Rules[0].Action = %+v, want add 1", doc.Rules[0].Action)
	}
	if len(doc.RiskLevels) != 1 || doc.RiskLevels[0].Text != "elevated" {
		t.Errorf("RiskLevels = %+v, want one 'elevated' level", doc.RiskLevels)
	}
}

func TestParseDocument_Formula(t *testing.T) {
	text := `formula_name: BMI
variables:
  weight: int
  height: int
formula: weight / (height * height)
`
	doc, _ := ParseDocument(text)

	if doc.Kind != types.KindFormula {
		t.Errorf("Kind = %v, want %v", doc.Kind, types.KindFormula)
	}
	if doc.Formula != "weight / (height * height)" {
		t.Errorf("Formula = %q, want weight / (height * height)", doc.Formula)
	}
	if doc.Formulas != nil || doc.Rules != nil {
		t.Errorf("Formulas/Rules = %v/%v, want nil", doc.Formulas, doc.Rules)
	}
}

func TestParseDocument_ScoreWithFormula(t *testing.T) {
	doc, diags := ParseDocument(combinedText)
	if len(diags) != 0 {
		t.Errorf("ParseDocument() diagnostics = %v, want none", diags)
	}

	if doc.Kind != types.KindScoreWithFormula {
		t.Errorf("Kind = %v, want %v", doc.Kind, types.KindScoreWithFormula)
	}
	want := types.Formulas{
		{Name: "BMI", Expr: "weight / (height * height)"},
		{Name: "formula", Expr: "BMI * 2"},
	}
	if !reflect.DeepEqual(doc.Formulas, want) {
		t.Errorf("Formulas = %v, want %v", doc.Formulas, want)
	}
	if doc.Formula != "" {
		t.Errorf("Formula = %q, want empty (formula: inside formulas is a named entry)", doc.Formula)
	}
	if len(doc.Rules) != 3 {
		t.Fatalf("len(Rules) = %d, want 3", len(doc.Rules))
	}
	wantSecond := types.And(types.Compare("BMI", types.OpGte, 25), types.Compare("BMI", types.OpLt, 30))
	if !doc.Rules[1].Condition.Equal(wantSecond) {
		t.Errorf("Rules[1].Condition = %s, want %s", FormatCondition(doc.Rules[1].Condition), FormatCondition(wantSecond))
	}
	if len(doc.RiskLevels) != 2 {
		t.Errorf("len(RiskLevels) = %d, want 2", len(doc.RiskLevels))
	}
}

func TestParseDocument_KindEscalationIsSticky(t *testing.T) {
	text := `formulas:
  a: x + 1
score_name: Late Header
`
	doc, _ := ParseDocument(text)
	if doc.Kind != types.KindScoreWithFormula {
		t.Errorf("Kind = %v, want %v", doc.Kind, types.KindScoreWithFormula)
	}
	if doc.Name != "Late Header" {
		t.Errorf("Name = %q, want Late Header", doc.Name)
	}
}

func TestParseDocument_Lenient(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantRules []types.Rule
		wantDiags bool
	}{
		{
			name: "open rule replaced by next if",
			text: "score_name: X\nrules:\n  - if: a > 1\n  - if: b > 2\n    add: 3\n",
			wantRules: []types.Rule{
				{Condition: types.Compare("b", types.OpGt, 2), Action: types.Action{Type: types.ActionAdd, Value: 3}},
			},
			wantDiags: true,
		},
		{
			name:      "open rule at end of input dropped",
			text:      "score_name: X\nrules:\n  - if: a > 1\n",
			wantRules: []types.Rule{},
			wantDiags: true,
		},
		{
			name:      "open rule at section change dropped",
			text:      "score_name: X\nrules:\n  - if: a > 1\nrisk_levels:\n",
			wantRules: []types.Rule{},
			wantDiags: true,
		},
		{
			name:      "non-integer add keeps rule open",
			text:      "score_name: X\nrules:\n  - if: a > 1\n    add: lots\n",
			wantRules: []types.Rule{},
			wantDiags: true,
		},
		{
			name: "second add ignored",
			text: "score_name: X\nrules:\n  - if: a > 1\n    add: 2\n    add: 5\n",
			wantRules: []types.Rule{
				{Condition: types.Compare("a", types.OpGt, 1), Action: types.Action{Type: types.ActionAdd, Value: 2}},
			},
			wantDiags: true,
		},
		{
			name: "unparseable condition kept as never-matching",
			text: "score_name: X\nrules:\n  if: ???\n  add: 4\n",
			wantRules: []types.Rule{
				{Condition: nil, Action: types.Action{Type: types.ActionAdd, Value: 4}},
			},
			wantDiags: true,
		},
		{
			name: "comments and blank lines",
			text: "# header\nscore_name: X\n\nrules:\n  # a rule\n  - if: a > 1\n\n    add: -2\n",
			wantRules: []types.Rule{
				{Condition: types.Compare("a", types.OpGt, 1), Action: types.Action{Type: types.ActionAdd, Value: -2}},
			},
			wantDiags: false,
		},
		{
			name: "crlf line endings",
			text: "score_name: X\r\nrules:\r\n  - if: a > 1\r\n    add: 1\r\n",
			wantRules: []types.Rule{
				{Condition: types.Compare("a", types.OpGt, 1), Action: types.Action{Type: types.ActionAdd, Value: 1}},
			},
			wantDiags: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, diags := ParseDocument(tt.text)
			if len(doc.Rules) != len(tt.wantRules) {
				t.Fatalf("len(Rules) = %d, want %d", len(doc.Rules), len(tt.wantRules))
			}
			for i := range tt.wantRules {
				got, want := doc.Rules[i], tt.wantRules[i]
				if !got.Condition.Equal(want.Condition) || got.Action != want.Action {
					t.Errorf("Rules[%d] = {%s %+v}, want {%s %+v}", i,
						FormatCondition(got.Condition), got.Action, FormatCondition(want.Condition), want.Action)
				}
			}
			if (len(diags) > 0) != tt.wantDiags {
				t.Errorf("diagnostics = %v, want present=%v", diags, tt.wantDiags)
			}
		})
	}
}

func TestParseDocument_Variables(t *testing.T) {
	text := `score_name: X
variables:
  age:
  smoker: boolean
  weight: float: kg
  note
`
	doc, diags := ParseDocument(text)

	want := map[string]types.VarType{"age": types.VarInt, "smoker": types.VarBoolean, "weight": types.VarFloat}
	if !reflect.DeepEqual(doc.Variables, want) {
		t.Errorf("Variables = %v, want %v", doc.Variables, want)
	}
	if len(diags) != 1 || diags[0].Line != 6 {
		t.Errorf("diagnostics = %v, want one for line 6", diags)
	}
}

func TestParseDocument_NoHeaderDefaultsToFormula(t *testing.T) {
	doc, _ := ParseDocument("formula: 1 + 1")
	if doc.Kind != types.KindFormula {
		t.Errorf("Kind = %v, want %v", doc.Kind, types.KindFormula)
	}
	if doc.Formula != "1 + 1" {
		t.Errorf("Formula = %q, want 1 + 1", doc.Formula)
	}
}

func TestParseDocument_RiskLevelsSymmetric(t *testing.T) {
	text := `score_name: X
risk_levels:
  - if: score >= 30
    text: high
  - if: score >= 25
  - if: score >= 10
    text: low
  text: orphan
`
	doc, _ := ParseDocument(text)

	if len(doc.RiskLevels) != 2 {
		t.Fatalf("len(RiskLevels) = %d, want 2", len(doc.RiskLevels))
	}
	if doc.RiskLevels[0].Text != "high" || doc.RiskLevels[1].Text != "low" {
		t.Errorf("RiskLevels = %q, %q, want high, low", doc.RiskLevels[0].Text, doc.RiskLevels[1].Text)
	}
}
