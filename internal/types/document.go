// internal/types/document.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

/*
 * Rule document AST.
 *
 * RuleDocument is the parsed form of one rule text. Kind selects evaluation
 * semantics:
 *   - KindFormula: a single arithmetic Formula, result rounded to 2 decimals
 *   - KindScore: Rules add integer points when their condition matches
 *   - KindScoreWithFormula: ordered derived Formulas computed before Rules
 *
 * Formulas keep source order on the wire: the JSON object is written and read
 * key-by-key so later formulas can depend on earlier ones after a round trip
 * through storage. The list form [{"name", "expr"}] is also accepted.
 *
 * Documents without a "type" field (older stored rows, AI parser output) get
 * their kind inferred from the sections present on decode.
 */

// Kind is the rule document shape.
type Kind string

const (
	KindFormula          Kind = "formula"
	KindScore            Kind = "score"
	KindScoreWithFormula Kind = "score_with_formula"
)

// VarType is a declared variable type. Unknown spellings are preserved.
type VarType string

const (
	VarInt     VarType = "int"
	VarBoolean VarType = "boolean"
	VarFloat   VarType = "float"
)

// ActionAdd is the only action type with an effect.
const ActionAdd = "add"

// Action is applied when a rule condition matches.
type Action struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Rule pairs a condition with an add action.
// Condition may be nil when the condition text failed to parse.
type Rule struct {
	Condition *Condition `json:"condition"`
	Action    Action     `json:"action"`
}

// RiskLevel pairs a condition over the computed score with display text.
type RiskLevel struct {
	Condition *Condition `json:"condition"`
	Text      string     `json:"text"`
}

// NamedFormula is one derived formula entry.
type NamedFormula struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// Formulas is an insertion-ordered name -> expression mapping.
type Formulas []NamedFormula

// Set replaces an existing entry in place or appends a new one.
func (f *Formulas) Set(name, expr string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Expr = expr
			return
		}
	}
	*f = append(*f, NamedFormula{Name: name, Expr: expr})
}

// MarshalJSON writes the formulas as a JSON object in insertion order.
func (f Formulas) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nf := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nf.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(nf.Expr)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order, or a list of
// {"name", "expr"} entries for transports whose maps are unordered.
// Non-string values (the AI parser sometimes emits `dummy: 0`) are kept as their JSON text.
func (f *Formulas) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	delim, ok := tok.(json.Delim)
	if ok && delim == '[' {
		return f.unmarshalList(dec)
	}
	if !ok || delim != '{' {
		return fmt.Errorf("formulas must be a JSON object or list")
	}

	out := Formulas{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("formula name must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var expr string
		if err := json.Unmarshal(raw, &expr); err != nil {
			expr = string(bytes.TrimSpace(raw))
		}
		out.Set(key, expr)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f *Formulas) unmarshalList(dec *json.Decoder) error {
	out := Formulas{}
	for dec.More() {
		var nf NamedFormula
		if err := dec.Decode(&nf); err != nil {
			return err
		}
		if nf.Name == "" {
			return fmt.Errorf("formula entry has no name")
		}
		out.Set(nf.Name, nf.Expr)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// RuleDocument is the AST of one rule text.
type RuleDocument struct {
	Kind       Kind
	Name       string
	Variables  map[string]VarType
	Formula    string
	Formulas   Formulas
	Rules      []Rule
	RiskLevels []RiskLevel
}

// NewRuleDocument returns an empty document with an initialized variable map.
func NewRuleDocument() *RuleDocument {
	return &RuleDocument{Variables: make(map[string]VarType)}
}

type documentJSON struct {
	Type        Kind               `json:"type,omitempty"`
	FormulaName string             `json:"formula_name,omitempty"`
	ScoreName   string             `json:"score_name,omitempty"`
	Variables   map[string]VarType `json:"variables"`
	Formula     string             `json:"formula,omitempty"`
	Formulas    Formulas           `json:"formulas,omitempty"`
	Rules       []Rule             `json:"rules,omitempty"`
	RiskLevels  []RiskLevel        `json:"risk_levels,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *RuleDocument) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		Type:       d.Kind,
		Variables:  d.Variables,
		Formula:    d.Formula,
		Formulas:   d.Formulas,
		Rules:      d.Rules,
		RiskLevels: d.RiskLevels,
	}
	if out.Variables == nil {
		out.Variables = map[string]VarType{}
	}
	if d.Kind == KindFormula {
		out.FormulaName = d.Name
	} else {
		out.ScoreName = d.Name
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RuleDocument) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*d = RuleDocument{
		Kind:       in.Type,
		Name:       in.ScoreName,
		Variables:  in.Variables,
		Formula:    in.Formula,
		Formulas:   in.Formulas,
		Rules:      in.Rules,
		RiskLevels: in.RiskLevels,
	}
	if d.Name == "" {
		d.Name = in.FormulaName
	}
	if d.Variables == nil {
		d.Variables = make(map[string]VarType)
	}

	if d.Kind == "" {
		switch {
		case len(d.Formulas) > 0:
			d.Kind = KindScoreWithFormula
		case in.ScoreName != "" || len(d.Rules) > 0:
			d.Kind = KindScore
		case in.FormulaName != "" || d.Formula != "":
			d.Kind = KindFormula
		}
	}
	return nil
}

// EvaluationResult is the output of evaluating a document.
// Formula documents set Result; score documents set Computed.
type EvaluationResult struct {
	Result    *float64
	Score     float64
	Computed  map[string]any
	RiskLevel *string
	Warnings  []string
}

// MarshalJSON emits the key subset matching the document kind:
// {result, score, risk_level} or {score, computed, risk_level}.
func (r *EvaluationResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"score":      r.Score,
		"risk_level": r.RiskLevel,
	}
	if r.Result != nil {
		out["result"] = *r.Result
	}
	if r.Computed != nil {
		out["computed"] = r.Computed
	}
	if len(r.Warnings) > 0 {
		out["warnings"] = r.Warnings
	}
	return json.Marshal(out)
}

// RiskText returns the matched risk level text or "" when none matched.
func (r *EvaluationResult) RiskText() string {
	if r.RiskLevel == nil {
		return ""
	}
	return *r.RiskLevel
}
