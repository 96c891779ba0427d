// internal/types/condition.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

/*
 * Condition AST.
 *
 * A Condition is a tagged variant: either a Comparison (Left Op Right) or a
 * Compound (Combinator over two or more Operands). Combinator == "" marks a
 * comparison. Operands may contain nil entries when a branch failed to parse;
 * nil evaluates to false.
 *
 * Wire format:
 *   comparison: {"op": ">=", "left": "age", "right": 65}
 *   compound:   {"compound": "and", "conditions": [ ... ]}
 *
 * Right literals decode with whole-number narrowing so a stored 65 compares
 * as an int, matching what the DSL parser produces for the same text.
 */

// Operator is a comparison operator symbol.
type Operator string

const (
	OpGte Operator = ">="
	OpLte Operator = "<="
	OpEq  Operator = "=="
	OpNeq Operator = "!="
	OpGt  Operator = ">"
	OpLt  Operator = "<"
)

// IsValid reports whether op is one of the six supported symbols.
func (op Operator) IsValid() bool {
	switch op {
	case OpGte, OpLte, OpEq, OpNeq, OpGt, OpLt:
		return true
	default:
		return false
	}
}

// Combinator joins compound operands.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Condition is either a comparison or a compound of sub-conditions.
type Condition struct {
	Left  string
	Op    Operator
	Right any // int, float64, bool, or string

	Combinator Combinator
	Operands   []*Condition
}

// Compare builds a comparison condition.
func Compare(left string, op Operator, right any) *Condition {
	return &Condition{Left: left, Op: op, Right: right}
}

// And builds an and-compound.
func And(operands ...*Condition) *Condition {
	return &Condition{Combinator: CombinatorAnd, Operands: operands}
}

// Or builds an or-compound.
func Or(operands ...*Condition) *Condition {
	return &Condition{Combinator: CombinatorOr, Operands: operands}
}

// IsCompound reports whether c combines sub-conditions.
func (c *Condition) IsCompound() bool {
	return c != nil && c.Combinator != ""
}

// Equal reports structural equality, including literal type (int 1 != float 1.0).
func (c *Condition) Equal(other *Condition) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	if c.Combinator != other.Combinator {
		return false
	}
	if c.IsCompound() {
		if len(c.Operands) != len(other.Operands) {
			return false
		}
		for i := range c.Operands {
			if !c.Operands[i].Equal(other.Operands[i]) {
				return false
			}
		}
		return true
	}
	return c.Left == other.Left && c.Op == other.Op && c.Right == other.Right
}

type comparisonJSON struct {
	Op    Operator `json:"op"`
	Left  string   `json:"left"`
	Right any      `json:"right"`
}

type compoundJSON struct {
	Compound   Combinator   `json:"compound"`
	Conditions []*Condition `json:"conditions"`
}

// MarshalJSON implements json.Marshaler.
func (c *Condition) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	if c.IsCompound() {
		ops := c.Operands
		if ops == nil {
			ops = []*Condition{}
		}
		return json.Marshal(compoundJSON{Compound: c.Combinator, Conditions: ops})
	}
	return json.Marshal(comparisonJSON{Op: c.Op, Left: c.Left, Right: c.Right})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Compound   Combinator        `json:"compound"`
		Conditions []json.RawMessage `json:"conditions"`
		Op         Operator          `json:"op"`
		Left       string            `json:"left"`
		Right      json.RawMessage   `json:"right"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Compound != "" {
		if raw.Compound != CombinatorAnd && raw.Compound != CombinatorOr {
			return fmt.Errorf("unknown compound %q", raw.Compound)
		}
		*c = Condition{Combinator: raw.Compound, Operands: make([]*Condition, 0, len(raw.Conditions))}
		for _, item := range raw.Conditions {
			if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
				c.Operands = append(c.Operands, nil)
				continue
			}
			sub := &Condition{}
			if err := json.Unmarshal(item, sub); err != nil {
				return err
			}
			c.Operands = append(c.Operands, sub)
		}
		return nil
	}

	right, err := decodeLiteral(raw.Right)
	if err != nil {
		return err
	}
	*c = Condition{Left: raw.Left, Op: raw.Op, Right: right}
	return nil
}

// decodeLiteral decodes a JSON scalar into bool, int, float64, or string.
// Whole numbers narrow to int; absent right operands decode as 0.
func decodeLiteral(data json.RawMessage) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case bool, string:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid numeric literal %q: %w", val, err)
		}
		return NarrowNumber(f), nil
	default:
		return nil, fmt.Errorf("condition right operand must be a scalar, got %s", string(data))
	}
}

// NarrowNumber returns int for whole finite values inside the int64 range,
// otherwise the float unchanged.
func NarrowNumber(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int(f)
	}
	return f
}
