// Package types provides domain models shared across scorekeeper components.
//
// Zero-dependency design: document.go, condition.go and errors.go use only the
// standard library so the rule AST can be embedded in any client. ID utilities
// in ids.go import uuid and are isolated from the AST types.
//
// JSON compatibility: the AST marshals to the same shape stored in the
// formulas.ast_data column and returned by the /parse endpoint, so rule
// documents produced by older clients or by the AI parser decode unchanged.
package types

// DepartmentID identifies a department grouping stored formulas.
// UUIDv7 string keeps identifiers time-ordered in B-tree indexes.
type DepartmentID string

// FormulaID identifies a stored formula (rule text plus its parsed AST).
type FormulaID string

// PatientFieldID identifies one entry in the patient field registry.
type PatientFieldID string

// Inputs is the flat variable name -> value mapping supplied by a caller of
// evaluate. Values are numbers, booleans, strings, or boolean-spelling strings.
type Inputs map[string]any

// Resource limits enforced at the transport boundary.
const (
	// MaxRuleTextSize caps rule text accepted by /parse.
	// 64KB holds several hundred rules; real scoring systems use tens.
	MaxRuleTextSize = 64 * 1024

	// MaxInputs caps the number of input bindings per evaluation.
	MaxInputs = 512

	// MaxChatMessageSize caps chat prompts forwarded to the generative model.
	MaxChatMessageSize = 8 * 1024
)
