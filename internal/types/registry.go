// internal/types/registry.go
package types

import (
	"encoding/json"
	"time"
)

// Department groups stored formulas by clinical speciality.
type Department struct {
	ID          DepartmentID     `json:"id" db:"department_id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
	Formulas    []FormulaSummary `json:"formulas,omitempty" db:"-"`
}

// FormulaSummary is the listing view of a formula inside a department.
type FormulaSummary struct {
	ID          FormulaID `json:"id" db:"formula_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
}

// Formula is a stored rule text together with its parsed AST.
// ASTData is kept as raw JSON so documents produced by any parser version
// round-trip unchanged; Document decodes it on demand.
type Formula struct {
	ID           FormulaID       `json:"id" db:"formula_id"`
	DepartmentID DepartmentID    `json:"department_id" db:"department_id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description" db:"description"`
	ASTData      json.RawMessage `json:"ast_data" db:"ast_data"`
	RawText      string          `json:"raw_text" db:"raw_text"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Document decodes ASTData. Returns ErrInvalidRecord for empty or malformed data.
func (f *Formula) Document() (*RuleDocument, error) {
	if len(f.ASTData) == 0 {
		return nil, ErrInvalidRecord
	}
	doc := NewRuleDocument()
	if err := json.Unmarshal(f.ASTData, doc); err != nil {
		return nil, ErrInvalidRecord
	}
	return doc, nil
}

// Patient field types accepted by the registry.
const (
	FieldTypeInt     = "int"
	FieldTypeFloat   = "float"
	FieldTypeBoolean = "boolean"
	FieldTypeString  = "string"
)

// PatientField names a variable that rule texts may reference.
// The registry feeds the chat prompt so generated rules reuse known names.
type PatientField struct {
	ID        PatientFieldID `json:"id" db:"field_id"`
	FieldName string         `json:"field_name" db:"field_name"`
	Label     string         `json:"label" db:"label"`
	FieldType string         `json:"field_type" db:"field_type"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// ValidFieldType reports whether t is an accepted patient field type.
func ValidFieldType(t string) bool {
	switch t {
	case FieldTypeInt, FieldTypeFloat, FieldTypeBoolean, FieldTypeString:
		return true
	default:
		return false
	}
}
