// Package store persists the department, formula and patient field
// registries behind the named queries in internal/core/db.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	queries *db.Queries
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns a store over loaded queries.
func New(queries *db.Queries, logger zerolog.Logger) *Store {
	return &Store{
		queries: queries,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// mapWriteError translates driver constraint failures into domain sentinels.
func mapWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s", types.ErrConflict, op)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s: referenced record", types.ErrNotFound, op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func mapReadError(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// requireAffected turns a zero-row update or delete into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotFound, what)
	}
	return nil
}

func requireName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", types.ErrInvalidRecord, field)
	}
	return value, nil
}

// DepartmentInput creates a department.
type DepartmentInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DepartmentUpdate changes only the non-nil fields.
type DepartmentUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateDepartment inserts a department. A taken name returns ErrConflict.
func (s *Store) CreateDepartment(ctx context.Context, in DepartmentInput) (*types.Department, error) {
	name, err := requireName("name", in.Name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &types.Department{
		ID:          types.NewDepartmentID(),
		Name:        name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.queries.Exec(ctx, "create-department", d.ID, d.Name, d.Description, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, mapWriteError("create department", err)
	}

	s.logger.Info().Str("department_id", string(d.ID)).Str("name", d.Name).Msg("department created")
	return d, nil
}

// ListDepartments returns all departments ordered by name, each with its
// formula summaries.
func (s *Store) ListDepartments(ctx context.Context) ([]types.Department, error) {
	var departments []types.Department
	if err := s.queries.Select(ctx, "list-departments", &departments); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}

	for i := range departments {
		summaries, err := s.formulaSummaries(ctx, departments[i].ID)
		if err != nil {
			return nil, err
		}
		departments[i].Formulas = summaries
	}

	if departments == nil {
		departments = []types.Department{}
	}
	return departments, nil
}

// GetDepartment returns one department with its formula summaries.
func (s *Store) GetDepartment(ctx context.Context, id types.DepartmentID) (*types.Department, error) {
	var d types.Department
	if err := s.queries.Get(ctx, "get-department", &d, id); err != nil {
		return nil, mapReadError("department", err)
	}

	summaries, err := s.formulaSummaries(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Formulas = summaries
	return &d, nil
}

func (s *Store) formulaSummaries(ctx context.Context, id types.DepartmentID) ([]types.FormulaSummary, error) {
	summaries := []types.FormulaSummary{}
	if err := s.queries.Select(ctx, "list-formula-summaries", &summaries, id); err != nil {
		return nil, fmt.Errorf("list formula summaries: %w", err)
	}
	return summaries, nil
}

// UpdateDepartment applies a partial update.
func (s *Store) UpdateDepartment(ctx context.Context, id types.DepartmentID, up DepartmentUpdate) (*types.Department, error) {
	d, err := s.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	if up.Name != nil {
		if d.Name, err = requireName("name", *up.Name); err != nil {
			return nil, err
		}
	}
	if up.Description != nil {
		d.Description = *up.Description
	}
	d.UpdatedAt = s.now()

	res, err := s.queries.Exec(ctx, "update-department", d.Name, d.Description, d.UpdatedAt, id)
	if err != nil {
		return nil, mapWriteError("update department", err)
	}
	if err := requireAffected(res, "department"); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDepartment removes a department and, by cascade, its formulas.
func (s *Store) DeleteDepartment(ctx context.Context, id types.DepartmentID) error {
	res, err := s.queries.Exec(ctx, "delete-department", id)
	if err != nil {
		return mapWriteError("delete department", err)
	}
	if err := requireAffected(res, "department"); err != nil {
		return err
	}
	s.logger.Info().Str("department_id", string(id)).Msg("department deleted")
	return nil
}

// formulaRow scans ast_data as text; drivers disagree on TEXT to []byte.
type formulaRow struct {
	ID           types.FormulaID    `db:"formula_id"`
	DepartmentID types.DepartmentID `db:"department_id"`
	Name         string             `db:"name"`
	Description  string             `db:"description"`
	ASTData      string             `db:"ast_data"`
	RawText      string             `db:"raw_text"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
}

func (r formulaRow) formula() types.Formula {
	return types.Formula{
		ID:           r.ID,
		DepartmentID: r.DepartmentID,
		Name:         r.Name,
		Description:  r.Description,
		ASTData:      json.RawMessage(r.ASTData),
		RawText:      r.RawText,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// FormulaInput creates a formula under a department. An empty RawText is
// filled by rendering Document back to rule text.
type FormulaInput struct {
	DepartmentID types.DepartmentID  `json:"department_id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Document     *types.RuleDocument `json:"ast_data"`
	RawText      string              `json:"raw_text"`
}

// FormulaUpdate changes only the non-nil fields.
type FormulaUpdate struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Document    *types.RuleDocument `json:"ast_data"`
	RawText     *string             `json:"raw_text"`
}

func encodeDocument(doc *types.RuleDocument) (string, error) {
	if err := rules.ValidateDocument(doc); err != nil {
		return "", fmt.Errorf("%w: ast_data: %v", types.ErrInvalidRecord, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: ast_data: %v", types.ErrInvalidRecord, err)
	}
	return string(data), nil
}

// CreateFormula inserts a formula. The department must exist.
func (s *Store) CreateFormula(ctx context.Context, in FormulaInput) (*types.Formula, error) {
	name, err := requireName("name", in.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDepartment(ctx, in.DepartmentID); err != nil {
		return nil, err
	}
	astData, err := encodeDocument(in.Document)
	if err != nil {
		return nil, err
	}

	rawText := in.RawText
	if strings.TrimSpace(rawText) == "" {
		rawText = rules.Format(in.Document)
	}

	now := s.now()
	row := formulaRow{
		ID:           types.NewFormulaID(),
		DepartmentID: in.DepartmentID,
		Name:         name,
		Description:  in.Description,
		ASTData:      astData,
		RawText:      rawText,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.queries.Exec(ctx, "create-formula",
		row.ID, row.DepartmentID, row.Name, row.Description, row.ASTData, row.RawText, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return nil, mapWriteError("create formula", err)
	}

	s.logger.Info().
		Str("formula_id", string(row.ID)).
		Str("department_id", string(row.DepartmentID)).
		Str("name", row.Name).
		Msg("formula created")

	f := row.formula()
	return &f, nil
}

// ListFormulas returns formulas, optionally restricted to one department.
func (s *Store) ListFormulas(ctx context.Context, department types.DepartmentID) ([]types.Formula, error) {
	var rows []formulaRow
	var err error
	if department == "" {
		err = s.queries.Select(ctx, "list-formulas", &rows)
	} else {
		err = s.queries.Select(ctx, "list-formulas-by-department", &rows, department)
	}
	if err != nil {
		return nil, fmt.Errorf("list formulas: %w", err)
	}

	formulas := make([]types.Formula, 0, len(rows))
	for _, r := range rows {
		formulas = append(formulas, r.formula())
	}
	return formulas, nil
}

// GetFormula returns one formula.
func (s *Store) GetFormula(ctx context.Context, id types.FormulaID) (*types.Formula, error) {
	var row formulaRow
	if err := s.queries.Get(ctx, "get-formula", &row, id); err != nil {
		return nil, mapReadError("formula", err)
	}
	f := row.formula()
	return &f, nil
}

// UpdateFormula applies a partial update. A new Document without a new
// RawText re-renders the stored rule text.
func (s *Store) UpdateFormula(ctx context.Context, id types.FormulaID, up FormulaUpdate) (*types.Formula, error) {
	f, err := s.GetFormula(ctx, id)
	if err != nil {
		return nil, err
	}

	if up.Name != nil {
		if f.Name, err = requireName("name", *up.Name); err != nil {
			return nil, err
		}
	}
	if up.Description != nil {
		f.Description = *up.Description
	}
	if up.Document != nil {
		astData, err := encodeDocument(up.Document)
		if err != nil {
			return nil, err
		}
		f.ASTData = json.RawMessage(astData)
		if up.RawText == nil {
			f.RawText = rules.Format(up.Document)
		}
	}
	if up.RawText != nil {
		f.RawText = *up.RawText
	}
	f.UpdatedAt = s.now()

	res, err := s.queries.Exec(ctx, "update-formula", f.Name, f.Description, string(f.ASTData), f.RawText, f.UpdatedAt, id)
	if err != nil {
		return nil, mapWriteError("update formula", err)
	}
	if err := requireAffected(res, "formula"); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFormula removes one formula.
func (s *Store) DeleteFormula(ctx context.Context, id types.FormulaID) error {
	res, err := s.queries.Exec(ctx, "delete-formula", id)
	if err != nil {
		return mapWriteError("delete formula", err)
	}
	return requireAffected(res, "formula")
}
