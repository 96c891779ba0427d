package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

const bmiText = `formula_name: BMI
variables:
  weight: float
  height: float
formula: weight / (height * height)
risk_levels:
  - if: score >= 25
    text: overweight
  - if: score < 25
    text: normal
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(db.MemoryURL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.MigrateUp(conn))

	q, err := db.LoadQueries(conn)
	require.NoError(t, err)
	return New(q, zerolog.Nop())
}

func bmiDocument(t *testing.T) *types.RuleDocument {
	t.Helper()
	doc, diags := rules.ParseDocument(bmiText)
	require.Empty(t, diags)
	return doc
}

func TestDepartments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cardio, err := s.CreateDepartment(ctx, DepartmentInput{Name: " Cardiology ", Description: "heart"})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", cardio.Name)

	_, err = s.CreateDepartment(ctx, DepartmentInput{Name: "Cardiology"})
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = s.CreateDepartment(ctx, DepartmentInput{Name: "  "})
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.CreateDepartment(ctx, DepartmentInput{Name: "Anesthesia"})
	require.NoError(t, err)

	list, err := s.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Anesthesia", list[0].Name, "departments are ordered by name")
	assert.Empty(t, list[1].Formulas)

	desc := "cardiovascular"
	updated, err := s.UpdateDepartment(ctx, cardio.ID, DepartmentUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", updated.Name)
	assert.Equal(t, desc, updated.Description)

	got, err := s.GetDepartment(ctx, cardio.ID)
	require.NoError(t, err)
	assert.Equal(t, desc, got.Description)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.DeleteDepartment(ctx, cardio.ID))
	_, err = s.GetDepartment(ctx, cardio.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, s.DeleteDepartment(ctx, cardio.ID), types.ErrNotFound)

	_, err = s.UpdateDepartment(ctx, types.NewDepartmentID(), DepartmentUpdate{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFormulas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dept, err := s.CreateDepartment(ctx, DepartmentInput{Name: "General"})
	require.NoError(t, err)

	_, err = s.CreateFormula(ctx, FormulaInput{DepartmentID: types.NewDepartmentID(), Name: "BMI", Document: bmiDocument(t)})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.CreateFormula(ctx, FormulaInput{DepartmentID: dept.ID, Name: "BMI"})
	assert.ErrorIs(t, err, types.ErrInvalidRecord, "missing document")

	f, err := s.CreateFormula(ctx, FormulaInput{DepartmentID: dept.ID, Name: "BMI", Document: bmiDocument(t)})
	require.NoError(t, err)
	assert.Contains(t, f.RawText, "formula: weight / (height * height)", "empty raw text is rendered from the document")

	got, err := s.GetFormula(ctx, f.ID)
	require.NoError(t, err)
	doc, err := got.Document()
	require.NoError(t, err)
	res, err := rules.Evaluate(doc, types.Inputs{"weight": 70, "height": 1.75})
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.Equal(t, 22.86, *res.Result)

	withDept, err := s.GetDepartment(ctx, dept.ID)
	require.NoError(t, err)
	require.Len(t, withDept.Formulas, 1)
	assert.Equal(t, "BMI", withDept.Formulas[0].Name)

	other, err := s.CreateDepartment(ctx, DepartmentInput{Name: "Other"})
	require.NoError(t, err)
	_, err = s.CreateFormula(ctx, FormulaInput{DepartmentID: other.ID, Name: "Copy", Document: bmiDocument(t), RawText: "kept"})
	require.NoError(t, err)

	all, err := s.ListFormulas(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	scoped, err := s.ListFormulas(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "kept", scoped[0].RawText)

	name := "Body Mass Index"
	updated, err := s.UpdateFormula(ctx, f.ID, FormulaUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, f.RawText, updated.RawText)

	require.NoError(t, s.DeleteDepartment(ctx, dept.ID))
	_, err = s.GetFormula(ctx, f.ID)
	assert.ErrorIs(t, err, types.ErrNotFound, "formulas cascade with their department")

	assert.ErrorIs(t, s.DeleteFormula(ctx, f.ID), types.ErrNotFound)
}

func TestPatientFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPatientFields), n)

	n, err = s.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding a non-empty registry is a no-op")

	fields, err := s.ListPatientFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, len(DefaultPatientFields))
	assert.Equal(t, "age", fields[0].FieldName)

	_, err = s.CreatePatientField(ctx, PatientFieldInput{FieldName: "age", FieldType: types.FieldTypeInt})
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = s.CreatePatientField(ctx, PatientFieldInput{FieldName: "blood pressure"})
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.CreatePatientField(ctx, PatientFieldInput{FieldName: "sbp", FieldType: "decimal"})
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	sbp, err := s.CreatePatientField(ctx, PatientFieldInput{FieldName: "sbp"})
	require.NoError(t, err)
	assert.Equal(t, "sbp", sbp.Label)
	assert.Equal(t, types.FieldTypeString, sbp.FieldType)

	ft := types.FieldTypeInt
	label := "收縮壓"
	updated, err := s.UpdatePatientField(ctx, sbp.ID, PatientFieldUpdate{FieldType: &ft, Label: &label})
	require.NoError(t, err)
	assert.Equal(t, types.FieldTypeInt, updated.FieldType)
	assert.Equal(t, label, updated.Label)

	require.NoError(t, s.DeletePatientField(ctx, sbp.ID))
	assert.ErrorIs(t, s.DeletePatientField(ctx, sbp.ID), types.ErrNotFound)
	_, err = s.UpdatePatientField(ctx, sbp.ID, PatientFieldUpdate{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
