package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

// DefaultPatientFields seeds an empty registry.
var DefaultPatientFields = []PatientFieldInput{
	{FieldName: "age", Label: "年齡", FieldType: types.FieldTypeInt},
	{FieldName: "height", Label: "身高 (m)", FieldType: types.FieldTypeFloat},
	{FieldName: "weight", Label: "體重 (kg)", FieldType: types.FieldTypeFloat},
	{FieldName: "cholesterol", Label: "膽固醇", FieldType: types.FieldTypeInt},
	{FieldName: "has_disease", Label: "是否有疾病", FieldType: types.FieldTypeBoolean},
}

// PatientFieldInput creates a patient field.
type PatientFieldInput struct {
	FieldName string `json:"field_name"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"`
}

// PatientFieldUpdate changes only the non-nil fields.
type PatientFieldUpdate struct {
	FieldName *string `json:"field_name"`
	Label     *string `json:"label"`
	FieldType *string `json:"field_type"`
}

func validatePatientField(f *types.PatientField) error {
	f.FieldName = strings.TrimSpace(f.FieldName)
	if !rules.ValidIdentifier(f.FieldName) {
		return fmt.Errorf("%w: field_name %q is not a valid identifier", types.ErrInvalidRecord, f.FieldName)
	}
	if strings.TrimSpace(f.Label) == "" {
		f.Label = f.FieldName
	}
	if f.FieldType == "" {
		f.FieldType = types.FieldTypeString
	}
	if !types.ValidFieldType(f.FieldType) {
		return fmt.Errorf("%w: field_type %q", types.ErrInvalidRecord, f.FieldType)
	}
	return nil
}

// ListPatientFields returns the registry in creation order.
func (s *Store) ListPatientFields(ctx context.Context) ([]types.PatientField, error) {
	fields := []types.PatientField{}
	if err := s.queries.Select(ctx, "list-patient-fields", &fields); err != nil {
		return nil, fmt.Errorf("list patient fields: %w", err)
	}
	return fields, nil
}

// CreatePatientField inserts a field. A taken field_name returns ErrConflict.
func (s *Store) CreatePatientField(ctx context.Context, in PatientFieldInput) (*types.PatientField, error) {
	f := &types.PatientField{
		ID:        types.NewPatientFieldID(),
		FieldName: in.FieldName,
		Label:     in.Label,
		FieldType: in.FieldType,
		CreatedAt: s.now(),
	}
	if err := validatePatientField(f); err != nil {
		return nil, err
	}

	_, err := s.queries.Exec(ctx, "create-patient-field", f.ID, f.FieldName, f.Label, f.FieldType, f.CreatedAt)
	if err != nil {
		return nil, mapWriteError("create patient field", err)
	}
	return f, nil
}

// UpdatePatientField applies a partial update.
func (s *Store) UpdatePatientField(ctx context.Context, id types.PatientFieldID, up PatientFieldUpdate) (*types.PatientField, error) {
	var f types.PatientField
	if err := s.queries.Get(ctx, "get-patient-field", &f, id); err != nil {
		return nil, mapReadError("patient field", err)
	}

	if up.FieldName != nil {
		f.FieldName = *up.FieldName
	}
	if up.Label != nil {
		f.Label = *up.Label
	}
	if up.FieldType != nil {
		f.FieldType = *up.FieldType
	}
	if err := validatePatientField(&f); err != nil {
		return nil, err
	}

	res, err := s.queries.Exec(ctx, "update-patient-field", f.FieldName, f.Label, f.FieldType, id)
	if err != nil {
		return nil, mapWriteError("update patient field", err)
	}
	if err := requireAffected(res, "patient field"); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeletePatientField removes one field.
func (s *Store) DeletePatientField(ctx context.Context, id types.PatientFieldID) error {
	res, err := s.queries.Exec(ctx, "delete-patient-field", id)
	if err != nil {
		return mapWriteError("delete patient field", err)
	}
	return requireAffected(res, "patient field")
}

// SeedDefaults inserts DefaultPatientFields when the registry is empty and
// returns the number of fields inserted.
func (s *Store) SeedDefaults(ctx context.Context) (int, error) {
	var count int
	if err := s.queries.Get(ctx, "count-patient-fields", &count); err != nil {
		return 0, fmt.Errorf("count patient fields: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, in := range DefaultPatientFields {
		if _, err := s.CreatePatientField(ctx, in); err != nil {
			return 0, fmt.Errorf("seed %s: %w", in.FieldName, err)
		}
	}

	s.logger.Info().Int("fields", len(DefaultPatientFields)).Msg("seeded default patient fields")
	return len(DefaultPatientFields), nil
}
