package types

import (
	"time"

	"github.com/google/uuid"
)

// NewDepartmentID generates a UUIDv7 department identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDepartmentID() DepartmentID {
	return DepartmentID(uuid.Must(uuid.NewV7()).String())
}

// NewFormulaID generates a UUIDv7 formula identifier.
func NewFormulaID() FormulaID {
	return FormulaID(uuid.Must(uuid.NewV7()).String())
}

// NewPatientFieldID generates a UUIDv7 patient field identifier.
func NewPatientFieldID() PatientFieldID {
	return PatientFieldID(uuid.Must(uuid.NewV7()).String())
}

// ParseDepartmentID validates and converts a string to DepartmentID.
// Rejects malformed UUIDs so path parameters never reach the database unchecked.
func ParseDepartmentID(s string) (DepartmentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return DepartmentID(s), nil
}

// ParseFormulaID validates and converts a string to FormulaID.
func ParseFormulaID(s string) (FormulaID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return FormulaID(s), nil
}

// ParsePatientFieldID validates and converts a string to PatientFieldID.
func ParsePatientFieldID(s string) (PatientFieldID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return PatientFieldID(s), nil
}

// IDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func IDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
