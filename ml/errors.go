package ml

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField is returned when a required record field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField is returned when a field cannot be coerced or is out of range.
	ErrInvalidField = errors.New("invalid field value")
	// ErrUnknownCategory is returned for categorical labels the schema does not know.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrSchema marks a schema that cannot produce a vector for a record.
	ErrSchema = errors.New("encoding schema error")
	// ErrShapeMismatch is returned when a vector width differs from what a model or scaler was fitted on.
	ErrShapeMismatch = errors.New("feature width mismatch")
	// ErrUnsupportedArtifact is returned for artifact types the loader does not know.
	ErrUnsupportedArtifact = errors.New("unsupported artifact type")
)

// FieldError carries the offending field for client-facing reporting.
type FieldError struct {
	Field   string
	Value   string
	Allowed []string
	Err     error
}

func (e *FieldError) Error() string {
	switch {
	case len(e.Allowed) > 0:
		return fmt.Sprintf("%s: %s=%q (allowed: %s)", e.Err, e.Field, e.Value, strings.Join(e.Allowed, ", "))
	case e.Value != "":
		return fmt.Sprintf("%s: %s=%q", e.Err, e.Field, e.Value)
	default:
		return fmt.Sprintf("%s: %s", e.Err, e.Field)
	}
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// MissingFieldsError lists every required field absent from a record.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingField
}

func shapeError(what string, want, got int) error {
	return fmt.Errorf("%w: %s expects %d features, got %d", ErrShapeMismatch, what, want, got)
}
