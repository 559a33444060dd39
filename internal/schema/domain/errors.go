package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTableMissing       = errors.New("table_missing")
	ErrColumnMissing      = errors.New("column_missing")
	ErrInvalidIdentifier  = errors.New("invalid_identifier")
	ErrInvalidColumnSpec  = errors.New("invalid_column_spec")
	ErrDefinitionDrift    = errors.New("definition_drift")
	ErrIntegrityViolation = errors.New("integrity_violation")
	ErrUnsupportedDialect = errors.New("unsupported_dialect")
)

// IdentifierError reports a table, column or constraint name that cannot be
// quoted safely.
type IdentifierError struct {
	Name string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q", e.Name)
}

func (e *IdentifierError) Unwrap() error { return ErrInvalidIdentifier }

// DriftError is raised when a guarded operation finds an object under the
// expected name whose definition does not match.
type DriftError struct {
	Kind     string
	Name     string
	Expected string
	Actual   string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("%s %q exists with a different definition: expected %s, found %s",
		e.Kind, e.Name, e.Expected, e.Actual)
}

func (e *DriftError) Unwrap() error { return ErrDefinitionDrift }
