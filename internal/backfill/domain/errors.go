package domain

import (
	"fmt"

	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
)

// BackfillError reports the step that failed. The whole backfill has been
// rolled back when it is returned.
type BackfillError struct {
	Step      string
	Integrity bool
	Err       error
}

func (e *BackfillError) Error() string {
	return fmt.Sprintf("backfill %s: %v", e.Step, e.Err)
}

func (e *BackfillError) Unwrap() []error {
	if e.Integrity {
		return []error{schemadomain.ErrIntegrityViolation, e.Err}
	}
	return []error{e.Err}
}

// TighteningError reports a column that cannot be made mandatory because
// rows still hold NULL. Residual is -1 when the store rejected the change
// without a prior count seeing the rows.
type TighteningError struct {
	Table    string
	Column   string
	Residual int64
	Err      error
}

func (e *TighteningError) Error() string {
	if e.Residual < 0 {
		return fmt.Sprintf("cannot make %s.%s mandatory: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("cannot make %s.%s mandatory: %d rows still null", e.Table, e.Column, e.Residual)
}

func (e *TighteningError) Unwrap() []error {
	if e.Err != nil {
		return []error{schemadomain.ErrIntegrityViolation, e.Err}
	}
	return []error{schemadomain.ErrIntegrityViolation}
}
