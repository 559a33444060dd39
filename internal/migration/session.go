package migration

import (
	"context"

	backfilldomain "github.com/smallbiznis/schemashift/internal/backfill/domain"
	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Session is what a unit step works with. Every collaborator is bound to the
// unit's transaction.
type Session struct {
	Tx          *gorm.DB
	Catalog     schemadomain.Catalog
	Inspector   schemadomain.Inspector
	Applier     schemadomain.Applier
	Constraints schemadomain.ConstraintManager
	Backfill    backfilldomain.Executor
	Tightener   backfilldomain.Tightener

	Plan          backfilldomain.Plan
	UUIDExtension string
	Log           *zap.Logger

	details map[string]any
	// recorded holds the details of the unit's previous ledger entry.
	recorded map[string]any
}

// Annotate stores a value in the unit's ledger details.
func (s *Session) Annotate(key string, value any) {
	if s.details == nil {
		s.details = map[string]any{}
	}
	s.details[key] = value
}

// Exec runs raw SQL on the unit's transaction.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) error {
	return s.Tx.WithContext(ctx).Exec(sql, args...).Error
}

// Recorded returns a detail stored by the unit's previous step, typically the
// forward step when reverting.
func (s *Session) Recorded(key string) (any, bool) {
	value, ok := s.recorded[key]
	return value, ok
}

// RecordedStrings is Recorded for a list of strings. Details come back from
// the ledger as decoded JSON, so both []string and []any are accepted.
func (s *Session) RecordedStrings(key string) ([]string, bool) {
	value, ok := s.Recorded(key)
	if !ok {
		return nil, false
	}
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}
