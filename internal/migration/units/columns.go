package units

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/zap"
)

const (
	addedColumnsKey = "added_columns"
	addedIndexesKey = "added_indexes"
)

// addColumns adds the missing columns and records which ones it created.
// Columns that already existed are left untouched.
func addColumns(ctx context.Context, s *migration.Session, table string, columns ...domain.Column) error {
	snap, err := s.Inspector.Describe(ctx, table)
	if err != nil {
		return err
	}

	added := []string{}
	for _, col := range columns {
		existed := snap.HasColumn(col.Name)
		if snap, err = s.Applier.AddColumnIfAbsent(ctx, snap, col.Name, col.Spec); err != nil {
			return err
		}
		if !existed {
			added = append(added, col.Name)
		}
	}
	s.Annotate(addedColumnsKey, added)
	return nil
}

// removeAddedColumns removes only the columns the forward step created,
// newest first.
func removeAddedColumns(ctx context.Context, s *migration.Session, table string) error {
	added, ok := s.RecordedStrings(addedColumnsKey)
	if !ok {
		s.Log.Warn("no record of added columns, keeping them", zap.String("table", table))
		return nil
	}

	snap, err := s.Inspector.Describe(ctx, table)
	if err != nil {
		return err
	}
	for i := len(added) - 1; i >= 0; i-- {
		if snap, err = s.Applier.RemoveColumnIfPresent(ctx, snap, added[i]); err != nil {
			return err
		}
	}
	s.Annotate("removed_columns", added)
	return nil
}

// addIndexes creates the missing indexes and records which ones it created.
func addIndexes(ctx context.Context, s *migration.Session, indexes ...domain.Index) error {
	added := []string{}
	for _, idx := range indexes {
		outcome, err := s.Constraints.AddIndexIfAbsent(ctx, idx)
		if err != nil {
			return err
		}
		if outcome == domain.OutcomeApplied {
			added = append(added, idx.Name)
		}
	}
	s.Annotate(addedIndexesKey, added)
	return nil
}

func removeAddedIndexes(ctx context.Context, s *migration.Session, table string) error {
	added, ok := s.RecordedStrings(addedIndexesKey)
	if !ok {
		s.Log.Warn("no record of added indexes, keeping them", zap.String("table", table))
		return nil
	}
	for _, name := range added {
		if _, err := s.Constraints.DropIndexIfPresent(ctx, table, name); err != nil {
			return err
		}
	}
	return nil
}
