package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/smallbiznis/schemashift/pkg/db"
)

type inspector struct {
	catalog domain.Catalog
}

func NewInspector(catalog domain.Catalog) domain.Inspector {
	return &inspector{catalog: catalog}
}

// Describe never fails on a missing table; the catalog error is recovered
// here and reported as an Absent snapshot.
func (i *inspector) Describe(ctx context.Context, table string) (domain.TableSnapshot, error) {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return domain.TableSnapshot{}, err
	}

	cols, err := i.catalog.DescribeTable(ctx, table)
	switch {
	case err == nil:
		return domain.Present(table, cols), nil
	case errors.Is(err, domain.ErrTableMissing), db.IsUndefinedTable(err):
		return domain.Absent(table), nil
	default:
		return domain.TableSnapshot{}, err
	}
}
