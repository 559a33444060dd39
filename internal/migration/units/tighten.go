package units

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
)

// requireUserOrganization runs after the backfill unit committed.
func requireUserOrganization() migration.Unit {
	return migration.Unit{
		Version: 20240503091000,
		Name:    "require user organization",
		Up: func(ctx context.Context, s *migration.Session) error {
			return s.Tightener.Tighten(ctx, s.Plan.Subjects.Table, s.Plan.Subjects.LinkColumn,
				domain.ColumnSpec{Type: domain.TypeUUID})
		},
		Down: func(ctx context.Context, s *migration.Session) error {
			return s.Applier.ChangeColumnType(ctx, s.Plan.Subjects.Table, s.Plan.Subjects.LinkColumn,
				domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true})
		},
	}
}
