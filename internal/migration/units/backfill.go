package units

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"go.uber.org/zap"
)

func userOrganizationKey(s *migration.Session) domain.ForeignKey {
	return domain.ForeignKey{
		Name:      "fk_users_organization",
		Table:     s.Plan.Subjects.Table,
		Column:    s.Plan.Subjects.LinkColumn,
		RefTable:  s.Plan.Organization.Table,
		RefColumn: s.Plan.Organization.Key,
		OnUpdate:  domain.ActionCascade,
		OnDelete:  domain.ActionSetNull,
	}
}

func userOrganizationIndex(s *migration.Session) domain.Index {
	return domain.Index{
		Name:    "idx_users_organization_id",
		Table:   s.Plan.Subjects.Table,
		Columns: []string{s.Plan.Subjects.LinkColumn},
	}
}

// backfillUserOrganizations links every user to an organization of its own,
// creating the organization, its primary team and the membership. Reverting
// drops the foreign key, the index and the columns this unit added. Derived
// rows and columns that existed beforehand are kept.
func backfillUserOrganizations() migration.Unit {
	return migration.Unit{
		Version: 20240503090000,
		Name:    "backfill user organizations",
		Up: func(ctx context.Context, s *migration.Session) error {
			subjects := s.Plan.Subjects
			columns := []domain.Column{
				{Name: subjects.LinkColumn, Spec: domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true}},
			}
			if subjects.RoleColumn != "" {
				columns = append(columns, domain.Column{Name: subjects.RoleColumn, Spec: optionalText()})
			}
			if err := addColumns(ctx, s, subjects.Table, columns...); err != nil {
				return err
			}

			if _, err := s.Constraints.AddForeignKeyIfAbsent(ctx, userOrganizationKey(s)); err != nil {
				return err
			}
			if _, err := s.Constraints.AddIndexIfAbsent(ctx, userOrganizationIndex(s)); err != nil {
				return err
			}

			report, err := s.Backfill.Backfill(ctx, s.Plan)
			if err != nil {
				return err
			}
			for key, value := range report.Details() {
				s.Annotate(key, value)
			}
			s.Log.Info("users linked to organizations",
				zap.Int64("candidates", report.Candidates),
				zap.Int64("organizations_created", report.OrganizationsCreated),
			)
			return nil
		},
		Down: func(ctx context.Context, s *migration.Session) error {
			subjects := s.Plan.Subjects
			if _, err := s.Constraints.DropIndexIfPresent(ctx, subjects.Table, userOrganizationIndex(s).Name); err != nil {
				return err
			}
			if _, err := s.Constraints.DropForeignKeyIfPresent(ctx, subjects.Table, userOrganizationKey(s).Name); err != nil {
				return err
			}
			return removeAddedColumns(ctx, s, subjects.Table)
		},
	}
}
