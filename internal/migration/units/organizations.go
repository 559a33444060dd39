package units

import (
	"context"
	"strings"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
)

func organizationTables(plan string, team string) []domain.TableDef {
	uuid := domain.ColumnSpec{Type: domain.TypeUUID}
	return []domain.TableDef{
		{
			Name: "organizations",
			Columns: []domain.Column{
				{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
				{Name: "name", Spec: domain.ColumnSpec{Type: domain.TypeText}},
				{Name: "plan", Spec: domain.ColumnSpec{Type: domain.TypeText, Default: quote(plan)}},
				{Name: "website", Spec: optionalText()},
				{Name: "address", Spec: optionalText()},
				{Name: "country", Spec: optionalText()},
				{Name: "city", Spec: optionalText()},
				{Name: "created_at", Spec: timestamp()},
				{Name: "updated_at", Spec: timestamp()},
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "teams",
			Columns: []domain.Column{
				{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
				{Name: "organization_id", Spec: uuid},
				{Name: "name", Spec: domain.ColumnSpec{Type: domain.TypeText, Default: quote(team)}},
				{Name: "description", Spec: optionalText()},
				{Name: "created_at", Spec: timestamp()},
				{Name: "updated_at", Spec: timestamp()},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []domain.ForeignKey{{
				Name: "fk_teams_organization", Table: "teams", Column: "organization_id",
				RefTable: "organizations", RefColumn: "id",
				OnUpdate: domain.ActionCascade, OnDelete: domain.ActionCascade,
			}},
		},
		{
			Name: "team_memberships",
			Columns: []domain.Column{
				{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
				{Name: "team_id", Spec: uuid},
				{Name: "user_id", Spec: uuid},
				{Name: "organization_id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true}},
				{Name: "role", Spec: domain.ColumnSpec{Type: domain.TypeText, Default: "'member'"}},
				{Name: "created_at", Spec: timestamp()},
				{Name: "updated_at", Spec: timestamp()},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []domain.ForeignKey{
				{
					Name: "fk_team_memberships_team", Table: "team_memberships", Column: "team_id",
					RefTable: "teams", RefColumn: "id",
					OnUpdate: domain.ActionCascade, OnDelete: domain.ActionCascade,
				},
				{
					Name: "fk_team_memberships_user", Table: "team_memberships", Column: "user_id",
					RefTable: "users", RefColumn: "id",
					OnUpdate: domain.ActionCascade, OnDelete: domain.ActionCascade,
				},
				{
					Name: "fk_team_memberships_organization", Table: "team_memberships", Column: "organization_id",
					RefTable: "organizations", RefColumn: "id",
					OnUpdate: domain.ActionCascade, OnDelete: domain.ActionCascade,
				},
			},
			Uniques: [][]string{{"team_id", "user_id"}},
		},
	}
}

func createOrganizationsAndTeams() migration.Unit {
	return migration.Unit{
		Version: 20240502090000,
		Name:    "create organizations and teams",
		Up: func(ctx context.Context, s *migration.Session) error {
			for _, def := range organizationTables(s.Plan.Organization.DefaultPlan, s.Plan.Team.Name) {
				if _, err := s.Applier.CreateTableIfAbsent(ctx, def); err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(ctx context.Context, s *migration.Session) error {
			for _, table := range []string{"team_memberships", "teams", "organizations"} {
				dropped, err := s.Applier.DropTable(ctx, table)
				if err != nil {
					return err
				}
				s.Annotate(table+"_dropped", dropped)
			}
			return nil
		},
	}
}

func quote(literal string) string {
	return "'" + strings.ReplaceAll(literal, "'", "''") + "'"
}
