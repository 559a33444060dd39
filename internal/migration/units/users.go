package units

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
)

func usersTable() domain.TableDef {
	return domain.TableDef{
		Name: "users",
		Columns: []domain.Column{
			{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
			{Name: "first_name", Spec: optionalText()},
			{Name: "last_name", Spec: optionalText()},
			{Name: "email", Spec: domain.ColumnSpec{Type: domain.TypeText}},
			{Name: "company_name", Spec: optionalText()},
			{Name: "subscription_tier", Spec: optionalText()},
			{Name: "website", Spec: optionalText()},
			{Name: "address", Spec: optionalText()},
			{Name: "country", Spec: optionalText()},
			{Name: "city", Spec: optionalText()},
			{Name: "created_at", Spec: timestamp()},
			{Name: "updated_at", Spec: timestamp()},
		},
		PrimaryKey: []string{"id"},
		Uniques:    [][]string{{"email"}},
	}
}

func createUsers() migration.Unit {
	return migration.Unit{
		Version: 20240501091000,
		Name:    "create users",
		Up: func(ctx context.Context, s *migration.Session) error {
			_, err := s.Applier.CreateTableIfAbsent(ctx, usersTable())
			return err
		},
		Down: func(ctx context.Context, s *migration.Session) error {
			dropped, err := s.Applier.DropTable(ctx, "users")
			s.Annotate("users_dropped", dropped)
			return err
		},
	}
}

func optionalText() domain.ColumnSpec {
	return domain.ColumnSpec{Type: domain.TypeText, Nullable: true}
}

func timestamp() domain.ColumnSpec {
	return domain.ColumnSpec{Type: domain.TypeTimestamp, Nullable: true, Default: "CURRENT_TIMESTAMP"}
}
