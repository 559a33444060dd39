package units

import (
	"context"

	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/smallbiznis/schemashift/internal/schema/domain"
)

func addUserAvatarURL() migration.Unit {
	return migration.Unit{
		Version: 20240501093000,
		Name:    "add user avatar url",
		Up: func(ctx context.Context, s *migration.Session) error {
			if err := addColumns(ctx, s, "users", domain.Column{Name: "avatar_url", Spec: optionalText()}); err != nil {
				return err
			}
			return addIndexes(ctx, s, domain.Index{Name: "idx_users_email", Table: "users", Columns: []string{"email"}})
		},
		Down: func(ctx context.Context, s *migration.Session) error {
			if err := removeAddedIndexes(ctx, s, "users"); err != nil {
				return err
			}
			return removeAddedColumns(ctx, s, "users")
		},
	}
}
