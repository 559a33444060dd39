// Package units holds the registered schema change units, in Go and SQL.
package units

import (
	"embed"

	"github.com/smallbiznis/schemashift/internal/migration"
	"go.uber.org/fx"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

var Module = fx.Module("units",
	fx.Provide(All),
)

// All returns every unit. The runner orders them by version.
func All() (migration.Units, error) {
	sqlUnits, err := migration.LoadSQLUnits(sqlFiles, "sql")
	if err != nil {
		return nil, err
	}

	units := migration.Units{
		enableUUIDExtension(),
		createUsers(),
		addUserAvatarURL(),
		createOrganizationsAndTeams(),
		backfillUserOrganizations(),
		requireUserOrganization(),
	}
	return append(units, sqlUnits...), nil
}
