package units

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/schemashift/internal/clock"
	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/migration"
	orgrepository "github.com/smallbiznis/schemashift/internal/organization/repository"
	orgservice "github.com/smallbiznis/schemashift/internal/organization/service"
	"github.com/smallbiznis/schemashift/internal/schema/repository"
	"github.com/smallbiznis/schemashift/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var legacyDDL = []string{
	`CREATE TABLE organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		website TEXT,
		address TEXT,
		country TEXT,
		city TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		first_name TEXT,
		last_name TEXT,
		email TEXT NOT NULL UNIQUE,
		company_name TEXT,
		subscription_tier TEXT,
		website TEXT,
		address TEXT,
		country TEXT,
		city TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		organization_id TEXT,
		role TEXT
	)`,
	`INSERT INTO organizations (id, name, plan) VALUES ('org-c', 'Existing', 'pro')`,
	`INSERT INTO users (id, first_name, last_name, email, company_name, organization_id) VALUES
		('user-a', 'Ann', 'Smith', 'a@example.com', 'Acme', NULL),
		('user-b', 'Jo', 'Lin', 'b@example.com', NULL, NULL),
		('user-c', 'Cy', 'Dee', 'c@example.com', 'Existing', 'org-c')`,
}

func newRunner(t *testing.T, conn *gorm.DB) *migration.Runner {
	t.Helper()
	units, err := All()
	require.NoError(t, err)
	r, err := migration.New(conn, units, migration.Options{
		Clock: clock.NewFakeClock(time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)),
		Log:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return r
}

func count(t *testing.T, conn *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Table(table).Count(&n).Error)
	return n
}

func TestAllUnitsAreOrderedAndUnique(t *testing.T) {
	units, err := All()
	require.NoError(t, err)

	r, err := migration.New(mustDB(t), units, migration.Options{})
	require.NoError(t, err)

	ids := make([]string, 0, len(r.Units()))
	for _, u := range r.Units() {
		ids = append(ids, u.ID())
	}
	assert.Equal(t, []string{
		"20240501090000_enable_uuid_extension",
		"20240501091000_create_users",
		"20240501093000_add_user_avatar_url",
		"20240502090000_create_organizations_and_teams",
		"20240502091000_index_team_memberships_user",
		"20240503090000_backfill_user_organizations",
		"20240503091000_require_user_organization",
	}, ids)
}

func mustDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	return conn
}

func TestUpOnEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	conn := mustDB(t)
	r := newRunner(t, conn)

	summary, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, summary.Units, len(r.Units()))

	for _, table := range []string{"users", "organizations", "teams", "team_memberships"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		assert.Equal(t, migration.StateApplied, s.State, s.ID)
	}
	assert.Equal(t, "unsupported", statuses[0].Details["capability"])
	assert.EqualValues(t, 0, statuses[5].Details["candidates"])

	summary, err = r.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.Units)
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	conn := mustDB(t)
	for _, ddl := range legacyDDL {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	r := newRunner(t, conn)

	_, err := r.Up(ctx)
	require.NoError(t, err)

	var names []string
	require.NoError(t, conn.Raw(`SELECT name FROM organizations ORDER BY name`).Scan(&names).Error)
	assert.Equal(t, []string{"Acme", "Existing", "Jo Lin Org"}, names)

	var teams []string
	require.NoError(t, conn.Raw(`SELECT name FROM teams`).Scan(&teams).Error)
	assert.Equal(t, []string{"primary_team", "primary_team"}, teams)
	assert.EqualValues(t, 2, count(t, conn, "team_memberships"))

	type link struct {
		ID             string
		OrganizationID *string
	}
	var links []link
	require.NoError(t, conn.Raw(`SELECT id, organization_id FROM users ORDER BY id`).Scan(&links).Error)
	require.Len(t, links, 3)
	for _, l := range links {
		require.NotNil(t, l.OrganizationID, l.ID)
	}
	assert.Equal(t, "org-c", *links[2].OrganizationID)
	assert.NotEqual(t, *links[0].OrganizationID, *links[1].OrganizationID)

	var roles []string
	require.NoError(t, conn.Raw(`SELECT role FROM team_memberships`).Scan(&roles).Error)
	assert.Equal(t, []string{"lead", "lead"}, roles)

	catalog, err := repository.New(conn)
	require.NoError(t, err)
	cols, err := catalog.DescribeTable(ctx, "users")
	require.NoError(t, err)
	for _, col := range cols {
		if col.Name == "organization_id" {
			assert.False(t, col.Nullable)
		}
	}
	fk, err := catalog.ForeignKey(ctx, "users", "fk_users_organization")
	require.NoError(t, err)
	require.NotNil(t, fk)
	idx, err := catalog.Index(ctx, "idx_users_organization_id")
	require.NoError(t, err)
	require.NotNil(t, idx)

	report, err := orgservice.NewService(conn, orgrepository.NewRepository(conn),
		config.Config{Backfill: config.DefaultBackfillConfig()}, zaptest.NewLogger(t)).Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.EqualValues(t, 0, report.UsersWithoutOrganization)
	assert.EqualValues(t, 1, report.OrganizationsWithoutTeam)

	// reverting tightening and backfill keeps the derived rows and the
	// columns the legacy table already had
	_, err = r.Down(ctx, 2)
	require.NoError(t, err)

	assert.EqualValues(t, 3, count(t, conn, "organizations"))
	assert.EqualValues(t, 2, count(t, conn, "teams"))
	assert.EqualValues(t, 2, count(t, conn, "team_memberships"))
	assert.True(t, conn.Migrator().HasColumn("users", "organization_id"))
	assert.True(t, conn.Migrator().HasColumn("users", "role"))
	var linked int64
	require.NoError(t, conn.Table("users").Where("organization_id IS NOT NULL").Count(&linked).Error)
	assert.EqualValues(t, 3, linked)
	idx, err = catalog.Index(ctx, "idx_users_organization_id")
	require.NoError(t, err)
	assert.Nil(t, idx)
	fk, err = catalog.ForeignKey(ctx, "users", "fk_users_organization")
	require.NoError(t, err)
	assert.Nil(t, fk)

	// the next up finds nothing left to backfill
	summary, err := r.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, summary.Units, 2)
}

func TestDownRemovesColumnsItAdded(t *testing.T) {
	ctx := context.Background()
	conn := mustDB(t)
	r := newRunner(t, conn)

	_, err := r.Up(ctx)
	require.NoError(t, err)
	require.True(t, conn.Migrator().HasColumn("users", "organization_id"))

	_, err = r.Down(ctx, 2)
	require.NoError(t, err)
	assert.False(t, conn.Migrator().HasColumn("users", "organization_id"))
	assert.False(t, conn.Migrator().HasColumn("users", "role"))

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"organization_id", "role"}, statuses[5].Details["removed_columns"])
}

func TestUpKeepsPreexistingAvatarColumn(t *testing.T) {
	ctx := context.Background()
	conn := mustDB(t)
	require.NoError(t, conn.Exec(`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		avatar_url TEXT
	)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email, avatar_url) VALUES ('u1', 'u1@example.com', 'https://img.test/u1')`).Error)
	r := newRunner(t, conn)

	_, err := r.Up(ctx)
	require.NoError(t, err)

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	avatar := statuses[2]
	require.Equal(t, "20240501093000_add_user_avatar_url", avatar.ID)
	assert.Equal(t, migration.StateApplied, avatar.State)
	assert.Equal(t, []any{}, avatar.Details["added_columns"])
	assert.Equal(t, []any{"idx_users_email"}, avatar.Details["added_indexes"])

	// reverting everything down to the avatar unit keeps the column and its data
	_, err = r.Down(ctx, 5)
	require.NoError(t, err)
	var url string
	require.NoError(t, conn.Raw(`SELECT avatar_url FROM users WHERE id = 'u1'`).Scan(&url).Error)
	assert.Equal(t, "https://img.test/u1", url)
	catalog, err := repository.New(conn)
	require.NoError(t, err)
	idx, err := catalog.Index(ctx, "idx_users_email")
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestTighteningFailsWhenUsersAppearUnlinked(t *testing.T) {
	ctx := context.Background()
	conn := mustDB(t)
	units, err := All()
	require.NoError(t, err)

	// stop after the backfill, then let an external writer add an unlinked user
	head := units[:0:0]
	for _, u := range units {
		if u.Version != requireUserOrganization().Version {
			head = append(head, u)
		}
	}
	first, err := migration.New(conn, head, migration.Options{Log: zaptest.NewLogger(t)})
	require.NoError(t, err)
	_, err = first.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email) VALUES ('late', 'late@example.com')`).Error)

	r := newRunner(t, conn)
	_, err = r.Up(ctx)
	require.Error(t, err)

	var unitErr *migration.UnitError
	require.ErrorAs(t, err, &unitErr)
	assert.Equal(t, "20240503091000_require_user_organization", unitErr.Unit)
	assert.True(t, conn.Migrator().HasColumn("users", "organization_id"))

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	last := statuses[len(statuses)-1]
	assert.Equal(t, migration.StateFailed, last.State)
	assert.Contains(t, last.Error, "organization_id")
}
