package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/organization/domain"
	"github.com/smallbiznis/schemashift/internal/organization/repository"
	"github.com/smallbiznis/schemashift/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var fixtureDDL = []string{
	`CREATE TABLE users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, organization_id TEXT)`,
	`CREATE TABLE organizations (id TEXT PRIMARY KEY, name TEXT NOT NULL, plan TEXT NOT NULL DEFAULT 'free')`,
	`CREATE TABLE teams (id TEXT PRIMARY KEY, organization_id TEXT NOT NULL, name TEXT NOT NULL)`,
	`CREATE TABLE team_memberships (id TEXT PRIMARY KEY, team_id TEXT NOT NULL, user_id TEXT NOT NULL, role TEXT)`,
}

func setup(t *testing.T, ddl []string) (*gorm.DB, domain.Service) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	cfg := config.Config{Backfill: config.DefaultBackfillConfig()}
	return conn, NewService(conn, repository.NewRepository(conn), cfg, zaptest.NewLogger(t))
}

func TestVerifyReportsGaps(t *testing.T) {
	conn, svc := setup(t, fixtureDDL)
	require.NoError(t, conn.Exec(`INSERT INTO organizations (id, name) VALUES ('o1', 'One'), ('o2', 'Two'), ('o3', 'Three')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO teams (id, organization_id, name) VALUES
		('t1', 'o1', 'primary_team'), ('t2', 'o2', 'ops'), ('t3', 'o3', 'primary_team')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email, organization_id) VALUES ('u1', 'one@example.com', 'o1'), ('u2', 'two@example.com', NULL)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO team_memberships (id, team_id, user_id, role) VALUES ('m1', 't1', 'u1', 'lead')`).Error)

	report, err := svc.Verify(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Complete())
	assert.EqualValues(t, 2, report.Users)
	assert.EqualValues(t, 1, report.UsersWithoutOrganization)
	assert.EqualValues(t, 1, report.PrimaryTeamsWithoutMember)
	assert.EqualValues(t, 1, report.OrganizationsWithoutTeam)
	assert.EqualValues(t, 1, report.UsersWithoutMembership)
	assert.Equal(t, []string{"two@example.com"}, report.Unlinked)
}

func TestVerifyIgnoresPreexistingOrganizations(t *testing.T) {
	conn, svc := setup(t, fixtureDDL)
	// o1 and o2 were derived for a and b; c was already linked to o3
	require.NoError(t, conn.Exec(`INSERT INTO organizations (id, name) VALUES ('o1', 'Acme'), ('o2', 'Jo Lin Org'), ('o3', 'Existing')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO teams (id, organization_id, name) VALUES ('t1', 'o1', 'primary_team'), ('t2', 'o2', 'primary_team')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email, organization_id) VALUES
		('a', 'a@example.com', 'o1'), ('b', 'b@example.com', 'o2'), ('c', 'c@example.com', 'o3')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO team_memberships (id, team_id, user_id, role) VALUES
		('m1', 't1', 'a', 'lead'), ('m2', 't2', 'b', 'lead')`).Error)

	report, err := svc.Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Complete())
	assert.EqualValues(t, 0, report.PrimaryTeamsWithoutMember)
	assert.EqualValues(t, 1, report.OrganizationsWithoutTeam)
	assert.EqualValues(t, 1, report.UsersWithoutMembership)
}

func TestVerifyCompleteGraph(t *testing.T) {
	conn, svc := setup(t, fixtureDDL)
	require.NoError(t, conn.Exec(`INSERT INTO organizations (id, name) VALUES ('o1', 'One')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO teams (id, organization_id, name) VALUES ('t1', 'o1', 'primary_team')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email, organization_id) VALUES ('u1', 'one@example.com', 'o1')`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO team_memberships (id, team_id, user_id, role) VALUES ('m1', 't1', 'u1', 'lead')`).Error)

	report, err := svc.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Empty(t, report.Unlinked)
}

func TestVerifyBeforeSchemaExists(t *testing.T) {
	_, svc := setup(t, fixtureDDL[:1])

	_, err := svc.Verify(context.Background())
	assert.ErrorIs(t, err, domain.ErrSchemaNotReady)
}
