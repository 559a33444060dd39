package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/smallbiznis/schemashift/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func setupCatalog(t *testing.T) (*gorm.DB, domain.Catalog) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	catalog, err := New(conn)
	require.NoError(t, err)
	require.Equal(t, DialectSQLite, catalog.Dialect())
	return conn, catalog
}

func organizationsDef() domain.TableDef {
	return domain.TableDef{
		Name: "organizations",
		Columns: []domain.Column{
			{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
			{Name: "name", Spec: domain.ColumnSpec{Type: domain.TypeText}},
			{Name: "plan", Spec: domain.ColumnSpec{Type: domain.TypeText, Default: "'free'"}},
		},
		PrimaryKey: []string{"id"},
	}
}

func usersDef() domain.TableDef {
	return domain.TableDef{
		Name: "users",
		Columns: []domain.Column{
			{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID}},
			{Name: "email", Spec: domain.ColumnSpec{Type: domain.TypeText}},
			{Name: "organization_id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true}},
		},
		PrimaryKey: []string{"id"},
		Uniques:    [][]string{{"email"}},
	}
}

func TestDescribeMissingTable(t *testing.T) {
	_, catalog := setupCatalog(t)

	_, err := catalog.DescribeTable(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTableMissing))
}

func TestCreateAndDescribeTable(t *testing.T) {
	ctx := context.Background()
	conn, catalog := setupCatalog(t)

	require.NoError(t, catalog.CreateTable(ctx, organizationsDef()))
	require.NoError(t, conn.Exec(`INSERT INTO organizations (name) VALUES ('Acme')`).Error)

	cols, err := catalog.DescribeTable(ctx, "organizations")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey)
	assert.False(t, cols[0].Nullable)
	assert.Equal(t, "'free'", cols[2].Default)

	var row struct {
		ID   string
		Plan string
	}
	require.NoError(t, conn.Raw(`SELECT id, plan FROM organizations`).Scan(&row).Error)
	assert.Regexp(t, uuidPattern, row.ID)
	assert.Equal(t, "free", row.Plan)
}

func TestCreateTableRejectsUnsafeNames(t *testing.T) {
	_, catalog := setupCatalog(t)

	def := organizationsDef()
	def.Name = "organizations; DROP TABLE users"
	err := catalog.CreateTable(context.Background(), def)
	assert.True(t, errors.Is(err, domain.ErrInvalidIdentifier))

	def = organizationsDef()
	def.Columns[1].Spec.GeneratedUUID = true
	err = catalog.CreateTable(context.Background(), def)
	assert.True(t, errors.Is(err, domain.ErrInvalidColumnSpec))
}

func TestAddColumnNativeAndRebuild(t *testing.T) {
	ctx := context.Background()
	conn, catalog := setupCatalog(t)
	require.NoError(t, catalog.CreateTable(ctx, usersDef()))
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@example.com')`).Error)

	require.NoError(t, catalog.AddColumn(ctx, "users", domain.Column{
		Name: "role", Spec: domain.ColumnSpec{Type: domain.TypeText, Nullable: true},
	}))
	// NOT NULL with a non-constant default needs a rebuild on SQLite.
	require.NoError(t, catalog.AddColumn(ctx, "users", domain.Column{
		Name: "external_ref", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true},
	}))

	var ref string
	require.NoError(t, conn.Raw(`SELECT external_ref FROM users WHERE id = 'u1'`).Scan(&ref).Error)
	assert.Regexp(t, uuidPattern, ref)

	// uniqueness survives the rebuild
	dupErr := conn.Exec(`INSERT INTO users (id, email) VALUES ('u2', 'a@example.com')`).Error
	assert.True(t, db.IsDuplicateKeyErr(dupErr))
}

func TestAlterColumnNotNullFailsOnResidualNulls(t *testing.T) {
	ctx := context.Background()
	conn, catalog := setupCatalog(t)
	require.NoError(t, catalog.CreateTable(ctx, usersDef()))
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@example.com')`).Error)

	err := catalog.AlterColumn(ctx, "users", domain.Column{
		Name: "organization_id", Spec: domain.ColumnSpec{Type: domain.TypeUUID},
	})
	require.Error(t, err)
	assert.True(t, db.IsNotNullViolation(err))

	require.NoError(t, conn.Exec(`UPDATE users SET organization_id = 'o1'`).Error)
	require.NoError(t, catalog.AlterColumn(ctx, "users", domain.Column{
		Name: "organization_id", Spec: domain.ColumnSpec{Type: domain.TypeUUID},
	}))

	cols, err := catalog.DescribeTable(ctx, "users")
	require.NoError(t, err)
	assert.False(t, cols[2].Nullable)

	n, err := catalog.CountRows(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestForeignKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, catalog := setupCatalog(t)
	require.NoError(t, catalog.CreateTable(ctx, organizationsDef()))
	require.NoError(t, catalog.CreateTable(ctx, usersDef()))
	require.NoError(t, catalog.CreateIndex(ctx, domain.Index{
		Name: "idx_users_organization_id", Table: "users", Columns: []string{"organization_id"},
	}))
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@example.com')`).Error)

	fk := domain.ForeignKey{
		Name:      "fk_users_organization",
		Table:     "users",
		Column:    "organization_id",
		RefTable:  "organizations",
		RefColumn: "id",
		OnUpdate:  domain.ActionCascade,
		OnDelete:  domain.ActionSetNull,
	}
	require.NoError(t, catalog.AddForeignKey(ctx, fk))

	got, err := catalog.ForeignKey(ctx, "users", "fk_users_organization")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fk, *got)

	// rows and explicit indexes survive the rebuild
	n, err := catalog.CountRows(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	idx, err := catalog.Index(ctx, "idx_users_organization_id")
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, []string{"organization_id"}, idx.Columns)
	assert.Equal(t, "users", idx.Table)
	assert.False(t, idx.Unique)

	require.NoError(t, catalog.DropForeignKey(ctx, "users", "fk_users_organization"))
	got, err = catalog.ForeignKey(ctx, "users", "fk_users_organization")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIndexLookupMissing(t *testing.T) {
	_, catalog := setupCatalog(t)

	idx, err := catalog.Index(context.Background(), "idx_missing")
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestCountNull(t *testing.T) {
	ctx := context.Background()
	conn, catalog := setupCatalog(t)
	require.NoError(t, catalog.CreateTable(ctx, usersDef()))
	require.NoError(t, conn.Exec(`INSERT INTO users (id, email, organization_id) VALUES ('u1', 'a', NULL), ('u2', 'b', 'o1')`).Error)

	n, err := catalog.CountNull(ctx, "users", "organization_id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteCapabilities(t *testing.T) {
	_, catalog := setupCatalog(t)

	capability, err := catalog.EnsureExtension(context.Background(), "pgcrypto")
	require.NoError(t, err)
	assert.Equal(t, domain.CapabilityUnsupported, capability)

	ok, err := catalog.UUIDAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteDefaultRendering(t *testing.T) {
	assert.Equal(t, "'free'", sqliteDefault("'free'"))
	assert.Equal(t, "0", sqliteDefault("0"))
	assert.Equal(t, "CURRENT_TIMESTAMP", sqliteDefault("CURRENT_TIMESTAMP"))
	assert.Equal(t, "(lower('X'))", sqliteDefault("lower('X')"))
	assert.Equal(t, "", sqliteDefault(""))
}
