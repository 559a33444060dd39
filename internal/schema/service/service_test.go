package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/smallbiznis/schemashift/internal/schema/repository"
	"github.com/smallbiznis/schemashift/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	catalog     domain.Catalog
	inspector   domain.Inspector
	applier     domain.Applier
	constraints domain.ConstraintManager
}

func setup(t *testing.T, policy domain.PreservationPolicy) fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	catalog, err := repository.New(conn)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	return fixture{
		db:          conn,
		catalog:     catalog,
		inspector:   NewInspector(catalog),
		applier:     NewApplier(catalog, policy, log, nil),
		constraints: NewConstraintManager(catalog, log, nil),
	}
}

func organizations() domain.TableDef {
	return domain.TableDef{
		Name: "organizations",
		Columns: []domain.Column{
			{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID, GeneratedUUID: true}},
			{Name: "name", Spec: domain.ColumnSpec{Type: domain.TypeText}},
		},
		PrimaryKey: []string{"id"},
	}
}

func users() domain.TableDef {
	return domain.TableDef{
		Name: "users",
		Columns: []domain.Column{
			{Name: "id", Spec: domain.ColumnSpec{Type: domain.TypeUUID}},
			{Name: "email", Spec: domain.ColumnSpec{Type: domain.TypeText}},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestDescribeMissingTableIsAbsent(t *testing.T) {
	f := setup(t, domain.PreserveData)

	snap, err := f.inspector.Describe(context.Background(), "users")
	require.NoError(t, err)
	assert.False(t, snap.Present())
	assert.Equal(t, "users", snap.Table())
}

func TestDescribeRejectsUnsafeTable(t *testing.T) {
	f := setup(t, domain.PreserveData)

	_, err := f.inspector.Describe(context.Background(), "users--")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestAddColumnIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	snap, err := f.applier.CreateTableIfAbsent(ctx, users())
	require.NoError(t, err)
	require.True(t, snap.Present())

	spec := domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true}
	first, err := f.applier.AddColumnIfAbsent(ctx, snap, "organization_id", spec)
	require.NoError(t, err)
	assert.True(t, first.HasColumn("organization_id"))

	second, err := f.applier.AddColumnIfAbsent(ctx, first, "organization_id", spec)
	require.NoError(t, err)
	assert.Equal(t, first.ColumnNames(), second.ColumnNames())

	live, err := f.inspector.Describe(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "id", "organization_id"}, live.ColumnNames())

	removed, err := f.applier.RemoveColumnIfPresent(ctx, live, "organization_id")
	require.NoError(t, err)
	assert.False(t, removed.HasColumn("organization_id"))

	again, err := f.applier.RemoveColumnIfPresent(ctx, removed, "organization_id")
	require.NoError(t, err)
	assert.Equal(t, removed.ColumnNames(), again.ColumnNames())
}

func TestAddColumnOnAbsentTable(t *testing.T) {
	f := setup(t, domain.PreserveData)

	_, err := f.applier.AddColumnIfAbsent(context.Background(), domain.Absent("users"), "role",
		domain.ColumnSpec{Type: domain.TypeText, Nullable: true})
	assert.ErrorIs(t, err, domain.ErrTableMissing)
}

func TestCreateTableIfAbsentTwice(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	_, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`INSERT INTO organizations (name) VALUES ('Acme')`).Error)

	snap, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)
	assert.True(t, snap.Present())

	n, err := f.catalog.CountRows(ctx, "organizations")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDropTablePreservesNonEmptyTable(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	_, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`INSERT INTO organizations (name) VALUES ('Acme')`).Error)

	dropped, err := f.applier.DropTable(ctx, "organizations")
	require.NoError(t, err)
	assert.False(t, dropped)

	snap, err := f.inspector.Describe(ctx, "organizations")
	require.NoError(t, err)
	assert.True(t, snap.Present())
}

func TestDropTableDropsEmptyTableUnderPreserve(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	_, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)

	dropped, err := f.applier.DropTable(ctx, "organizations")
	require.NoError(t, err)
	assert.True(t, dropped)

	dropped, err = f.applier.DropTable(ctx, "organizations")
	require.NoError(t, err)
	assert.False(t, dropped)
}

func TestDropTableDiscardPolicy(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.DiscardData)

	_, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`INSERT INTO organizations (name) VALUES ('Acme')`).Error)

	dropped, err := f.applier.DropTable(ctx, "organizations")
	require.NoError(t, err)
	assert.True(t, dropped)
}

func TestForeignKeyIfAbsent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	_, err := f.applier.CreateTableIfAbsent(ctx, organizations())
	require.NoError(t, err)
	snap, err := f.applier.CreateTableIfAbsent(ctx, users())
	require.NoError(t, err)
	_, err = f.applier.AddColumnIfAbsent(ctx, snap, "organization_id", domain.ColumnSpec{Type: domain.TypeUUID, Nullable: true})
	require.NoError(t, err)

	fk := domain.ForeignKey{
		Name: "fk_users_organization", Table: "users", Column: "organization_id",
		RefTable: "organizations", RefColumn: "id",
		OnUpdate: domain.ActionCascade, OnDelete: domain.ActionSetNull,
	}

	outcome, err := f.constraints.AddForeignKeyIfAbsent(ctx, fk)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.constraints.AddForeignKeyIfAbsent(ctx, fk)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)

	drifted := fk
	drifted.OnDelete = domain.ActionCascade
	_, err = f.constraints.AddForeignKeyIfAbsent(ctx, drifted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDefinitionDrift))

	outcome, err = f.constraints.DropForeignKeyIfPresent(ctx, "users", fk.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.constraints.DropForeignKeyIfPresent(ctx, "users", fk.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)
}

func TestIndexIfAbsent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	_, err := f.applier.CreateTableIfAbsent(ctx, users())
	require.NoError(t, err)

	idx := domain.Index{Name: "idx_users_email", Table: "users", Columns: []string{"email"}}

	outcome, err := f.constraints.AddIndexIfAbsent(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.constraints.AddIndexIfAbsent(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)

	drifted := idx
	drifted.Columns = []string{"id"}
	_, err = f.constraints.AddIndexIfAbsent(ctx, drifted)
	var drift *domain.DriftError
	require.True(t, errors.As(err, &drift))
	assert.Equal(t, "index", drift.Kind)
	assert.Equal(t, "on users(email)", drift.Actual)

	_, err = f.constraints.DropIndexIfPresent(ctx, "organizations", idx.Name)
	assert.ErrorIs(t, err, domain.ErrDefinitionDrift)

	outcome, err = f.constraints.DropIndexIfPresent(ctx, "users", idx.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	outcome, err = f.constraints.DropIndexIfPresent(ctx, "users", idx.Name)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)
}

func TestChangeColumnTypeTightensNullability(t *testing.T) {
	ctx := context.Background()
	f := setup(t, domain.PreserveData)

	snap, err := f.applier.CreateTableIfAbsent(ctx, users())
	require.NoError(t, err)
	_, err = f.applier.AddColumnIfAbsent(ctx, snap, "role", domain.ColumnSpec{Type: domain.TypeText, Nullable: true})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`INSERT INTO users (id, email, role) VALUES ('u1', 'a', 'admin')`).Error)

	require.NoError(t, f.applier.ChangeColumnType(ctx, "users", "role", domain.ColumnSpec{Type: domain.TypeText}))

	live, err := f.inspector.Describe(ctx, "users")
	require.NoError(t, err)
	col, ok := live.Column("role")
	require.True(t, ok)
	assert.False(t, col.Nullable)
}
