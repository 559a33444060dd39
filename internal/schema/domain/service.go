package domain

import (
	"context"

	"gorm.io/gorm"
)

// Catalog is the dialect-specific access layer: catalog lookups and DDL
// rendering. Implementations never guard; guarding is the services' job.
type Catalog interface {
	WithTx(tx *gorm.DB) Catalog
	Dialect() string

	DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error)
	ForeignKey(ctx context.Context, table, name string) (*ForeignKey, error)
	Index(ctx context.Context, name string) (*Index, error)
	CountRows(ctx context.Context, table string) (int64, error)
	CountNull(ctx context.Context, table, column string) (int64, error)

	CreateTable(ctx context.Context, def TableDef) error
	DropTable(ctx context.Context, table string) error
	AddColumn(ctx context.Context, table string, col Column) error
	DropColumn(ctx context.Context, table, column string) error
	AlterColumn(ctx context.Context, table string, col Column) error
	AddForeignKey(ctx context.Context, fk ForeignKey) error
	DropForeignKey(ctx context.Context, table, name string) error
	CreateIndex(ctx context.Context, idx Index) error
	DropIndex(ctx context.Context, idx Index) error

	EnsureExtension(ctx context.Context, name string) (Capability, error)
	UUIDAvailable(ctx context.Context) (bool, error)

	// ColumnType renders a logical type for this dialect.
	ColumnType(t ColumnType) string
	// UUIDExpr is a per-row uuid generator expression.
	UUIDExpr() string
	// Placeholder is a bind parameter typed for use in a select list.
	Placeholder(t ColumnType) string
	// Quote quotes an already validated identifier.
	Quote(name string) string
	// TempTableSuffix is appended to CREATE TEMPORARY TABLE statements.
	TempTableSuffix() string
}

// Inspector reads live structural metadata.
type Inspector interface {
	Describe(ctx context.Context, table string) (TableSnapshot, error)
}

// Applier performs guarded structural changes.
type Applier interface {
	AddColumnIfAbsent(ctx context.Context, snap TableSnapshot, column string, spec ColumnSpec) (TableSnapshot, error)
	RemoveColumnIfPresent(ctx context.Context, snap TableSnapshot, column string) (TableSnapshot, error)
	ChangeColumnType(ctx context.Context, table, column string, spec ColumnSpec) error
	CreateTableIfAbsent(ctx context.Context, def TableDef) (TableSnapshot, error)
	DropTable(ctx context.Context, table string) (bool, error)
	EnsureExtension(ctx context.Context, name string) (Capability, error)
	UUIDAvailable(ctx context.Context) (bool, error)
}

// ConstraintManager performs guarded constraint and index changes.
type ConstraintManager interface {
	AddForeignKeyIfAbsent(ctx context.Context, fk ForeignKey) (Outcome, error)
	DropForeignKeyIfPresent(ctx context.Context, table, name string) (Outcome, error)
	AddIndexIfAbsent(ctx context.Context, idx Index) (Outcome, error)
	DropIndexIfPresent(ctx context.Context, table, name string) (Outcome, error)
}
