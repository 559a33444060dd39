package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"github.com/smallbiznis/schemashift/pkg/db"
	"gorm.io/gorm"
)

type postgresCatalog struct {
	db *gorm.DB
}

func (c *postgresCatalog) WithTx(tx *gorm.DB) domain.Catalog {
	return &postgresCatalog{db: tx}
}

func (c *postgresCatalog) Dialect() string { return DialectPostgres }

func (c *postgresCatalog) Quote(name string) string { return quoteIdent(name) }

func (c *postgresCatalog) ColumnType(t domain.ColumnType) string {
	switch t {
	case domain.TypeUUID:
		return "UUID"
	case domain.TypeTimestamp:
		return "TIMESTAMPTZ"
	case domain.TypeInteger:
		return "INTEGER"
	case domain.TypeBigInt:
		return "BIGINT"
	case domain.TypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (c *postgresCatalog) UUIDExpr() string { return "gen_random_uuid()" }

func (c *postgresCatalog) Placeholder(t domain.ColumnType) string {
	return "CAST(? AS " + c.ColumnType(t) + ")"
}

func (c *postgresCatalog) TempTableSuffix() string { return " ON COMMIT DROP" }

func (c *postgresCatalog) defaultClause(spec domain.ColumnSpec) string {
	if spec.GeneratedUUID {
		return c.UUIDExpr()
	}
	return spec.Default
}

type pgColumnRow struct {
	Name         string
	DataType     string
	Nullable     bool
	DefaultValue string
	PrimaryKey   bool
}

func (c *postgresCatalog) DescribeTable(ctx context.Context, table string) ([]domain.ColumnInfo, error) {
	var rows []pgColumnRow
	err := c.db.WithContext(ctx).Raw(
		`SELECT a.attname AS name,
		        format_type(a.atttypid, a.atttypmod) AS data_type,
		        NOT a.attnotnull AS nullable,
		        COALESCE(pg_get_expr(d.adbin, d.adrelid), '') AS default_value,
		        EXISTS (
		            SELECT 1 FROM pg_index i
		            WHERE i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
		        ) AS primary_key
		 FROM pg_attribute a
		 JOIN pg_class t ON t.oid = a.attrelid
		 JOIN pg_namespace n ON n.oid = t.relnamespace
		 LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		 WHERE n.nspname = current_schema()
		   AND t.relname = ?
		   AND t.relkind IN ('r', 'p')
		   AND a.attnum > 0
		   AND NOT a.attisdropped
		 ORDER BY a.attnum`,
		table,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableMissing, table)
	}

	cols := make([]domain.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, domain.ColumnInfo{
			Name:       row.Name,
			DataType:   row.DataType,
			Nullable:   row.Nullable,
			Default:    row.DefaultValue,
			PrimaryKey: row.PrimaryKey,
		})
	}
	return cols, nil
}

type pgForeignKeyRow struct {
	Name       string
	TableName  string
	ColumnName string
	RefTable   string
	RefColumn  string
	OnUpdate   string
	OnDelete   string
}

func (c *postgresCatalog) ForeignKey(ctx context.Context, table, name string) (*domain.ForeignKey, error) {
	var rows []pgForeignKeyRow
	err := c.db.WithContext(ctx).Raw(
		`SELECT con.conname AS name,
		        src.relname AS table_name,
		        sa.attname AS column_name,
		        ref.relname AS ref_table,
		        ra.attname AS ref_column,
		        con.confupdtype::text AS on_update,
		        con.confdeltype::text AS on_delete
		 FROM pg_constraint con
		 JOIN pg_class src ON src.oid = con.conrelid
		 JOIN pg_namespace n ON n.oid = src.relnamespace
		 JOIN pg_class ref ON ref.oid = con.confrelid
		 JOIN pg_attribute sa ON sa.attrelid = con.conrelid AND sa.attnum = con.conkey[1]
		 JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = con.confkey[1]
		 WHERE con.contype = 'f'
		   AND n.nspname = current_schema()
		   AND src.relname = ?
		   AND con.conname = ?`,
		table, name,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return &domain.ForeignKey{
		Name:      row.Name,
		Table:     row.TableName,
		Column:    row.ColumnName,
		RefTable:  row.RefTable,
		RefColumn: row.RefColumn,
		OnUpdate:  pgAction(row.OnUpdate),
		OnDelete:  pgAction(row.OnDelete),
	}, nil
}

func pgAction(code string) domain.ReferentialAction {
	switch code {
	case "r":
		return domain.ActionRestrict
	case "c":
		return domain.ActionCascade
	case "n":
		return domain.ActionSetNull
	case "d":
		return domain.ActionSetDefault
	default:
		return domain.ActionNoAction
	}
}

type pgIndexRow struct {
	Name       string
	TableName  string
	IsUnique   bool
	ColumnName string
}

func (c *postgresCatalog) Index(ctx context.Context, name string) (*domain.Index, error) {
	var rows []pgIndexRow
	err := c.db.WithContext(ctx).Raw(
		`SELECT i.relname AS name,
		        t.relname AS table_name,
		        ix.indisunique AS is_unique,
		        a.attname AS column_name
		 FROM pg_index ix
		 JOIN pg_class i ON i.oid = ix.indexrelid
		 JOIN pg_class t ON t.oid = ix.indrelid
		 JOIN pg_namespace n ON n.oid = i.relnamespace
		 CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		 JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		 WHERE n.nspname = current_schema()
		   AND i.relname = ?
		 ORDER BY k.ord`,
		name,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idx := &domain.Index{
		Name:   rows[0].Name,
		Table:  rows[0].TableName,
		Unique: rows[0].IsUnique,
	}
	for _, row := range rows {
		idx.Columns = append(idx.Columns, row.ColumnName)
	}
	return idx, nil
}

func (c *postgresCatalog) CountRows(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, c.db, table)
}

func (c *postgresCatalog) CountNull(ctx context.Context, table, column string) (int64, error) {
	return countNull(ctx, c.db, table, column)
}

func (c *postgresCatalog) CreateTable(ctx context.Context, def domain.TableDef) error {
	sql, err := createTableSQL(c, def)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, sql)
}

func (c *postgresCatalog) DropTable(ctx context.Context, table string) error {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return err
	}
	return exec(ctx, c.db, `DROP TABLE `+c.Quote(table))
}

func (c *postgresCatalog) AddColumn(ctx context.Context, table string, col domain.Column) error {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return err
	}
	def, err := columnDefinition(c, col)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, c.Quote(table), def))
}

func (c *postgresCatalog) DropColumn(ctx context.Context, table, column string) error {
	if err := domain.ValidateIdentifiers(table, column); err != nil {
		return err
	}
	return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, c.Quote(table), c.Quote(column)))
}

func (c *postgresCatalog) AlterColumn(ctx context.Context, table string, col domain.Column) error {
	if err := domain.ValidateIdentifiers(table, col.Name); err != nil {
		return err
	}
	if err := validateColumnSpec(col.Spec); err != nil {
		return err
	}

	name := c.Quote(col.Name)
	typ := c.ColumnType(col.Spec.Type)
	nullability := "DROP NOT NULL"
	if !col.Spec.Nullable {
		nullability = "SET NOT NULL"
	}
	defaultAction := "DROP DEFAULT"
	if clause := c.defaultClause(col.Spec); clause != "" {
		defaultAction = "SET DEFAULT " + clause
	}

	sql := fmt.Sprintf(
		`ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s, ALTER COLUMN %s %s, ALTER COLUMN %s %s`,
		c.Quote(table), name, typ, name, typ, name, nullability, name, defaultAction,
	)
	return exec(ctx, c.db, sql)
}

func (c *postgresCatalog) AddForeignKey(ctx context.Context, fk domain.ForeignKey) error {
	if err := domain.ValidateIdentifiers(fk.Table, fk.Name); err != nil {
		return err
	}
	clause, err := foreignKeyClause(c, fk)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s ADD %s`, c.Quote(fk.Table), clause))
}

func (c *postgresCatalog) DropForeignKey(ctx context.Context, table, name string) error {
	if err := domain.ValidateIdentifiers(table, name); err != nil {
		return err
	}
	return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT %s`, c.Quote(table), c.Quote(name)))
}

func (c *postgresCatalog) CreateIndex(ctx context.Context, idx domain.Index) error {
	sql, err := createIndexSQL(c, idx)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, sql)
}

func (c *postgresCatalog) DropIndex(ctx context.Context, idx domain.Index) error {
	if err := domain.ValidateIdentifiers(idx.Name); err != nil {
		return err
	}
	return exec(ctx, c.db, `DROP INDEX `+c.Quote(idx.Name))
}

// EnsureExtension creates the extension inside a nested transaction so that
// a permission failure rolls back to a savepoint instead of aborting the
// caller's transaction.
func (c *postgresCatalog) EnsureExtension(ctx context.Context, name string) (domain.Capability, error) {
	if err := domain.ValidateIdentifiers(name); err != nil {
		return "", err
	}

	var installed bool
	if err := c.db.WithContext(ctx).Raw(
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = ?)`, name,
	).Scan(&installed).Error; err != nil {
		return "", err
	}
	if installed {
		return domain.CapabilityAlreadyEnabled, nil
	}

	var available bool
	if err := c.db.WithContext(ctx).Raw(
		`SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = ?)`, name,
	).Scan(&available).Error; err != nil {
		return "", err
	}
	if !available {
		return domain.CapabilityUnsupported, nil
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(`CREATE EXTENSION IF NOT EXISTS ` + c.Quote(name)).Error
	})
	switch {
	case err == nil:
		return domain.CapabilityEnabled, nil
	case db.IsInsufficientPrivilege(err):
		return domain.CapabilityDeniedByPermissions, nil
	default:
		return "", fmt.Errorf("create extension %s: %w", name, err)
	}
}

func (c *postgresCatalog) UUIDAvailable(ctx context.Context) (bool, error) {
	var ok bool
	err := c.db.WithContext(ctx).Raw(
		`SELECT EXISTS (SELECT 1 FROM pg_proc WHERE proname = 'gen_random_uuid')`,
	).Scan(&ok).Error
	return ok, err
}
