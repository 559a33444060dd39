package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"gorm.io/gorm"
)

// sqliteUUIDExpr renders a random RFC 4122 version 4 uuid.
const sqliteUUIDExpr = `lower(hex(randomblob(4)) || '-' || hex(randomblob(2)) || '-4' || ` +
	`substr(hex(randomblob(2)), 2) || '-' || substr('89ab', 1 + (abs(random()) % 4), 1) || ` +
	`substr(hex(randomblob(2)), 2) || '-' || hex(randomblob(6)))`

type sqliteCatalog struct {
	db *gorm.DB
}

func (c *sqliteCatalog) WithTx(tx *gorm.DB) domain.Catalog {
	return &sqliteCatalog{db: tx}
}

func (c *sqliteCatalog) Dialect() string { return DialectSQLite }

func (c *sqliteCatalog) Quote(name string) string { return quoteIdent(name) }

func (c *sqliteCatalog) ColumnType(t domain.ColumnType) string {
	switch t {
	case domain.TypeTimestamp:
		return "DATETIME"
	case domain.TypeInteger:
		return "INTEGER"
	case domain.TypeBigInt:
		return "BIGINT"
	case domain.TypeBoolean:
		return "BOOLEAN"
	default:
		// uuid is stored as its canonical text form
		return "TEXT"
	}
}

func (c *sqliteCatalog) UUIDExpr() string { return sqliteUUIDExpr }

// Placeholder is untyped: a CAST to DATETIME would coerce the bound time
// to a number.
func (c *sqliteCatalog) Placeholder(t domain.ColumnType) string { return "?" }

func (c *sqliteCatalog) TempTableSuffix() string { return "" }

func (c *sqliteCatalog) defaultClause(spec domain.ColumnSpec) string {
	return sqliteDefault(rawDefault(spec))
}

func rawDefault(spec domain.ColumnSpec) string {
	if spec.GeneratedUUID {
		return sqliteUUIDExpr
	}
	return strings.TrimSpace(spec.Default)
}

// sqliteDefault renders a default expression. Anything other than a literal
// must be parenthesized in SQLite.
func sqliteDefault(expr string) string {
	if expr == "" {
		return ""
	}
	if sqliteLiteral(expr) || sqliteTimeKeyword(expr) {
		return expr
	}
	return "(" + expr + ")"
}

func sqliteLiteral(expr string) bool {
	switch strings.ToUpper(expr) {
	case "NULL", "TRUE", "FALSE":
		return true
	}
	if len(expr) >= 2 && strings.HasPrefix(expr, "'") && strings.HasSuffix(expr, "'") {
		return true
	}
	_, err := strconv.ParseFloat(expr, 64)
	return err == nil
}

func sqliteTimeKeyword(expr string) bool {
	switch strings.ToUpper(expr) {
	case "CURRENT_TIMESTAMP", "CURRENT_DATE", "CURRENT_TIME":
		return true
	}
	return false
}

type sqliteColumnRow struct {
	Name         string
	DataType     string
	NotNull      int
	DefaultValue string
	PK           int
}

func (c *sqliteCatalog) columnRows(ctx context.Context, table string) ([]sqliteColumnRow, error) {
	var rows []sqliteColumnRow
	err := c.db.WithContext(ctx).Raw(
		`SELECT name,
		        type AS data_type,
		        "notnull" AS not_null,
		        COALESCE(dflt_value, '') AS default_value,
		        pk
		 FROM pragma_table_info(?)
		 ORDER BY cid`,
		table,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableMissing, table)
	}
	return rows, nil
}

func (c *sqliteCatalog) DescribeTable(ctx context.Context, table string) ([]domain.ColumnInfo, error) {
	rows, err := c.columnRows(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]domain.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, domain.ColumnInfo{
			Name:       row.Name,
			DataType:   row.DataType,
			Nullable:   row.NotNull == 0 && row.PK == 0,
			Default:    row.DefaultValue,
			PrimaryKey: row.PK > 0,
		})
	}
	return cols, nil
}

func (c *sqliteCatalog) ForeignKey(ctx context.Context, table, name string) (*domain.ForeignKey, error) {
	fks, err := c.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		if !strings.EqualFold(fk.Name, name) || len(fk.From) == 0 {
			continue
		}
		ref := ""
		if len(fk.To) > 0 {
			ref = fk.To[0]
		}
		return &domain.ForeignKey{
			Name:      fk.Name,
			Table:     table,
			Column:    fk.From[0],
			RefTable:  fk.RefTable,
			RefColumn: ref,
			OnUpdate:  domain.ReferentialAction(fk.OnUpdate),
			OnDelete:  domain.ReferentialAction(fk.OnDelete),
		}, nil
	}
	return nil, nil
}

func (c *sqliteCatalog) Index(ctx context.Context, name string) (*domain.Index, error) {
	var tables []string
	if err := c.db.WithContext(ctx).Raw(
		`SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = ?`, name,
	).Scan(&tables).Error; err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}

	var unique []int
	if err := c.db.WithContext(ctx).Raw(
		`SELECT "unique" FROM pragma_index_list(?) WHERE name = ?`, tables[0], name,
	).Scan(&unique).Error; err != nil {
		return nil, err
	}

	cols, err := c.indexColumns(ctx, name)
	if err != nil {
		return nil, err
	}

	return &domain.Index{
		Name:    name,
		Table:   tables[0],
		Columns: cols,
		Unique:  len(unique) > 0 && unique[0] == 1,
	}, nil
}

func (c *sqliteCatalog) indexColumns(ctx context.Context, index string) ([]string, error) {
	var cols []string
	err := c.db.WithContext(ctx).Raw(
		`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index,
	).Scan(&cols).Error
	return cols, err
}

func (c *sqliteCatalog) CountRows(ctx context.Context, table string) (int64, error) {
	return countRows(ctx, c.db, table)
}

func (c *sqliteCatalog) CountNull(ctx context.Context, table, column string) (int64, error) {
	return countNull(ctx, c.db, table, column)
}

func (c *sqliteCatalog) CreateTable(ctx context.Context, def domain.TableDef) error {
	sql, err := createTableSQL(c, def)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, sql)
}

func (c *sqliteCatalog) DropTable(ctx context.Context, table string) error {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return err
	}
	return exec(ctx, c.db, `DROP TABLE `+c.Quote(table))
}

// AddColumn uses ALTER TABLE when SQLite allows it and rebuilds the table
// for NOT NULL columns without a default or non-constant defaults.
func (c *sqliteCatalog) AddColumn(ctx context.Context, table string, col domain.Column) error {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return err
	}
	def, err := columnDefinition(c, col)
	if err != nil {
		return err
	}

	raw := rawDefault(col.Spec)
	native := (raw == "" && col.Spec.Nullable) || (raw != "" && sqliteLiteral(raw))
	if native {
		return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, c.Quote(table), def))
	}

	return c.rebuild(ctx, table, func(t *sqliteTable) error {
		if t.column(col.Name) >= 0 {
			return fmt.Errorf("column %s already exists on %s", col.Name, table)
		}
		t.Columns = append(t.Columns, sqliteColumn{
			Name:    col.Name,
			Type:    c.ColumnType(col.Spec.Type),
			NotNull: !col.Spec.Nullable,
			Default: raw,
		})
		return nil
	})
}

func (c *sqliteCatalog) DropColumn(ctx context.Context, table, column string) error {
	if err := domain.ValidateIdentifiers(table, column); err != nil {
		return err
	}
	return exec(ctx, c.db, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, c.Quote(table), c.Quote(column)))
}

func (c *sqliteCatalog) AlterColumn(ctx context.Context, table string, col domain.Column) error {
	if err := domain.ValidateIdentifiers(table, col.Name); err != nil {
		return err
	}
	if err := validateColumnSpec(col.Spec); err != nil {
		return err
	}

	return c.rebuild(ctx, table, func(t *sqliteTable) error {
		i := t.column(col.Name)
		if i < 0 {
			return fmt.Errorf("%w: %s.%s", domain.ErrColumnMissing, table, col.Name)
		}
		t.Columns[i].Type = c.ColumnType(col.Spec.Type)
		t.Columns[i].NotNull = !col.Spec.Nullable
		t.Columns[i].Default = rawDefault(col.Spec)
		return nil
	})
}

func (c *sqliteCatalog) AddForeignKey(ctx context.Context, fk domain.ForeignKey) error {
	if err := domain.ValidateIdentifiers(fk.Table, fk.Name, fk.Column, fk.RefTable, fk.RefColumn); err != nil {
		return err
	}
	onUpdate, err := validateAction(fk.OnUpdate)
	if err != nil {
		return err
	}
	onDelete, err := validateAction(fk.OnDelete)
	if err != nil {
		return err
	}

	return c.rebuild(ctx, fk.Table, func(t *sqliteTable) error {
		if t.column(fk.Column) < 0 {
			return fmt.Errorf("%w: %s.%s", domain.ErrColumnMissing, fk.Table, fk.Column)
		}
		t.ForeignKeys = append(t.ForeignKeys, sqliteForeignKey{
			Name:     fk.Name,
			From:     []string{fk.Column},
			RefTable: fk.RefTable,
			To:       []string{fk.RefColumn},
			OnUpdate: string(onUpdate),
			OnDelete: string(onDelete),
		})
		return nil
	})
}

func (c *sqliteCatalog) DropForeignKey(ctx context.Context, table, name string) error {
	if err := domain.ValidateIdentifiers(table, name); err != nil {
		return err
	}

	return c.rebuild(ctx, table, func(t *sqliteTable) error {
		kept := t.ForeignKeys[:0]
		found := false
		for _, fk := range t.ForeignKeys {
			if strings.EqualFold(fk.Name, name) {
				found = true
				continue
			}
			kept = append(kept, fk)
		}
		if !found {
			return fmt.Errorf("foreign key %s not found on %s", name, table)
		}
		t.ForeignKeys = kept
		return nil
	})
}

func (c *sqliteCatalog) CreateIndex(ctx context.Context, idx domain.Index) error {
	sql, err := createIndexSQL(c, idx)
	if err != nil {
		return err
	}
	return exec(ctx, c.db, sql)
}

func (c *sqliteCatalog) DropIndex(ctx context.Context, idx domain.Index) error {
	if err := domain.ValidateIdentifiers(idx.Name); err != nil {
		return err
	}
	return exec(ctx, c.db, `DROP INDEX `+c.Quote(idx.Name))
}

// EnsureExtension reports Unsupported: SQLite has no extension catalog.
func (c *sqliteCatalog) EnsureExtension(ctx context.Context, name string) (domain.Capability, error) {
	if err := domain.ValidateIdentifiers(name); err != nil {
		return "", err
	}
	return domain.CapabilityUnsupported, nil
}

func (c *sqliteCatalog) UUIDAvailable(ctx context.Context) (bool, error) {
	return true, nil
}
