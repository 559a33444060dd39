package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// New returns the catalog matching the dialector behind db.
func New(db *gorm.DB) (domain.Catalog, error) {
	switch name := db.Dialector.Name(); name {
	case DialectPostgres:
		return &postgresCatalog{db: db}, nil
	case DialectSQLite:
		return &sqliteCatalog{db: db}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDialect, name)
	}
}

// renderer is the dialect-specific part of DDL rendering.
type renderer interface {
	Quote(name string) string
	ColumnType(t domain.ColumnType) string
	defaultClause(spec domain.ColumnSpec) string
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func validateColumnSpec(spec domain.ColumnSpec) error {
	switch spec.Type {
	case domain.TypeText, domain.TypeUUID, domain.TypeTimestamp,
		domain.TypeInteger, domain.TypeBigInt, domain.TypeBoolean:
	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidColumnSpec, spec.Type)
	}
	if spec.GeneratedUUID && spec.Type != domain.TypeUUID {
		return fmt.Errorf("%w: generated uuid default on %s column", domain.ErrInvalidColumnSpec, spec.Type)
	}
	if spec.GeneratedUUID && spec.Default != "" {
		return fmt.Errorf("%w: both default and generated uuid set", domain.ErrInvalidColumnSpec)
	}
	if strings.Contains(spec.Default, ";") {
		return fmt.Errorf("%w: default %q", domain.ErrInvalidColumnSpec, spec.Default)
	}
	return nil
}

func validateAction(action domain.ReferentialAction) (domain.ReferentialAction, error) {
	switch action {
	case "":
		return domain.ActionNoAction, nil
	case domain.ActionNoAction, domain.ActionRestrict, domain.ActionCascade, domain.ActionSetNull, domain.ActionSetDefault:
		return action, nil
	default:
		return "", fmt.Errorf("%w: referential action %q", domain.ErrInvalidColumnSpec, action)
	}
}

func columnDefinition(r renderer, col domain.Column) (string, error) {
	if err := domain.ValidateIdentifiers(col.Name); err != nil {
		return "", err
	}
	if err := validateColumnSpec(col.Spec); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(r.Quote(col.Name))
	b.WriteString(" ")
	b.WriteString(r.ColumnType(col.Spec.Type))
	if !col.Spec.Nullable {
		b.WriteString(" NOT NULL")
	}
	if clause := r.defaultClause(col.Spec); clause != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(clause)
	}
	return b.String(), nil
}

func quoteList(r renderer, names []string) (string, error) {
	if len(names) == 0 {
		return "", fmt.Errorf("%w: empty column list", domain.ErrInvalidColumnSpec)
	}
	if err := domain.ValidateIdentifiers(names...); err != nil {
		return "", err
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = r.Quote(name)
	}
	return strings.Join(quoted, ", "), nil
}

func foreignKeyClause(r renderer, fk domain.ForeignKey) (string, error) {
	if err := domain.ValidateIdentifiers(fk.Column, fk.RefTable, fk.RefColumn); err != nil {
		return "", err
	}
	onUpdate, err := validateAction(fk.OnUpdate)
	if err != nil {
		return "", err
	}
	onDelete, err := validateAction(fk.OnDelete)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if fk.Name != "" {
		if err := domain.ValidateIdentifiers(fk.Name); err != nil {
			return "", err
		}
		b.WriteString("CONSTRAINT ")
		b.WriteString(r.Quote(fk.Name))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s) ON UPDATE %s ON DELETE %s",
		r.Quote(fk.Column), r.Quote(fk.RefTable), r.Quote(fk.RefColumn), onUpdate, onDelete)
	return b.String(), nil
}

func createTableSQL(r renderer, def domain.TableDef) (string, error) {
	if err := domain.ValidateIdentifiers(def.Name); err != nil {
		return "", err
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("%w: table %s has no columns", domain.ErrInvalidColumnSpec, def.Name)
	}

	parts := make([]string, 0, len(def.Columns)+len(def.ForeignKeys)+len(def.Uniques)+1)
	for _, col := range def.Columns {
		rendered, err := columnDefinition(r, col)
		if err != nil {
			return "", err
		}
		parts = append(parts, rendered)
	}
	if len(def.PrimaryKey) > 0 {
		cols, err := quoteList(r, def.PrimaryKey)
		if err != nil {
			return "", err
		}
		parts = append(parts, "PRIMARY KEY ("+cols+")")
	}
	for _, unique := range def.Uniques {
		cols, err := quoteList(r, unique)
		if err != nil {
			return "", err
		}
		parts = append(parts, "UNIQUE ("+cols+")")
	}
	for _, fk := range def.ForeignKeys {
		clause, err := foreignKeyClause(r, fk)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", r.Quote(def.Name), strings.Join(parts, ",\n\t")), nil
}

func createIndexSQL(r renderer, idx domain.Index) (string, error) {
	if err := domain.ValidateIdentifiers(idx.Name, idx.Table); err != nil {
		return "", err
	}
	cols, err := quoteList(r, idx.Columns)
	if err != nil {
		return "", err
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, r.Quote(idx.Name), r.Quote(idx.Table), cols), nil
}

func countRows(ctx context.Context, db *gorm.DB, table string) (int64, error) {
	if err := domain.ValidateIdentifiers(table); err != nil {
		return 0, err
	}
	var n int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM ` + quoteIdent(table)).Scan(&n).Error
	return n, err
}

func countNull(ctx context.Context, db *gorm.DB, table, column string) (int64, error) {
	if err := domain.ValidateIdentifiers(table, column); err != nil {
		return 0, err
	}
	var n int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM ` + quoteIdent(table) + ` WHERE ` + quoteIdent(column) + ` IS NULL`,
	).Scan(&n).Error
	return n, err
}

func exec(ctx context.Context, db *gorm.DB, sql string, args ...any) error {
	return db.WithContext(ctx).Exec(sql, args...).Error
}
