package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/smallbiznis/schemashift/internal/schema/domain"
)

const rebuildPrefix = "_schemashift_rebuild_"

var errForeignKeysEnabled = errors.New("sqlite table rebuild requires PRAGMA foreign_keys=OFF")

// namedForeignKey matches CONSTRAINT "name" FOREIGN KEY ("col"...) REFERENCES "table".
var namedForeignKey = regexp.MustCompile(
	`(?i)CONSTRAINT\s+["` + "`" + `]?(\w+)["` + "`" + `]?\s+FOREIGN\s+KEY\s*\(\s*["` + "`" + `]?(\w+)["` + "`" + `]?[^)]*\)\s*REFERENCES\s+["` + "`" + `]?(\w+)`,
)

type sqliteColumn struct {
	Name    string
	Type    string
	NotNull bool
	// Default is the raw expression as reported by pragma_table_info.
	Default string
	PK      int
}

type sqliteForeignKey struct {
	Name     string
	From     []string
	RefTable string
	To       []string
	OnUpdate string
	OnDelete string
}

// sqliteTable is everything a rebuild has to carry over.
type sqliteTable struct {
	Name        string
	Columns     []sqliteColumn
	ForeignKeys []sqliteForeignKey
	Uniques     [][]string
	Indexes     []string
}

func (t *sqliteTable) column(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

func (t *sqliteTable) createSQL(name string) string {
	parts := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+len(t.Uniques)+1)
	pk := make([]sqliteColumn, 0, 1)
	for _, col := range t.Columns {
		def := quoteIdent(col.Name)
		if col.Type != "" {
			def += " " + col.Type
		}
		if col.NotNull {
			def += " NOT NULL"
		}
		if clause := sqliteDefault(col.Default); clause != "" {
			def += " DEFAULT " + clause
		}
		parts = append(parts, def)
		if col.PK > 0 {
			pk = append(pk, col)
		}
	}
	if len(pk) > 0 {
		sort.Slice(pk, func(i, j int) bool { return pk[i].PK < pk[j].PK })
		names := make([]string, len(pk))
		for i, col := range pk {
			names[i] = quoteIdent(col.Name)
		}
		parts = append(parts, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	for _, unique := range t.Uniques {
		parts = append(parts, "UNIQUE ("+joinQuoted(unique)+")")
	}
	for _, fk := range t.ForeignKeys {
		clause := ""
		if fk.Name != "" {
			clause = "CONSTRAINT " + quoteIdent(fk.Name) + " "
		}
		clause += "FOREIGN KEY (" + joinQuoted(fk.From) + ") REFERENCES " + quoteIdent(fk.RefTable)
		if len(fk.To) > 0 && fk.To[0] != "" {
			clause += " (" + joinQuoted(fk.To) + ")"
		}
		clause += " ON UPDATE " + actionOrDefault(fk.OnUpdate) + " ON DELETE " + actionOrDefault(fk.OnDelete)
		parts = append(parts, clause)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quoteIdent(name), strings.Join(parts, ",\n\t"))
}

func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

func actionOrDefault(action string) string {
	if action == "" {
		return string(domain.ActionNoAction)
	}
	return action
}

type sqliteForeignKeyRow struct {
	ID       int
	Seq      int
	RefTable string
	FromCol  string
	ToCol    string
	OnUpdate string
	OnDelete string
}

// foreignKeys reads foreign keys from pragma_foreign_key_list and recovers
// constraint names from the stored CREATE TABLE text.
func (c *sqliteCatalog) foreignKeys(ctx context.Context, table string) ([]sqliteForeignKey, error) {
	var rows []sqliteForeignKeyRow
	if err := c.db.WithContext(ctx).Raw(
		`SELECT id, seq, "table" AS ref_table, "from" AS from_col, COALESCE("to", '') AS to_col, on_update, on_delete
		 FROM pragma_foreign_key_list(?)
		 ORDER BY id, seq`,
		table,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var ddl []string
	if err := c.db.WithContext(ctx).Raw(
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&ddl).Error; err != nil {
		return nil, err
	}
	names := map[string]string{}
	if len(ddl) > 0 {
		for _, m := range namedForeignKey.FindAllStringSubmatch(ddl[0], -1) {
			names[strings.ToLower(m[2]+"->"+m[3])] = m[1]
		}
	}

	var fks []sqliteForeignKey
	current := -1
	for _, row := range rows {
		if row.ID != current {
			current = row.ID
			fks = append(fks, sqliteForeignKey{
				RefTable: row.RefTable,
				OnUpdate: row.OnUpdate,
				OnDelete: row.OnDelete,
			})
		}
		fk := &fks[len(fks)-1]
		fk.From = append(fk.From, row.FromCol)
		fk.To = append(fk.To, row.ToCol)
	}
	for i := range fks {
		fks[i].Name = names[strings.ToLower(fks[i].From[0]+"->"+fks[i].RefTable)]
	}
	return fks, nil
}

type sqliteIndexRow struct {
	Name   string
	Origin string
	SQL    string
}

func (c *sqliteCatalog) loadTable(ctx context.Context, table string) (*sqliteTable, error) {
	rows, err := c.columnRows(ctx, table)
	if err != nil {
		return nil, err
	}
	t := &sqliteTable{Name: table}
	for _, row := range rows {
		t.Columns = append(t.Columns, sqliteColumn{
			Name:    row.Name,
			Type:    row.DataType,
			NotNull: row.NotNull == 1,
			Default: row.DefaultValue,
			PK:      row.PK,
		})
	}

	if t.ForeignKeys, err = c.foreignKeys(ctx, table); err != nil {
		return nil, err
	}

	var indexes []sqliteIndexRow
	if err := c.db.WithContext(ctx).Raw(
		`SELECT l.name AS name, l.origin AS origin, COALESCE(m.sql, '') AS sql
		 FROM pragma_index_list(?) l
		 LEFT JOIN sqlite_master m ON m.type = 'index' AND m.name = l.name
		 ORDER BY l.seq`,
		table,
	).Scan(&indexes).Error; err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		switch idx.Origin {
		case "u":
			cols, err := c.indexColumns(ctx, idx.Name)
			if err != nil {
				return nil, err
			}
			t.Uniques = append(t.Uniques, cols)
		case "c":
			if idx.SQL != "" {
				t.Indexes = append(t.Indexes, idx.SQL)
			}
		}
	}
	return t, nil
}

// rebuild applies mutate to the table shape and swaps in a new table built
// from it: create shadow, copy rows, drop, rename, recreate indexes. It
// runs on the caller's session so it commits or rolls back with the unit.
func (c *sqliteCatalog) rebuild(ctx context.Context, table string, mutate func(*sqliteTable) error) error {
	var fkEnabled int
	if err := c.db.WithContext(ctx).Raw(`PRAGMA foreign_keys`).Scan(&fkEnabled).Error; err != nil {
		return err
	}
	if fkEnabled == 1 {
		return fmt.Errorf("%w: %s", errForeignKeysEnabled, table)
	}

	shape, err := c.loadTable(ctx, table)
	if err != nil {
		return err
	}
	before := make(map[string]struct{}, len(shape.Columns))
	for _, col := range shape.Columns {
		before[strings.ToLower(col.Name)] = struct{}{}
	}

	if err := mutate(shape); err != nil {
		return err
	}

	copied := make([]string, 0, len(shape.Columns))
	for _, col := range shape.Columns {
		if _, ok := before[strings.ToLower(col.Name)]; ok {
			copied = append(copied, col.Name)
		}
	}

	shadow := rebuildPrefix + table
	cols := joinQuoted(copied)
	statements := []string{
		`DROP TABLE IF EXISTS ` + quoteIdent(shadow),
		shape.createSQL(shadow),
		fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s`, quoteIdent(shadow), cols, cols, quoteIdent(table)),
		`DROP TABLE ` + quoteIdent(table),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quoteIdent(shadow), quoteIdent(table)),
	}
	statements = append(statements, shape.Indexes...)

	for _, stmt := range statements {
		if err := exec(ctx, c.db, stmt); err != nil {
			return fmt.Errorf("rebuild %s: %w", table, err)
		}
	}
	return nil
}
