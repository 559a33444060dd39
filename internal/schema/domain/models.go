// Package domain contains the structural types shared by the schema change engine.
package domain

import (
	"regexp"
	"sort"
	"strings"
)

// ColumnType is a dialect-neutral column type.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeUUID      ColumnType = "uuid"
	TypeTimestamp ColumnType = "timestamp"
	TypeInteger   ColumnType = "integer"
	TypeBigInt    ColumnType = "bigint"
	TypeBoolean   ColumnType = "boolean"
)

// ColumnSpec describes the desired shape of a column.
type ColumnSpec struct {
	Type     ColumnType
	Nullable bool
	// Default is a raw SQL default expression, e.g. 'free' or CURRENT_TIMESTAMP.
	Default string
	// GeneratedUUID renders a dialect-specific uuid default. Only valid for TypeUUID.
	GeneratedUUID bool
}

// Column is a named column spec used in table definitions.
type Column struct {
	Name string
	Spec ColumnSpec
}

// ColumnInfo is live column metadata read from the catalog.
type ColumnInfo struct {
	Name       string
	DataType   string
	Nullable   bool
	Default    string
	PrimaryKey bool
}

// ReferentialAction is an ON UPDATE / ON DELETE action.
type ReferentialAction string

const (
	ActionNoAction   ReferentialAction = "NO ACTION"
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionCascade    ReferentialAction = "CASCADE"
	ActionSetNull    ReferentialAction = "SET NULL"
	ActionSetDefault ReferentialAction = "SET DEFAULT"
)

// ForeignKey is a single-column foreign key constraint.
type ForeignKey struct {
	Name      string
	Table     string
	Column    string
	RefTable  string
	RefColumn string
	OnUpdate  ReferentialAction
	OnDelete  ReferentialAction
}

// Index is a named (optionally unique) index.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// TableDef is the full definition used by CreateTableIfAbsent.
type TableDef struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	Uniques     [][]string
}

// Outcome reports whether a guarded operation changed anything.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
)

// Capability is the result of enabling a database extension.
type Capability string

const (
	CapabilityEnabled             Capability = "enabled"
	CapabilityAlreadyEnabled      Capability = "already_enabled"
	CapabilityUnsupported         Capability = "unsupported"
	CapabilityDeniedByPermissions Capability = "denied_by_permissions"
)

// Usable reports whether the extension is installed after the check.
func (c Capability) Usable() bool {
	return c == CapabilityEnabled || c == CapabilityAlreadyEnabled
}

// PreservationPolicy decides what reversal does with tables that still hold rows.
type PreservationPolicy int

const (
	// PreserveData keeps non-empty tables on reversal.
	PreserveData PreservationPolicy = iota
	// DiscardData drops tables regardless of content.
	DiscardData
)

func (p PreservationPolicy) String() string {
	if p == DiscardData {
		return "discard"
	}
	return "preserve"
}

// TableSnapshot is the result of describing a table: either Present with its
// columns or Absent.
type TableSnapshot struct {
	table   string
	present bool
	columns map[string]ColumnInfo
	order   []string
}

// Absent returns a snapshot for a table that does not exist.
func Absent(table string) TableSnapshot {
	return TableSnapshot{table: table}
}

// Present returns a snapshot for an existing table.
func Present(table string, columns []ColumnInfo) TableSnapshot {
	p := TableSnapshot{
		table:   table,
		present: true,
		columns: make(map[string]ColumnInfo, len(columns)),
		order:   make([]string, 0, len(columns)),
	}
	for _, col := range columns {
		key := strings.ToLower(col.Name)
		if _, dup := p.columns[key]; !dup {
			p.order = append(p.order, key)
		}
		p.columns[key] = col
	}
	return p
}

func (p TableSnapshot) Table() string { return p.table }

func (p TableSnapshot) Present() bool { return p.present }

// Column returns the metadata of a column, matched case-insensitively.
func (p TableSnapshot) Column(name string) (ColumnInfo, bool) {
	if !p.present {
		return ColumnInfo{}, false
	}
	col, ok := p.columns[strings.ToLower(name)]
	return col, ok
}

func (p TableSnapshot) HasColumn(name string) bool {
	_, ok := p.Column(name)
	return ok
}

// Columns returns the columns in catalog order.
func (p TableSnapshot) Columns() []ColumnInfo {
	out := make([]ColumnInfo, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.columns[key])
	}
	return out
}

// ColumnNames returns the sorted column names.
func (p TableSnapshot) ColumnNames() []string {
	names := make([]string, 0, len(p.order))
	for _, key := range p.order {
		names = append(names, p.columns[key].Name)
	}
	sort.Strings(names)
	return names
}

// WithColumn returns a copy of the snapshot with the column added or replaced.
func (p TableSnapshot) WithColumn(col ColumnInfo) TableSnapshot {
	cols := append(p.Columns(), col)
	return Present(p.table, cols)
}

// WithoutColumn returns a copy of the snapshot with the column removed.
func (p TableSnapshot) WithoutColumn(name string) TableSnapshot {
	if !p.present {
		return p
	}
	cols := make([]ColumnInfo, 0, len(p.order))
	for _, col := range p.Columns() {
		if strings.EqualFold(col.Name, name) {
			continue
		}
		cols = append(cols, col)
	}
	return Present(p.table, cols)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to quote into DDL.
func ValidIdentifier(name string) bool {
	return len(name) <= 63 && identifierPattern.MatchString(name)
}

// ValidateIdentifiers returns ErrInvalidIdentifier for the first unsafe name.
func ValidateIdentifiers(names ...string) error {
	for _, name := range names {
		if !ValidIdentifier(name) {
			return &IdentifierError{Name: name}
		}
	}
	return nil
}
