package migration

import (
	"context"
	"time"

	schemadomain "github.com/smallbiznis/schemashift/internal/schema/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerEntry is one row per unit recording where its lifecycle stands.
type LedgerEntry struct {
	UnitID     string            `gorm:"column:unit_id;primaryKey;size:128"`
	State      State             `gorm:"column:state;size:16;not null"`
	Direction  Direction         `gorm:"column:direction;size:8;not null"`
	RunID      string            `gorm:"column:run_id;size:32"`
	Error      string            `gorm:"column:error"`
	Details    datatypes.JSONMap `gorm:"column:details"`
	StartedAt  *time.Time        `gorm:"column:started_at"`
	FinishedAt *time.Time        `gorm:"column:finished_at"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;not null"`
}

// Ledger persists LedgerEntry rows in a reserved table.
type Ledger struct {
	db    *gorm.DB
	table string
}

func NewLedger(db *gorm.DB, table string) (*Ledger, error) {
	if err := schemadomain.ValidateIdentifiers(table); err != nil {
		return nil, err
	}
	return &Ledger{db: db, table: table}, nil
}

func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, table: l.table}
}

func (l *Ledger) Table() string { return l.table }

// Ensure creates the ledger table when it does not exist yet.
func (l *Ledger) Ensure(ctx context.Context) error {
	return l.db.WithContext(ctx).Table(l.table).AutoMigrate(&LedgerEntry{})
}

// Load reads every entry keyed by unit id. A missing ledger table means no
// unit has run.
func (l *Ledger) Load(ctx context.Context) (map[string]LedgerEntry, error) {
	entries := map[string]LedgerEntry{}
	if !l.db.WithContext(ctx).Migrator().HasTable(l.table) {
		return entries, nil
	}

	var rows []LedgerEntry
	if err := l.db.WithContext(ctx).Table(l.table).Order("unit_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		entries[row.UnitID] = row
	}
	return entries, nil
}

// Record upserts the entry for its unit.
func (l *Ledger) Record(ctx context.Context, entry LedgerEntry) error {
	return l.db.WithContext(ctx).Table(l.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_id"}},
			UpdateAll: true,
		}).
		Create(&entry).Error
}
