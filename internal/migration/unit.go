package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var (
	ErrIrreversible  = errors.New("irreversible_unit")
	ErrDuplicateUnit = errors.New("duplicate_unit")
	ErrInvalidUnit   = errors.New("invalid_unit")
)

// Step is one direction of a unit. It runs inside the unit's transaction.
type Step func(ctx context.Context, s *Session) error

// Unit is a named, versioned schema change. A nil Down makes it irreversible.
type Unit struct {
	Version uint64
	Name    string
	Up      Step
	Down    Step
}

// Units is the ordered set the runner works through.
type Units []Unit

// ID is the ledger key: zero-padded version and slugified name.
func (u Unit) ID() string {
	return fmt.Sprintf("%014d_%s", u.Version, normalizeName(u.Name))
}

func (u Unit) Reversible() bool { return u.Down != nil }

func normalizeName(name string) string {
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

// sortUnits orders units by version and rejects duplicates.
func sortUnits(units []Unit) (Units, error) {
	sorted := make(Units, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i, u := range sorted {
		if u.Version == 0 || normalizeName(u.Name) == "" {
			return nil, fmt.Errorf("%w: version %d name %q", ErrInvalidUnit, u.Version, u.Name)
		}
		if u.Up == nil {
			return nil, fmt.Errorf("%w: %s has no up step", ErrInvalidUnit, u.ID())
		}
		if i > 0 && sorted[i-1].Version == u.Version {
			return nil, fmt.Errorf("%w: %s and %s share version %d", ErrDuplicateUnit, sorted[i-1].ID(), u.ID(), u.Version)
		}
	}
	return sorted, nil
}

// UnitError names the unit and direction that failed and wraps the store
// error verbatim.
type UnitError struct {
	Unit      string
	Direction Direction
	Err       error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s (%s) failed: %v", e.Unit, e.Direction, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
