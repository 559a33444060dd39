package migration

import (
	"errors"
	"fmt"
)

type State string

const (
	StatePending   State = "pending"
	StateApplying  State = "applying"
	StateApplied   State = "applied"
	StateReverting State = "reverting"
	StateReverted  State = "reverted"
	StateFailed    State = "failed"
)

var ErrInvalidTransition = errors.New("invalid_state_transition")

// transitions lists the allowed moves. A failed or reverted unit is
// selectable again, which is what a retry is.
var transitions = map[State][]State{
	StatePending:   {StateApplying},
	StateApplying:  {StateApplied, StateFailed},
	StateApplied:   {StateReverting},
	StateReverting: {StateReverted, StateFailed},
	StateReverted:  {StateApplying},
	StateFailed:    {StateApplying, StateReverting},
}

// Transition returns ErrInvalidTransition when to is not reachable from from.
func Transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// inEffect reports whether the unit's changes are currently in the schema.
// A failed reversal rolled back, so the unit is still applied.
func inEffect(entry LedgerEntry) bool {
	switch entry.State {
	case StateApplied:
		return true
	case StateFailed:
		return entry.Direction == DirectionDown
	default:
		return false
	}
}
