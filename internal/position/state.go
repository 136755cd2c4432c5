package position

import (
	"fmt"

	apperrors "condor_trader/pkg/errors"
)

// State is the ordinal lifecycle state of one condor position. It is
// monotonically non-decreasing for the lifetime of a position except the
// explicit reset to Pending performed by SetPosition.
type State int

const (
	NoPosition State = iota
	Pending
	OpeningRequested
	Open
	ClosingRequested
	Closed
)

func (s State) String() string {
	switch s {
	case NoPosition:
		return "NO_POSITION"
	case Pending:
		return "PENDING"
	case OpeningRequested:
		return "OPENING_REQUESTED"
	case Open:
		return "OPEN"
	case ClosingRequested:
		return "CLOSING_REQUESTED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// transitions is the set of legal edges. Replacing an undecided candidate
// keeps the state at Pending, hence the Pending self-edge.
var transitions = map[State][]State{
	NoPosition:       {Pending},
	Pending:          {Pending, OpeningRequested},
	OpeningRequested: {Open},
	Open:             {ClosingRequested},
	ClosingRequested: {Closed},
	Closed:           {},
}

// canTransition reports whether the edge from s to next is legal
func (s State) canTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// validateTransition returns a descriptive error for an illegal edge
func validateTransition(from, to State) error {
	if !from.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrIllegalTransition, from, to)
	}
	return nil
}
