package session

import "slices"

// State represents a session lifecycle state.
type State string

const (
	Uninitialized State = "Uninitialized"
	Initializing  State = "Initializing"
	AwaitingScan  State = "AwaitingScan"
	Authenticated State = "Authenticated"
	Errored       State = "Error"
	Closed        State = "Closed"
)

// validTransitions defines the allowed state machine edges. Every
// state except Closed may additionally fall to Error, and every state
// may be closed; both are listed explicitly.
var validTransitions = map[State][]State{
	Uninitialized: {Initializing, Errored, Closed},
	Initializing:  {AwaitingScan, Authenticated, Errored, Closed},
	AwaitingScan:  {Initializing, Authenticated, Errored, Closed},
	// A remote logout drops an authenticated session back to the scan
	// prompt.
	Authenticated: {AwaitingScan, Errored, Closed},
	// Error is retryable until the attempt budget runs out.
	Errored: {Initializing, Closed},
	// Closed is terminal until a fresh Initialize starts a new cycle.
	Closed: {Initializing},
}

// canTransition reports whether moving from one state to another is a
// legal edge. Self-transitions are treated as no-ops and allowed.
func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	return slices.Contains(validTransitions[from], to)
}
