package session

import "errors"

var (
	// ErrRetryBudgetExhausted is returned by Initialize once the
	// attempt budget is spent. The bridge is not contacted in that
	// case; recovery requires a process restart.
	ErrRetryBudgetExhausted = errors.New("maximum initialization attempts reached")

	// ErrBridgeInitFailure wraps a failure to create the bridge
	// client.
	ErrBridgeInitFailure = errors.New("bridge client creation failed")

	// ErrUnauthenticated is returned when an operation needs a live
	// authenticated client and there is none.
	ErrUnauthenticated = errors.New("session not authenticated")
)
