package bus

import "time"

// Event is one announcement carried on the bus. Kind is a dot-separated
// name whose leading segment ("session.", "sync.") is the namespace
// subscribers filter on; Payload is kind-specific and may be nil.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
