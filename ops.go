package loom

import (
	"context"
	"time"
)

// Ops is the pair of external collaborators the scheduler calls out to:
// stored, which probes the world for a key's current on-disk value, and
// execute, which runs the rule that produces a key's value.
//
// Both are out of scope per the specification — rule definition, file
// probing and the execution primitive belong to the front-end — but the
// scheduler is defined entirely in terms of calling them.
type Ops interface {
	// Stored probes the external world for key's current value. ok is
	// false if no such value exists.
	Stored(ctx context.Context, key Key) (value Value, ok bool, err error)

	// Execute runs the rule for key. It may itself call Build (via the
	// Database and Pool passed to it, or closed over) to obtain
	// dependency handles, which is how a Result's Depends groups are
	// populated.
	Execute(ctx context.Context, stack *Stack, key Key) (value Value, depends [][]Id, execution time.Duration, traces []Trace, err error)
}
