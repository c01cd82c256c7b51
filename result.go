package loom

import "time"

// Result is the memoized, persisted outcome of executing a rule for a key.
type Result struct {
	// Value is the produced Value.
	Value Value

	// Built is the Step at which execute last ran for this key.
	Built Step

	// Changed is the Step at which Value last differed from the previous
	// one. The invariant Changed <= Built always holds.
	Changed Step

	// Depends is an ordered sequence of dependency groups, each a sequence
	// of ids. Groups preserve the order in which the rule requested
	// batches; order within a group is immaterial.
	Depends [][]Id

	// Execution is the wall duration of the last run.
	Execution time.Duration

	// Traces is the sequence of Traces captured during the last run.
	Traces []Trace
}
