package loom

import "time"

// Counts tallies the status map by outcome, as produced by the progress
// aggregator.
type Counts struct {
	// Built is the number of ids this run produced a fresh Ready result
	// for.
	Built int `json:"built"`

	// Skipped is the number of ids whose Ready result predates this run
	// (carried forward unchanged by AssumeSkip or a clean check).
	Skipped int `json:"skipped"`

	// Unknown is the number of ids still sitting as Loaded, neither
	// validated nor invalidated yet.
	Unknown int `json:"unknown"`

	// Todo is the number of ids still Waiting.
	Todo int `json:"todo"`

	// Failed is the number of ids that terminated in Error this run.
	//
	// The specification leaves Error's treatment as an open question; this
	// engine surfaces it as its own category rather than silently folding
	// it into one of the other four — see DESIGN.md.
	Failed int `json:"failed"`
}

// Snapshot is a point-in-time fold of the status map, suitable for display
// by a progress UI (out of scope here) or for JSON encoding.
type Snapshot struct {
	Counts Counts `json:"counts"`

	// BuiltDuration is the accumulated execution time of every Built id.
	BuiltDuration time.Duration `json:"builtDurationNS"`

	// SkippedDuration is the accumulated execution time of every Skipped
	// id, from its last actual run.
	SkippedDuration time.Duration `json:"skippedDurationNS"`

	// UnknownDuration is the accumulated execution time of every Unknown
	// id, from its last actual run.
	UnknownDuration time.Duration `json:"unknownDurationNS"`

	// EstimatedRemaining is the sum of the prior execution durations of
	// every Waiting id that carries a prior Result, as an estimate of
	// work left to do.
	EstimatedRemaining time.Duration `json:"estimatedRemainingNS"`

	// UnestimatedTodo is the number of Waiting ids with no prior Result to
	// estimate a duration from.
	UnestimatedTodo int `json:"unestimatedTodo"`
}

// Progress folds db's status map into a Snapshot.
func Progress(db *Database) Snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()

	var snap Snapshot

	for _, e := range db.entries {
		switch s := e.status.(type) {
		case Ready:
			if s.Result.Built == db.step {
				snap.Counts.Built++
				snap.BuiltDuration += s.Result.Execution
			} else {
				snap.Counts.Skipped++
				snap.SkippedDuration += s.Result.Execution
			}

		case Loaded:
			snap.Counts.Unknown++
			snap.UnknownDuration += s.Result.Execution

		case *Waiting:
			snap.Counts.Todo++
			if s.Prior != nil {
				snap.EstimatedRemaining += s.Prior.Execution
			} else {
				snap.UnestimatedTodo++
			}

		case Failed:
			snap.Counts.Failed++

		case Missing:
			// Not yet mentioned by a rule in a way that produced any
			// status worth counting.
		}
	}

	return snap
}
