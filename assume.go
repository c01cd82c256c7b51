package loom

// Assume overrides the default validity decision for a Loaded result.
type Assume int

const (
	// AssumeNone performs the full validity check: stored is consulted
	// and, on a match, dependencies are rechecked via check().
	AssumeNone Assume = iota

	// AssumeDirty treats every stored value as stale and re-runs execute
	// unconditionally.
	AssumeDirty

	// AssumeSkip accepts every Loaded result without consulting stored at
	// all.
	AssumeSkip

	// AssumeClean trusts Loaded results; when a re-run is required, it
	// consults stored first and, if stored has a value, adopts it instead
	// of calling execute.
	AssumeClean
)

func (a Assume) String() string {
	switch a {
	case AssumeDirty:
		return "dirty"
	case AssumeSkip:
		return "skip"
	case AssumeClean:
		return "clean"
	default:
		return "none"
	}
}
