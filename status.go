package loom

// Status is the lifecycle state of a single id within the status map.
//
// It is a sum of five variants: Missing, Loaded, *Waiting, Ready and
// Failed. Only Missing and Loaded are persistable — attempting to journal
// any other variant is an InternalInvariant error.
type Status interface {
	isStatus()
}

// Missing means an id has been interned but never built or loaded; it is a
// placeholder installed the moment a key is first mentioned.
type Missing struct{}

func (Missing) isStatus() {}

// Loaded means the result was restored from the journal this process and
// has not yet been validated against stored or rechecked against its
// dependencies.
type Loaded struct {
	Result Result
}

func (Loaded) isStatus() {}

// Ready means this process has produced Result this Step; it is terminal
// for the remainder of the run.
type Ready struct {
	Result Result
}

func (Ready) isStatus() {}

// Failed means execution raised Err; it is terminal for the remainder of
// the run. Execution failures for one id never poison unrelated ids.
type Failed struct {
	Err error
}

func (Failed) isStatus() {}

// Waiting means an id is currently being validated or run.
//
// At most one Waiting exists per id at any time; it holds the sole right to
// transition that id to Ready or Failed. Waiting is always referenced
// through a pointer so that every reducer that observes it shares the same
// continuation list and is woken by the same firing.
type Waiting struct {
	// Prior is the Result loaded or previously built for this id, if one
	// exists. It is retained purely for reporting (progress, showJSON).
	Prior *Result

	pending *pending
}

func (*Waiting) isStatus() {}

// pending is a mutable slot holding a single composed continuation.
//
// afterWaiting and runWaiting are the only operations permitted on it, and
// both must be called while holding the database lock so that composition
// and firing never race.
type pending struct {
	action func()
}

func newPending() *pending {
	return &pending{action: func() {}}
}

// afterWaiting composes act after the slot's current action: the new action
// runs the old one, then act, preserving registration order.
func (p *pending) afterWaiting(act func()) {
	prev := p.action
	p.action = func() {
		prev()
		act()
	}
}

// runWaiting runs the slot's composed action exactly once. Callers must not
// invoke it a second time for the same Waiting.
func (p *pending) runWaiting() {
	p.action()
}

// afterWaiting registers act to run when w fires. It must be called while
// holding the database lock.
func afterWaiting(w *Waiting, act func()) {
	w.pending.afterWaiting(act)
}

// runWaiting drains w's composed continuation. It must be called while
// holding the database lock, and at most once per Waiting.
func runWaiting(w *Waiting) {
	w.pending.runWaiting()
}
