package loom

import (
	"context"
	"time"

	"github.com/dogmatiq/loom/pool"
)

// Handle is the opaque dependency handle returned by Build.
//
// A rule's execute implementation typically calls Build to obtain the
// values of its dependencies and retains the returned Handle's ids as one
// group of its Result.Depends.
type Handle struct {
	ids []Id
}

// IDs returns the ids this handle carries, in the order the corresponding
// keys were passed to Build.
func (h *Handle) IDs() []Id {
	return append([]Id(nil), h.ids...)
}

// session bundles the collaborators and per-call configuration threaded
// through reduce, run and check, mirroring build's signature in the
// specification: build(pool, db, ops, stack, keys).
type session struct {
	pool   pool.Pool
	ops    Ops
	assume Assume
}

type buildOutcome struct {
	values []Value
	err    error
}

// Build interns keys, checks them against stack for a cycle, and either
// returns synchronously with their values or blocks the calling goroutine
// until every one of them resolves.
//
// It returns the duration spent waiting (zero for a fully synchronous
// call), a Handle naming the ids involved, and the resolved values in the
// same order as keys.
func Build(
	ctx context.Context,
	p pool.Pool,
	db *Database,
	ops Ops,
	stack *Stack,
	keys []Key,
	options ...BuildOption,
) (waited time.Duration, handle *Handle, values []Value, err error) {
	// A loom-internal invariant violation (an unknown id, a non-persistable
	// status reaching the journal) is a bug in loom itself, not in a rule;
	// it panics rather than threading an error through every call site.
	// Recover it here, at the single outermost boundary, the way the
	// teacher's bbolt transaction wrapper recovers a panicking update
	// function instead of letting the store be left mid-write. Every lock
	// acquisition below is scoped to its own defer-protected helper, so a
	// panic always releases db.mu before unwinding to this recover.
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*Error); ok {
				err = ie
				return
			}
			panic(r)
		}
	}()

	opts := resolveBuildOptions(options...)

	assume := db.assume
	if opts.Assume != nil {
		assume = *opts.Assume
	}

	sx := &session{pool: p, ops: ops, assume: assume}

	ids, statuses, err := db.reduceAll(ctx, sx, stack, keys)
	if err != nil {
		return 0, nil, nil, err
	}

	if vs, ok := allReady(statuses); ok {
		return 0, &Handle{ids: ids}, vs, nil
	}

	if ferr, ok := firstFailed(statuses); ok {
		return 0, nil, nil, ferr
	}

	start := time.Now()
	barrier := db.registerBarrier(ids, statuses)

	var out buildOutcome
	blockErr := p.Block(ctx, func() error {
		select {
		case out = <-barrier:
			return out.err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	waited = time.Since(start)

	if blockErr != nil {
		return waited, nil, nil, blockErr
	}

	return waited, &Handle{ids: ids}, out.values, nil
}

// reduceAll interns keys, checks them against stack for a cycle, and
// reduces each resulting id once. It holds db.mu for its entire body.
func (db *Database) reduceAll(ctx context.Context, sx *session, stack *Stack, keys []Key) ([]Id, []Status, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := db.internKeys(keys)

	if _, badKey, found := checkStack(stack, ids, keys); found {
		return nil, nil, newRecursionError(badKey)
	}

	statuses := make([]Status, len(ids))
	for i, id := range ids {
		statuses[i] = db.reduce(ctx, sx, stack, id)
	}

	return ids, statuses, nil
}

// registerBarrier installs a waitFor over every still-pending id in ids and
// returns a channel that receives exactly once, when the last of them
// resolves (to a terminal outcome) or the first of them fails. It holds
// db.mu for its entire body.
func (db *Database) registerBarrier(ids []Id, statuses []Status) <-chan buildOutcome {
	db.mu.Lock()
	defer db.mu.Unlock()

	barrier := make(chan buildOutcome, 1)

	var subjects []subject
	for i, s := range statuses {
		if _, ok := s.(*Waiting); ok {
			// The id may have resolved, firing its Waiting, between
			// reduceAll releasing db.mu and this call acquiring it.
			statuses[i] = db.entries[ids[i]].status
		}
		if w, ok := statuses[i].(*Waiting); ok {
			subjects = append(subjects, subject{tag: i, waiting: w})
		}
	}

	if err, ok := firstFailed(statuses); ok {
		barrier <- buildOutcome{err: err}
		return barrier
	}
	if vs, ok := allReady(statuses); ok {
		barrier <- buildOutcome{values: vs}
		return barrier
	}

	waitFor(subjects, func(isLast bool, tag interface{}) bool {
		i := tag.(int)
		id := ids[i]
		e := db.entries[id]

		if f, ok := e.status.(Failed); ok {
			barrier <- buildOutcome{err: f.Err}
			return true
		}

		statuses[i] = e.status

		if !isLast {
			return false
		}

		vs, ok := allReady(statuses)
		if !ok {
			// Shouldn't happen: every subject has fired, so every status
			// must be terminal (Ready or Failed, and Failed is handled
			// above). Guard against a loom bug rather than hang forever.
			barrier <- buildOutcome{err: newInternalInvariantError("build: not all dependencies resolved after final waiter fired")}
			return true
		}

		barrier <- buildOutcome{values: vs}
		return true
	})

	return barrier
}

// allReady returns the Result values of statuses if every one is Ready.
func allReady(statuses []Status) ([]Value, bool) {
	values := make([]Value, len(statuses))

	for i, s := range statuses {
		r, ok := s.(Ready)
		if !ok {
			return nil, false
		}

		values[i] = r.Result.Value
	}

	return values, true
}

// Build is a convenience wrapper around the package-level Build that
// supplies the database's own configured pool, so most callers never need
// to pass one explicitly.
func (db *Database) Build(ctx context.Context, ops Ops, stack *Stack, keys []Key, options ...BuildOption) (time.Duration, *Handle, []Value, error) {
	return Build(ctx, db.pool, db, ops, stack, keys, options...)
}

// firstFailed returns the first Failed status's error, if any.
func firstFailed(statuses []Status) (error, bool) {
	for _, s := range statuses {
		if f, ok := s.(Failed); ok {
			return f.Err, true
		}
	}

	return nil, false
}
