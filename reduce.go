package loom

import (
	"context"

	"github.com/dogmatiq/dodeca/logging"
)

// reduce advances id's status as far as it can proceed without blocking,
// and returns the resulting Status. A Ready or Failed result is terminal;
// a *Waiting result means the caller must register a continuation (via
// waitFor/afterWaiting) to observe its eventual outcome.
//
// Must be called with db.mu held. It never touches the journal, but may
// call Ops.Stored synchronously for a Loaded entry — see the Loaded case
// below for why that is safe under the lock.
func (db *Database) reduce(ctx context.Context, sx *session, stack *Stack, id Id) Status {
	e, ok := db.entries[id]
	if !ok {
		panic(newInternalInvariantError("id %d is not in the status map", id))
	}
	pushed := stack.Push(id, e.key)

	switch s := e.status.(type) {
	case Missing:
		return db.dispatchRun(ctx, sx, pushed, id, e.key, nil)

	case Loaded:
		r := s.Result

		switch sx.assume {
		case AssumeDirty:
			return db.dispatchRun(ctx, sx, pushed, id, e.key, &r)

		case AssumeSkip:
			return db.commitLocked(id, Ready{Result: r})

		default:
			// AssumeNone and AssumeClean both consult stored here; only
			// AssumeClean's further shortcut (skip execute if stored has
			// a value) applies inside the pool task dispatched by run.
			//
			// Calling Stored while holding the lock is deliberate: this
			// id's status is still Loaded, so no other goroutine is
			// contending for it yet.
			value, ok, err := sx.ops.Stored(ctx, e.key)
			if err != nil {
				return db.commitLocked(id, Failed{Err: newExecutionError(e.key, err)})
			}

			if !ok || value != r.Value {
				return db.dispatchRun(ctx, sx, pushed, id, e.key, &r)
			}

			return db.check(ctx, sx, pushed, id, e.key, r, r.Depends)
		}

	case Ready:
		return s

	case Failed:
		return s

	case *Waiting:
		return s

	default:
		panic(newInternalInvariantError("id %d has unrecognized status %T", id, s))
	}
}

// check walks r's dependency groups in order, reducing each group's ids,
// and decides whether id's prior result r is still valid, needs rebuilding,
// or must wait on one or more pending dependencies.
//
// Must be called with db.mu held.
func (db *Database) check(ctx context.Context, sx *session, stack *Stack, id Id, key Key, r Result, groups [][]Id) Status {
	if len(groups) == 0 {
		return db.commitLocked(id, Ready{Result: r})
	}

	group := groups[0]
	rest := groups[1:]

	statuses := make([]Status, len(group))
	for i, d := range group {
		statuses[i] = db.reduce(ctx, sx, stack, d)
	}

	return db.checkGroup(ctx, sx, stack, id, key, r, rest, group, statuses)
}

// checkGroup decides the outcome of a single dependency group that has
// just been reduced (or, for a previously-pending group, re-evaluates it
// after one of its dependencies has resolved).
//
// Must be called with db.mu held.
func (db *Database) checkGroup(
	ctx context.Context,
	sx *session,
	stack *Stack,
	id Id,
	key Key,
	r Result,
	rest [][]Id,
	group []Id,
	statuses []Status,
) Status {
	if err, ok := firstFailedDep(statuses); ok {
		return db.commitLocked(id, Failed{Err: err})
	}

	if anyChanged(statuses, r.Built) {
		return db.dispatchRun(ctx, sx, stack, id, key, &r)
	}

	var subjects []subject
	pending := false

	for i, s := range statuses {
		if w, ok := s.(*Waiting); ok {
			pending = true
			subjects = append(subjects, subject{tag: i, waiting: w})
		}
	}

	if pending {
		win := db.installWaiting(id, &r)

		waitFor(subjects, func(isLast bool, tag interface{}) bool {
			i := tag.(int)
			statuses[i] = db.entries[group[i]].status

			if !isLast {
				return false
			}

			next := db.checkGroup(ctx, sx, stack, id, key, r, rest, group, statuses)

			if w2, ok := next.(*Waiting); ok {
				afterWaiting(w2, func() { runWaiting(win) })
			} else {
				runWaiting(win)
			}

			return true
		})

		return win
	}

	return db.check(ctx, sx, stack, id, key, r, rest)
}

// firstFailedDep returns the first Failed dependency's error, if any.
func firstFailedDep(statuses []Status) (error, bool) {
	for _, s := range statuses {
		if f, ok := s.(Failed); ok {
			return f.Err, true
		}
	}

	return nil, false
}

// anyChanged reports whether any Ready dependency in statuses changed more
// recently than built, meaning the result that depends on it is stale.
func anyChanged(statuses []Status, built Step) bool {
	for _, s := range statuses {
		if r, ok := s.(Ready); ok {
			if r.Result.Changed > built {
				return true
			}
		}
	}

	return false
}

// installWaiting installs and returns a fresh *Waiting for id, carrying
// prior as its Prior for reporting (Progress, ShowJSON).
//
// Must be called with db.mu held.
func (db *Database) installWaiting(id Id, prior *Result) *Waiting {
	w := &Waiting{Prior: prior, pending: newPending()}
	db.entries[id].status = w
	return w
}

// dispatchRun installs a fresh *Waiting for id and schedules the rule's
// execution on the pool, returning the Waiting so the caller can register
// a continuation.
//
// Must be called with db.mu held.
func (db *Database) dispatchRun(ctx context.Context, sx *session, stack *Stack, id Id, key Key, prior *Result) *Waiting {
	w := db.installWaiting(id, prior)
	step := db.step

	sx.pool.Go(ctx, func(ctx context.Context) {
		db.runTask(ctx, sx, stack, id, key, prior, step)
	})

	return w
}

// runTask performs the out-of-lock work of a dispatched run: either the
// AssumeClean shortcut (probe Stored, reuse prior's dependency graph) or a
// full Execute call, then commits the outcome.
//
// Runs without db.mu held; it is invoked from inside the pool, possibly
// deep inside a nested Build call made by Execute.
func (db *Database) runTask(ctx context.Context, sx *session, stack *Stack, id Id, key Key, prior *Result, step Step) {
	var final Status

	if prior != nil && sx.assume == AssumeClean {
		value, ok, err := sx.ops.Stored(ctx, key)
		switch {
		case err != nil:
			final = Failed{Err: newExecutionError(key, err)}
		case ok:
			r := *prior
			r.Value = value
			final = Ready{Result: r}
		default:
			final = db.execute(ctx, sx, stack, key, prior, step)
		}
	} else {
		final = db.execute(ctx, sx, stack, key, prior, step)
	}

	db.commit(id, key, final)
}

// execute calls Ops.Execute and folds its outcome into a Result, carrying
// prior's Changed step forward when the newly produced value compares
// equal to the one previously recorded.
func (db *Database) execute(ctx context.Context, sx *session, stack *Stack, key Key, prior *Result, step Step) Status {
	value, depends, execution, traces, err := sx.ops.Execute(ctx, stack, key)
	if err != nil {
		return Failed{Err: newExecutionError(key, err)}
	}

	changed := step
	if prior != nil && prior.Value == value {
		changed = prior.Changed
	}

	return Ready{
		Result: Result{
			Value:     value,
			Built:     step,
			Changed:   changed,
			Depends:   cloneDependGroups(depends),
			Execution: execution,
			Traces:    traces,
		},
	}
}

// commit records id's final outcome, fires its Waiting's continuations, and
// journals the outcome: Loaded on a successful run, Missing on a failed one,
// so a stale Loaded record is never left behind for a key whose rule just
// failed to reproduce it.
//
// Reacquires db.mu for the in-memory update and continuation dispatch,
// but performs the journal write after releasing it, so that no I/O ever
// happens while the lock is held.
func (db *Database) commit(id Id, key Key, final Status) {
	db.mu.Lock()
	e := db.entries[id]
	w, wasWaiting := e.status.(*Waiting)
	e.status = final
	if wasWaiting {
		runWaiting(w)
	}
	db.mu.Unlock()

	switch r := final.(type) {
	case Ready:
		if err := db.journal.PutLoaded(uint32(id), key.Tag, key.Payload, encodeResult(r.Result)); err != nil {
			if logging.IsDebug(db.logger) {
				logging.Debug(db.logger, "%s: failed to journal result: %s", key, err)
			}
		}

	case Failed:
		// Overwrite any prior Loaded record: the engine just proved this
		// key's last successful result unreproducible, so a crash right
		// after this point must not resurrect it on replay.
		if err := db.journal.PutMissing(uint32(id), key.Tag, key.Payload); err != nil {
			if logging.IsDebug(db.logger) {
				logging.Debug(db.logger, "%s: failed to journal failure: %s", key, err)
			}
		}

	default:
		panic(newInternalInvariantError("id %d: cannot journal non-persistable status %T", id, final))
	}
}

// cloneDependGroups returns a deep copy of depends, so a Result does not
// alias a slice the rule implementation might still mutate.
func cloneDependGroups(depends [][]Id) [][]Id {
	if depends == nil {
		return nil
	}

	out := make([][]Id, len(depends))
	for i, g := range depends {
		out[i] = append([]Id(nil), g...)
	}

	return out
}

// commitLocked records id's final outcome without dispatching pool work or
// touching the journal, for the paths where a decision was reached without
// running the rule: an AssumeSkip acceptance or a clean re-validation
// (Ready), a failed Stored probe, or a dependency that had already failed
// (Failed).
//
// Must be called with db.mu held.
func (db *Database) commitLocked(id Id, status Status) Status {
	db.entries[id].status = status
	return status
}
