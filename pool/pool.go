// Package pool implements the bounded worker pool collaborator specified
// as an interface-only dependency of the scheduler.
//
// It is grounded on the engine's own semaphore package (a thin wrapper
// around golang.org/x/sync/semaphore.Weighted) plus the "blocking slot"
// primitive the scheduler needs to avoid deadlocking when every worker is
// blocked waiting on its own dependencies.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type ctxKey struct{}

// Pool is a bounded worker pool.
//
// Go dispatches fn to run concurrently, subject to the pool's concurrency
// limit; it never blocks the caller. Block is used by a goroutine that is
// about to block on something outside the pool's control (a database
// barrier) — it releases that goroutine's concurrency unit for the
// duration of fn, admitting another worker in its place, and reacquires
// the unit before returning.
type Pool interface {
	Go(ctx context.Context, fn func(ctx context.Context))
	Block(ctx context.Context, fn func() error) error
}

// Weighted is a Pool backed by a golang.org/x/sync/semaphore.Weighted, the
// same primitive the teacher's semaphore package wraps.
type Weighted struct {
	n   int
	sem *semaphore.Weighted
}

// New returns a Pool that runs at most n tasks concurrently. If n is
// non-positive, the returned Pool does not limit concurrency at all.
func New(n int) *Weighted {
	if n <= 0 {
		return &Weighted{}
	}

	return &Weighted{
		n:   n,
		sem: semaphore.NewWeighted(int64(n)),
	}
}

// Limit returns the number of tasks that may run concurrently, or 0 if
// there is no limit.
func (p *Weighted) Limit() int {
	if p.sem == nil {
		return 0
	}

	return p.n
}

// Go runs fn on a new goroutine once a concurrency unit is available.
//
// fn receives a context carrying the held unit, so that a subsequent call
// to Block from within fn (or anything fn calls) can find and release it.
func (p *Weighted) Go(ctx context.Context, fn func(ctx context.Context)) {
	go func() {
		if p.sem != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return
			}

			defer p.sem.Release(1)
		}

		fn(context.WithValue(ctx, ctxKey{}, p))
	}()
}

// Block runs fn, releasing the caller's concurrency unit (if it holds one,
// i.e. it is running inside a Go-dispatched task) for the duration, so
// that the pool can admit another worker while this one is stalled.
//
// If ctx does not carry a unit — the caller is not itself a pool task, for
// example the top-level caller of Build — fn is simply invoked directly.
func (p *Weighted) Block(ctx context.Context, fn func() error) error {
	held, _ := ctx.Value(ctxKey{}).(*Weighted)

	if held == nil || held.sem == nil {
		return fn()
	}

	held.sem.Release(1)
	defer func() {
		// Reacquisition is not subject to cancellation: the unit was ours
		// to begin with, and the caller is about to resume running on this
		// goroutine regardless of fn's outcome.
		_ = held.sem.Acquire(context.Background(), 1)
	}()

	return fn()
}
