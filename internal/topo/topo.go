// Package topo implements the dependency-order topological emitter used
// for reporting (progress and showJSON need results in an order where
// every dependency precedes its dependents).
//
// It lives alongside internal/intern and internal/journal as its own
// narrow, dependency-free package, the same way the teacher keeps small
// container algorithms under internal/x/containerx (pdeque, pqueue) rather
// than folding them into the packages that consume them.
package topo

import "fmt"

// CycleError is returned by Order when the dependency graph is not
// acyclic. It names up to 10 offending nodes, plus a count of how many
// more were left over.
type CycleError struct {
	Keys     []string
	Overflow int
}

func (e *CycleError) Error() string {
	msg := fmt.Sprintf("dependency graph is cyclic: %d node(s) could not be ordered", len(e.Keys)+e.Overflow)
	for _, k := range e.Keys {
		msg += "\n  " + k
	}
	if e.Overflow > 0 {
		msg += fmt.Sprintf("\n  ... and %d more", e.Overflow)
	}
	return msg
}

type waiter[T comparable] struct {
	node      T
	remaining []T
}

// Order returns a linear order over the keys of deps such that if y
// appears in deps[x] then y precedes x in the result.
//
// deps must have one entry per node, including nodes with no dependencies
// (an empty, non-nil or nil slice). display names a node for CycleError.
//
// The algorithm partitions nodes into those with no dependencies and those
// with at least one; each node with dependencies d1..dn is registered as
// "waiting on d1, with remaining d2..dn". Emitting a no-dependency node
// releases its waiters: remaining dependencies that have already been
// emitted are dropped, then a waiter with no remaining dependencies is
// enqueued, otherwise it is re-registered under the head of its remaining
// list. Any entry still waiting once the queue empties is part of a cycle.
func Order[T comparable](deps map[T][]T, display func(T) string) ([]T, error) {
	waiting := make(map[T][]waiter[T])
	queue := make([]T, 0, len(deps))

	for node, ds := range deps {
		if len(ds) == 0 {
			queue = append(queue, node)
			continue
		}

		head, rest := ds[0], ds[1:]
		waiting[head] = append(waiting[head], waiter[T]{node, rest})
	}

	order := make([]T, 0, len(deps))
	emitted := make(map[T]bool, len(deps))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		emitted[node] = true

		released := waiting[node]
		delete(waiting, node)

		for _, w := range released {
			remaining := w.remaining
			for len(remaining) > 0 && emitted[remaining[0]] {
				remaining = remaining[1:]
			}

			if len(remaining) == 0 {
				queue = append(queue, w.node)
				continue
			}

			head, rest := remaining[0], remaining[1:]
			waiting[head] = append(waiting[head], waiter[T]{w.node, rest})
		}
	}

	if len(waiting) == 0 {
		return order, nil
	}

	var names []string
	overflow := 0

	for _, entries := range waiting {
		for _, w := range entries {
			if len(names) < 10 {
				names = append(names, display(w.node))
			} else {
				overflow++
			}
		}
	}

	return nil, &CycleError{Keys: names, Overflow: overflow}
}
