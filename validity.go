package loom

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Prober is the subset of Ops the validity checker needs: a way to probe
// the external world for a key's current value.
type Prober interface {
	Stored(ctx context.Context, key Key) (value Value, ok bool, err error)
}

// CheckValid re-probes every Ready result's key via prober and compares the
// probed value against the one recorded in the status map.
//
// A key for which db's WithIgnoreKind predicate returns true — marked by
// the caller as "always rebuilds" — is skipped. Probe errors are
// aggregated independently of mismatches via multierr, since a failure to
// probe is not itself evidence of a stale result.
//
// If any mismatch is found, a single *Error of kind LintFailure is
// returned, naming every offending (key, old, new) triple. If only probe
// errors occurred, their aggregate is returned directly (not wrapped as a
// LintFailure, since no stale result was actually observed).
func CheckValid(ctx context.Context, db *Database, prober Prober) error {
	type stale struct {
		key Key
		old Value
		new Value
	}

	var mismatches []stale
	var probeErr error

	db.mu.Lock()
	type candidate struct {
		key Key
		r   Result
	}
	var candidates []candidate
	for _, e := range db.entries {
		r, ok := e.status.(Ready)
		if !ok {
			continue
		}
		if db.ignoreKind != nil && db.ignoreKind(e.key) {
			continue
		}
		candidates = append(candidates, candidate{key: e.key, r: r.Result})
	}
	db.mu.Unlock()

	for _, c := range candidates {
		value, ok, err := prober.Stored(ctx, c.key)
		if err != nil {
			probeErr = multierr.Append(probeErr, fmt.Errorf("probe %s: %w", c.key, err))
			continue
		}

		if !ok || value != c.r.Value {
			mismatches = append(mismatches, stale{key: c.key, old: c.r.Value, new: value})
		}
	}

	if len(mismatches) == 0 {
		return probeErr
	}

	rows := make([]string, len(mismatches))
	for i, m := range mismatches {
		rows[i] = fmt.Sprintf("%s: recorded %s, now %s", m.key, m.old, m.new)
	}

	return &Error{
		Kind:    LintFailure,
		Heading: fmt.Sprintf("%d stored value(s) no longer match their recorded result", len(mismatches)),
		Rows:    rows,
		Cause:   probeErr,
	}
}
