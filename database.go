package loom

import (
	"context"
	"fmt"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/loom/internal/intern"
	"github.com/dogmatiq/loom/internal/journal"
	"github.com/dogmatiq/loom/pool"
	"github.com/dogmatiq/loom/witness"
)

// Database is the in-memory status map and its supporting intern table,
// guarded by a single coarse-grained lock.
//
// The status map, the intern table, and every Waiting's continuation list
// are all guarded by this one lock: no nested locks, and no journal I/O or
// Ops.Execute call happens while it is held. The one Ops call made under it
// is the Ops.Stored probe reduce makes for a Loaded entry.
type Database struct {
	mu      sync.Mutex
	step    Step
	intern  *intern.Table[Key]
	entries map[Id]*entry

	journal journal.Store
	pool    pool.Pool
	witness *witness.Registry
	logger  logging.Logger
	assume  Assume

	ignoreKind func(Key) bool
}

type entry struct {
	key    Key
	status Status
}

// Open replays the journal, materializes the intern table and status map,
// bumps and journals the Step, and returns the resulting Database.
//
// Callers are responsible for calling Close when finished; WithDatabase
// does this automatically.
func Open(options ...DatabaseOption) (*Database, error) {
	opts := resolveDatabaseOptions(options...)

	db := &Database{
		intern:     intern.New[Key](),
		entries:    map[Id]*entry{},
		journal:    opts.Journal,
		pool:       opts.Pool,
		witness:    opts.Witness,
		logger:     opts.Logger,
		assume:     opts.Assume,
		ignoreKind: opts.IgnoreKind,
	}

	if err := db.replay(); err != nil {
		db.journal.Close()
		return nil, fmt.Errorf("loom: replay journal: %w", err)
	}

	step, err := db.journal.Step()
	if err != nil {
		db.journal.Close()
		return nil, fmt.Errorf("loom: load step: %w", err)
	}

	db.step = Step(step) + 1

	if err := db.journal.PutStep(uint32(db.step)); err != nil {
		db.journal.Close()
		return nil, fmt.Errorf("loom: journal step: %w", err)
	}

	if logging.IsDebug(db.logger) {
		logging.Debug(db.logger, "opened database at step %d with %d interned key(s)", db.step, db.intern.Len())
	}

	return db, nil
}

// replay reconstructs the intern table and status map from the journal.
func (db *Database) replay() error {
	return db.journal.Replay(func(e journal.Entry) error {
		key := Key{Tag: e.KeyTag, Payload: e.KeyPayload}
		db.intern.Restore(e.Id, key)

		var status Status
		if e.Loaded {
			status = Loaded{Result: decodeResult(e.Result)}
		} else {
			status = Missing{}
		}

		db.entries[Id(e.Id)] = &entry{key: key, status: status}

		return nil
	})
}

// Close releases the resources held by the database, in particular its
// journal's underlying file.
func (db *Database) Close() error {
	return db.journal.Close()
}

// Witness returns the codec registry used to encode and decode the Key and
// Value payloads this database's keys and rules are built from.
//
// Rule implementations reach it through here (rather than holding their own
// reference to the *witness.Registry passed to WithWitness) so a single
// registry, with every type a build ever sees registered on it, is shared
// across every rule and every call to Ops.Stored/Ops.Execute.
func (db *Database) Witness() *witness.Registry {
	return db.witness
}

// WithDatabase opens a Database, invokes body, and closes the database on
// the way out regardless of body's outcome — the scoped-acquisition
// pattern named in the specification's external interfaces.
func WithDatabase(ctx context.Context, options []DatabaseOption, body func(ctx context.Context, db *Database) error) error {
	db, err := Open(options...)
	if err != nil {
		return err
	}
	defer db.Close()

	return body(ctx, db)
}

// internKeys interns each of keys, returning their ids in the same order.
// Freshly interned ids are installed as Missing. Must be called under db's
// lock.
func (db *Database) internKeys(keys []Key) []Id {
	ids := make([]Id, len(keys))

	for i, k := range keys {
		id, isNew := db.intern.Intern(k)
		ids[i] = Id(id)

		if isNew {
			db.entries[Id(id)] = &entry{key: k, status: Missing{}}
		}
	}

	return ids
}
