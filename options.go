package loom

import (
	"runtime"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/loom/internal/journal"
	"github.com/dogmatiq/loom/pool"
	"github.com/dogmatiq/loom/witness"
)

var (
	// DefaultConcurrencyLimit is the default number of rules to execute
	// concurrently when no WithPool() option is supplied.
	//
	// It is overridden by the WithPool() option.
	DefaultConcurrencyLimit = runtime.GOMAXPROCS(0) * 2

	// DefaultAssume is the default Assume mode applied to every Build()
	// call unless overridden by a BuildOption.
	//
	// It is overridden by the WithAssume() option.
	DefaultAssume = AssumeNone

	// DefaultLogger is the default target for log messages produced by a
	// Database.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// DatabaseOption configures the behavior of a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	Journal    journal.Store
	Pool       pool.Pool
	Witness    *witness.Registry
	Logger     logging.Logger
	Assume     Assume
	IgnoreKind func(Key) bool
}

func resolveDatabaseOptions(options ...DatabaseOption) *databaseOptions {
	opts := &databaseOptions{
		Assume: DefaultAssume,
		Logger: DefaultLogger,
	}

	for _, opt := range options {
		opt(opts)
	}

	if opts.Journal == nil {
		opts.Journal = journal.NewMemory()
	}

	if opts.Pool == nil {
		opts.Pool = pool.New(DefaultConcurrencyLimit)
	}

	if opts.Witness == nil {
		opts.Witness = witness.New()
	}

	return opts
}

// WithJournalPath returns a DatabaseOption that persists the database to a
// bbolt file at path.
//
// If this option and WithJournalStore() are both omitted, an in-memory
// journal.MemoryStore is used and nothing survives a process restart.
func WithJournalPath(path string) DatabaseOption {
	return func(opts *databaseOptions) {
		store, err := journal.OpenBolt(path)
		if err != nil {
			panic(err)
		}

		opts.Journal = store
	}
}

// WithJournalStore returns a DatabaseOption that uses an already-open
// journal.Store, such as an injected test double.
func WithJournalStore(store journal.Store) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.Journal = store
	}
}

// WithPool returns a DatabaseOption that sets the bounded worker pool used
// to run rules concurrently.
//
// If this option is omitted, a pool.Weighted of DefaultConcurrencyLimit is
// used.
func WithPool(p pool.Pool) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.Pool = p
	}
}

// WithWitness returns a DatabaseOption that sets the codec registry used
// to encode and decode Key and Value payloads.
func WithWitness(r *witness.Registry) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.Witness = r
	}
}

// WithLogger returns a DatabaseOption that sets the target for the
// database's log messages.
func WithLogger(l logging.Logger) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.Logger = l
	}
}

// WithAssume returns a DatabaseOption that sets the default Assume mode
// applied to every Build() call.
func WithAssume(a Assume) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.Assume = a
	}
}

// WithIgnoreKind returns a DatabaseOption that installs a predicate used
// by CheckValid to skip values the caller has marked as always rebuilding
// (the "Special predicate" of the specification's validity checker).
func WithIgnoreKind(fn func(Key) bool) DatabaseOption {
	return func(opts *databaseOptions) {
		opts.IgnoreKind = fn
	}
}

// BuildOption configures a single call to Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	Assume *Assume
}

func resolveBuildOptions(options ...BuildOption) *buildOptions {
	opts := &buildOptions{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// WithBuildAssume returns a BuildOption that overrides the database's
// default Assume mode for a single Build() call.
func WithBuildAssume(a Assume) BuildOption {
	return func(opts *buildOptions) {
		opts.Assume = &a
	}
}
