// Package loom implements an incremental build database and scheduler.
//
// It accepts requests to produce values identified by opaque keys,
// memoizes their results across process invocations by persisting them to
// a journal, re-executes only those keys whose transitive inputs have
// changed, and coordinates concurrent evaluation of independent keys under
// a bounded worker pool.
//
// The database owns a single in-memory status map describing the lifecycle
// of every key it has seen. Callers drive the map by calling Build, which
// interns keys, checks for self-dependency, and either returns memoized
// results immediately or blocks the caller until background work finishes.
package loom
