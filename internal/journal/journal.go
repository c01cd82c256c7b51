// Package journal is the crash-safe, append-only persistence layer that
// lets the next process reconstruct a database's status map.
//
// Records are framed as length-prefixed fields the way the teacher's
// persistence/provider/boltdb package frames stream offsets and message
// bodies (encoding/binary, one bucket per concern). Only the two
// persistable status variants — Missing and Loaded — are ever written.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Trace mirrors loom.Trace using only primitive types, so this package has
// no dependency on the root package (which depends on journal, not the
// other way around).
type Trace struct {
	Message string
	Tag     string
	Start   float64
	End     float64
}

// Result mirrors loom.Result using only primitive types.
type Result struct {
	ValueTag     string
	ValuePayload string
	Built        uint32
	Changed      uint32
	Depends      [][]uint32
	ExecutionNS  int64
	Traces       []Trace
}

// Entry is a single (id, key, status) record as persisted by a Store.
//
// Loaded distinguishes the two persistable status variants: false means
// Missing, true means Loaded, with Result populated.
type Entry struct {
	Id         uint32
	KeyTag     string
	KeyPayload string
	Loaded     bool
	Result     Result
}

// Store is the durable, append-only log of (id, key, status) records.
//
// Journal I/O happens outside the database lock, after a status update has
// already been made visible in memory, so implementations need not be safe
// for use while any other lock is held by the caller — they only need to
// be safe for concurrent use by multiple goroutines, since writes and the
// eventual Close race against each other across the database's lifetime.
type Store interface {
	// Replay invokes fn once for every record currently in the journal, in
	// an order set by the implementation (ascending id for BoltStore,
	// first-write order for MemoryStore). It is called once, at startup,
	// before any writes.
	Replay(fn func(Entry) error) error

	// PutMissing journals id as Missing.
	PutMissing(id uint32, keyTag, keyPayload string) error

	// PutLoaded journals id as Loaded with the given Result.
	PutLoaded(id uint32, keyTag, keyPayload string, r Result) error

	// Step returns the last-journaled Step, or 0 if none has been written.
	Step() (uint32, error)

	// PutStep journals the current Step.
	PutStep(step uint32) error

	// Close releases resources held by the store.
	Close() error
}

// ErrTornRecord is returned by decodeEntry when a record's framing is
// inconsistent with its declared length — the record was not fully
// written before a crash. BoltStore.Replay skips such a record and goes on
// replaying the others; it does not return this error.
var ErrTornRecord = errors.New("journal: torn record discarded")

// encodeEntry frames e as a self-delimited byte string.
func encodeEntry(e Entry) []byte {
	var buf bytes.Buffer

	if e.Loaded {
		buf.WriteByte(1)
		putString(&buf, e.KeyTag)
		putString(&buf, e.KeyPayload)
		putString(&buf, e.Result.ValueTag)
		putString(&buf, e.Result.ValuePayload)
		putUint32(&buf, e.Result.Built)
		putUint32(&buf, e.Result.Changed)

		putUint32(&buf, uint32(len(e.Result.Depends)))
		for _, group := range e.Result.Depends {
			putUint32(&buf, uint32(len(group)))
			for _, id := range group {
				putUint32(&buf, id)
			}
		}

		putInt64(&buf, e.Result.ExecutionNS)

		putUint32(&buf, uint32(len(e.Result.Traces)))
		for _, t := range e.Result.Traces {
			putString(&buf, t.Message)
			putString(&buf, t.Tag)
			putFloat64(&buf, t.Start)
			putFloat64(&buf, t.End)
		}
	} else {
		buf.WriteByte(0)
		putString(&buf, e.KeyTag)
		putString(&buf, e.KeyPayload)
	}

	return buf.Bytes()
}

// decodeEntry reverses encodeEntry. It returns ErrTornRecord if data ends
// before a framed field is fully readable.
func decodeEntry(id uint32, data []byte) (Entry, error) {
	r := bytes.NewReader(data)

	tag, err := r.ReadByte()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	e := Entry{Id: id, Loaded: tag == 1}

	e.KeyTag, err = getString(r)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	e.KeyPayload, err = getString(r)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	if !e.Loaded {
		return e, nil
	}

	if e.Result.ValueTag, err = getString(r); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	if e.Result.ValuePayload, err = getString(r); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	if e.Result.Built, err = getUint32(r); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	if e.Result.Changed, err = getUint32(r); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	groupCount, err := getUint32(r)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	for i := uint32(0); i < groupCount; i++ {
		n, err := getUint32(r)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
		}

		group := make([]uint32, n)
		for j := range group {
			if group[j], err = getUint32(r); err != nil {
				return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
			}
		}

		e.Result.Depends = append(e.Result.Depends, group)
	}

	if e.Result.ExecutionNS, err = getInt64(r); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	traceCount, err := getUint32(r)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
	}

	for i := uint32(0); i < traceCount; i++ {
		var t Trace

		if t.Message, err = getString(r); err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
		}

		if t.Tag, err = getString(r); err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
		}

		if t.Start, err = getFloat64(r); err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
		}

		if t.End, err = getFloat64(r); err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTornRecord, err)
		}

		e.Result.Traces = append(e.Result.Traces, t)
	}

	return e, nil
}

func putUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func getUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func putInt64(w *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.Write(b[:])
}

func getInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func putFloat64(w *bytes.Buffer, v float64) {
	putInt64(w, int64(math.Float64bits(v)))
}

func getFloat64(r io.Reader) (float64, error) {
	n, err := getInt64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(n)), nil
}

func putString(w *bytes.Buffer, s string) {
	putUint32(w, uint32(len(s)))
	w.WriteString(s)
}

func getString(r io.Reader) (string, error) {
	n, err := getUint32(r)
	if err != nil {
		return "", err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return string(b), nil
}
