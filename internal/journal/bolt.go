package journal

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("loom.records")
	metaBucket    = []byte("loom.meta")
	stepKey       = []byte("step")
)

// BoltStore is a Store backed by a go.etcd.io/bbolt database, the same
// embedded store the teacher defaults to (boltdb.FileProvider) for
// single-node deployments.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt-backed Store at path.
//
// It mirrors internal/x/bboltx.Open: a 0600 file mode and the database's
// own buckets created eagerly so later transactions never need to check
// for their existence on the happy path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: initialize %s: %w", path, err)
	}

	return &BoltStore{db: db}, nil
}

// Replay invokes fn once for every record currently in the journal.
//
// A record whose framing is torn (the process crashed mid-write, before
// bbolt's own transaction commit made it durable) is discarded rather than
// aborting the whole replay — bbolt itself never exposes a partially
// committed transaction, so in practice this only guards against a future
// change of storage backend that doesn't offer the same guarantee.
func (s *BoltStore) Replay(fn func(Entry) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			id := binary.BigEndian.Uint32(k)

			e, err := decodeEntry(id, v)
			if err != nil {
				continue
			}

			if err := fn(e); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BoltStore) put(id uint32, e Entry) error {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], id)

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		return b.Put(k[:], encodeEntry(e))
	})
}

// PutMissing journals id as Missing.
func (s *BoltStore) PutMissing(id uint32, keyTag, keyPayload string) error {
	return s.put(id, Entry{
		Id:         id,
		KeyTag:     keyTag,
		KeyPayload: keyPayload,
		Loaded:     false,
	})
}

// PutLoaded journals id as Loaded with the given Result.
func (s *BoltStore) PutLoaded(id uint32, keyTag, keyPayload string, r Result) error {
	return s.put(id, Entry{
		Id:         id,
		KeyTag:     keyTag,
		KeyPayload: keyPayload,
		Loaded:     true,
		Result:     r,
	})
}

// Step returns the last-journaled Step, or 0 if none has been written.
func (s *BoltStore) Step() (uint32, error) {
	var step uint32

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return nil
		}

		v := b.Get(stepKey)
		if v == nil {
			return nil
		}

		step = binary.BigEndian.Uint32(v)
		return nil
	})

	return step, err
}

// PutStep journals the current Step.
func (s *BoltStore) PutStep(step uint32) error {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], step)

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		return b.Put(stepKey, v[:])
	})
}

// Close releases the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
