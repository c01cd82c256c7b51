package journal_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/dogmatiq/loom/internal/journal"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

func replayed(s Store) []Entry {
	var entries []Entry
	err := s.Replay(func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	Expect(err).ToNot(HaveOccurred())
	return entries
}

var _ = Describe("type MemoryStore", func() {
	var s *MemoryStore

	BeforeEach(func() {
		s = NewMemory()
	})

	It("replays records in first-write order", func() {
		Expect(s.PutMissing(2, "t", "b")).To(Succeed())
		Expect(s.PutMissing(1, "t", "a")).To(Succeed())

		entries := replayed(s)
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Id).To(BeEquivalentTo(2))
		Expect(entries[1].Id).To(BeEquivalentTo(1))
	})

	It("overwrites a prior record for the same id without changing its order", func() {
		Expect(s.PutMissing(1, "t", "a")).To(Succeed())
		Expect(s.PutLoaded(1, "t", "a", Result{ValueTag: "t", ValuePayload: "v"})).To(Succeed())

		entries := replayed(s)
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Loaded).To(BeTrue())
		Expect(entries[0].Result.ValuePayload).To(Equal("v"))
	})

	It("round-trips a Loaded record with dependency groups and traces", func() {
		r := Result{
			ValueTag:     "t",
			ValuePayload: "v",
			Built:        3,
			Changed:      2,
			Depends:      [][]uint32{{1, 2}, {3}},
			ExecutionNS:  1500,
			Traces: []Trace{
				{Message: "m", Tag: "x", Start: 1.5, End: 2.5},
			},
		}
		Expect(s.PutLoaded(7, "kt", "kp", r)).To(Succeed())

		entries := replayed(s)
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Result).To(Equal(r))
	})

	It("reports no step before one is written", func() {
		step, err := s.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(step).To(BeZero())
	})

	It("remembers the last-journaled step", func() {
		Expect(s.PutStep(4)).To(Succeed())
		step, err := s.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(step).To(BeEquivalentTo(4))
	})

	It("closes without error", func() {
		Expect(s.Close()).To(Succeed())
	})
})

var _ = Describe("type BoltStore", func() {
	var (
		dir  string
		path string
		s    *BoltStore
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "loom-journal-")
		Expect(err).ToNot(HaveOccurred())
		path = filepath.Join(dir, "journal.db")

		s, err = OpenBolt(path)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		s.Close()
		os.RemoveAll(dir)
	})

	It("persists Missing and Loaded records across a reopen", func() {
		Expect(s.PutMissing(1, "t", "a")).To(Succeed())
		Expect(s.PutLoaded(2, "t", "b", Result{ValueTag: "t", ValuePayload: "v", Built: 1, Changed: 1})).To(Succeed())
		Expect(s.Close()).To(Succeed())

		reopened, err := OpenBolt(path)
		Expect(err).ToNot(HaveOccurred())
		defer reopened.Close()

		entries := replayed(reopened)
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Loaded).To(BeFalse())
		Expect(entries[1].Loaded).To(BeTrue())
		Expect(entries[1].Result.ValuePayload).To(Equal("v"))
	})

	It("persists the step across a reopen", func() {
		Expect(s.PutStep(9)).To(Succeed())
		Expect(s.Close()).To(Succeed())

		reopened, err := OpenBolt(path)
		Expect(err).ToNot(HaveOccurred())
		defer reopened.Close()

		step, err := reopened.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(step).To(BeEquivalentTo(9))
	})

	It("discards a torn record instead of failing the whole replay", func() {
		Expect(s.PutMissing(1, "t", "a")).To(Succeed())

		// Release the store's file lock so the file can be opened directly.
		Expect(s.Close()).To(Succeed())

		// Write a second record whose declared field length reaches past the
		// end of the stored bytes, simulating a crash mid-write.
		db, err := bbolt.Open(path, 0600, nil)
		Expect(err).ToNot(HaveOccurred())

		var key [4]byte
		binary.BigEndian.PutUint32(key[:], 2)

		torn := []byte{0, 0, 0, 0, 5, 'a', 'b'} // tag byte + declared len 5, only 2 bytes present
		err = db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket([]byte("loom.records"))
			return b.Put(key[:], torn)
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(db.Close()).To(Succeed())

		reopened, err := OpenBolt(path)
		Expect(err).ToNot(HaveOccurred())
		defer reopened.Close()

		entries := replayed(reopened)
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Id).To(BeEquivalentTo(1))
	})
})
