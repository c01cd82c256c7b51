package loom

import (
	"context"

	"github.com/dogmatiq/loom/internal/journal"
	"github.com/dogmatiq/loom/witness"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("func Open()", func() {
	It("starts a fresh database at step 1", func() {
		db, err := Open()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.step).To(Equal(Step(1)))
	})

	It("bumps the step on every reopen of the same journal", func() {
		store := journal.NewMemory()

		db1, err := Open(WithJournalStore(store))
		Expect(err).ToNot(HaveOccurred())
		Expect(db1.step).To(Equal(Step(1)))
		Expect(db1.Close()).To(Succeed())

		db2, err := Open(WithJournalStore(store))
		Expect(err).ToNot(HaveOccurred())
		defer db2.Close()
		Expect(db2.step).To(Equal(Step(2)))
	})

	It("restores interned keys and statuses from the journal", func() {
		store := journal.NewMemory()

		Expect(store.PutMissing(0, "t", "a")).To(Succeed())
		Expect(store.PutLoaded(1, "t", "b", journal.Result{
			ValueTag:     "t",
			ValuePayload: "v",
			Built:        1,
			Changed:      1,
		})).To(Succeed())

		db, err := Open(WithJournalStore(store))
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.entries[0].key).To(Equal(Key{Tag: "t", Payload: "a"}))
		Expect(db.entries[0].status).To(Equal(Missing{}))

		loaded, ok := db.entries[1].status.(Loaded)
		Expect(ok).To(BeTrue())
		Expect(loaded.Result.Value).To(Equal(Value{Tag: "t", Payload: "v"}))

		Expect(db.intern.Len()).To(Equal(2))
	})

	It("applies default options when none are given", func() {
		db, err := Open()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.assume).To(Equal(DefaultAssume))
		Expect(db.pool).ToNot(BeNil())
	})

	It("honors an explicit Assume option", func() {
		db, err := Open(WithAssume(AssumeDirty))
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.assume).To(Equal(AssumeDirty))
	})

	It("exposes an empty witness registry by default", func() {
		db, err := Open()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.Witness()).ToNot(BeNil())
	})

	It("exposes the registry given to WithWitness", func() {
		r := witness.New()
		r.Register(fileRuleFixture{})

		db, err := Open(WithWitness(r))
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		Expect(db.Witness()).To(BeIdenticalTo(r))

		tag, payload, err := db.Witness().Encode(fileRuleFixture{Path: "a"})
		Expect(err).ToNot(HaveOccurred())

		got, err := db.Witness().Decode(tag, payload)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(fileRuleFixture{Path: "a"}))
	})
})

type fileRuleFixture struct {
	Path string
}

var _ = Describe("func WithDatabase()", func() {
	It("opens a database at step 1 and runs body", func() {
		store := journal.NewMemory()

		var sawStep Step
		err := WithDatabase(context.Background(), []DatabaseOption{WithJournalStore(store)}, func(ctx context.Context, db *Database) error {
			sawStep = db.step
			return nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(sawStep).To(Equal(Step(1)))

		// the step Open journaled is visible in the store afterwards.
		step, err := store.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(step).To(BeEquivalentTo(1))
	})

	It("returns the error body returns", func() {
		store := journal.NewMemory()
		sentinel := errFixture{}

		err := WithDatabase(context.Background(), []DatabaseOption{WithJournalStore(store)}, func(ctx context.Context, db *Database) error {
			return sentinel
		})

		Expect(err).To(Equal(sentinel))
	})
})

type errFixture struct{}

func (errFixture) Error() string { return "fixture error" }

var _ = Describe("func (*Database) internKeys()", func() {
	It("installs freshly interned ids as Missing", func() {
		db, err := Open()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		db.mu.Lock()
		ids := db.internKeys([]Key{{Tag: "t", Payload: "a"}})
		db.mu.Unlock()

		Expect(ids).To(HaveLen(1))
		Expect(db.entries[ids[0]].status).To(Equal(Missing{}))
	})

	It("returns the same id for a key interned twice", func() {
		db, err := Open()
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		db.mu.Lock()
		ids1 := db.internKeys([]Key{{Tag: "t", Payload: "a"}})
		ids2 := db.internKeys([]Key{{Tag: "t", Payload: "a"}})
		db.mu.Unlock()

		Expect(ids2).To(Equal(ids1))
	})
})
