package loom

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("func Progress()", func() {
	var db *Database

	BeforeEach(func() {
		var err error
		db, err = Open()
		Expect(err).ToNot(HaveOccurred())
		db.step = 3
	})

	AfterEach(func() {
		db.Close()
	})

	put := func(id Id, key string, status Status) {
		db.entries[Id(id)] = &entry{key: Key{Tag: "t", Payload: key}, status: status}
	}

	It("counts a Ready result built this step as Built", func() {
		put(1, "a", Ready{Result: Result{Built: 3, Execution: 10 * time.Millisecond}})

		snap := Progress(db)
		Expect(snap.Counts.Built).To(Equal(1))
		Expect(snap.Counts.Skipped).To(Equal(0))
		Expect(snap.BuiltDuration).To(Equal(10 * time.Millisecond))
	})

	It("counts a Ready result from an earlier step as Skipped", func() {
		put(1, "a", Ready{Result: Result{Built: 2, Execution: 5 * time.Millisecond}})

		snap := Progress(db)
		Expect(snap.Counts.Built).To(Equal(0))
		Expect(snap.Counts.Skipped).To(Equal(1))
		Expect(snap.SkippedDuration).To(Equal(5 * time.Millisecond))
	})

	It("counts a Loaded entry as Unknown", func() {
		put(1, "a", Loaded{Result: Result{Execution: 7 * time.Millisecond}})

		snap := Progress(db)
		Expect(snap.Counts.Unknown).To(Equal(1))
		Expect(snap.UnknownDuration).To(Equal(7 * time.Millisecond))
	})

	It("counts a Waiting entry with a prior Result as Todo, estimating its duration", func() {
		put(1, "a", &Waiting{Prior: &Result{Execution: 9 * time.Millisecond}, pending: newPending()})

		snap := Progress(db)
		Expect(snap.Counts.Todo).To(Equal(1))
		Expect(snap.EstimatedRemaining).To(Equal(9 * time.Millisecond))
		Expect(snap.UnestimatedTodo).To(Equal(0))
	})

	It("counts a Waiting entry with no prior Result as unestimated Todo", func() {
		put(1, "a", &Waiting{pending: newPending()})

		snap := Progress(db)
		Expect(snap.Counts.Todo).To(Equal(1))
		Expect(snap.EstimatedRemaining).To(Equal(time.Duration(0)))
		Expect(snap.UnestimatedTodo).To(Equal(1))
	})

	It("counts a Failed entry as Failed", func() {
		put(1, "a", Failed{Err: errFixture{}})

		snap := Progress(db)
		Expect(snap.Counts.Failed).To(Equal(1))
	})

	It("does not count a Missing entry in any category", func() {
		put(1, "a", Missing{})

		snap := Progress(db)
		Expect(snap.Counts).To(Equal(Counts{}))
	})

	It("tallies a mix of statuses independently", func() {
		put(1, "a", Ready{Result: Result{Built: 3}})
		put(2, "b", Ready{Result: Result{Built: 1}})
		put(3, "c", Loaded{})
		put(4, "d", &Waiting{pending: newPending()})
		put(5, "e", Failed{Err: errFixture{}})
		put(6, "f", Missing{})

		snap := Progress(db)
		Expect(snap.Counts).To(Equal(Counts{
			Built:   1,
			Skipped: 1,
			Unknown: 1,
			Todo:    1,
			Failed:  1,
		}))
	})
})
