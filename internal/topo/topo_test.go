package topo_test

import (
	"fmt"

	. "github.com/dogmatiq/loom/internal/topo"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func display(n int) string {
	return fmt.Sprintf("n%d", n)
}

var _ = Describe("func Order()", func() {
	It("orders dependencies before dependents", func() {
		// c -> b -> a (a depends on b, b depends on c)
		deps := map[int][]int{
			1: nil,    // c
			2: {1},    // b depends on c
			3: {2, 1}, // a depends on b and c
		}

		order, err := Order(deps, display)
		Expect(err).ToNot(HaveOccurred())
		Expect(order).To(HaveLen(3))

		pos := map[int]int{}
		for i, n := range order {
			pos[n] = i
		}

		Expect(pos[1]).To(BeNumerically("<", pos[2]))
		Expect(pos[2]).To(BeNumerically("<", pos[3]))
	})

	It("handles nodes with no dependencies", func() {
		deps := map[int][]int{
			1: nil,
			2: nil,
		}

		order, err := Order(deps, display)
		Expect(err).ToNot(HaveOccurred())
		Expect(order).To(ConsistOf(1, 2))
	})

	It("reports a cycle", func() {
		deps := map[int][]int{
			1: {2},
			2: {1},
		}

		_, err := Order(deps, display)
		Expect(err).To(HaveOccurred())

		ce, ok := err.(*CycleError)
		Expect(ok).To(BeTrue())
		Expect(ce.Keys).To(ConsistOf("n1", "n2"))
	})

	It("caps the named cycle nodes at 10 and reports an overflow count", func() {
		deps := map[int][]int{}
		for i := 0; i < 15; i++ {
			deps[i] = []int{(i + 1) % 15}
		}

		_, err := Order(deps, display)
		Expect(err).To(HaveOccurred())

		ce := err.(*CycleError)
		Expect(ce.Keys).To(HaveLen(10))
		Expect(ce.Overflow).To(Equal(5))
	})
})
