package witness_test

import (
	. "github.com/dogmatiq/loom/witness"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fileRule is a stand-in for a user-defined key/value payload type, the way
// a caller would register the concrete types their build rules use.
type fileRule struct {
	Path string
	Hash string
}

var _ = Describe("type Registry", func() {
	var r *Registry

	BeforeEach(func() {
		r = New()
		r.Register(fileRule{})
	})

	Describe("func Encode() / func Decode()", func() {
		It("round-trips a registered type", func() {
			v := fileRule{Path: "a/b.go", Hash: "abc123"}

			tag, payload, err := r.Encode(v)
			Expect(err).ToNot(HaveOccurred())
			Expect(tag).ToNot(BeEmpty())
			Expect(payload).ToNot(BeEmpty())

			got, err := r.Decode(tag, payload)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(v))
		})

		It("produces the same tag for repeated encodes of the same type", func() {
			tag1, _, err1 := r.Encode(fileRule{Path: "x"})
			Expect(err1).ToNot(HaveOccurred())

			tag2, _, err2 := r.Encode(fileRule{Path: "y"})
			Expect(err2).ToNot(HaveOccurred())

			Expect(tag1).To(Equal(tag2))
		})

		It("fails to decode an unrecognized tag", func() {
			_, err := r.Decode("application/x-unknown", "{}")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("func Register()", func() {
		It("is idempotent for the same type", func() {
			r.Register(fileRule{})
			r.Register(fileRule{})

			v := fileRule{Path: "a"}
			_, _, err := r.Encode(v)
			Expect(err).ToNot(HaveOccurred())
		})

		It("allows multiple distinct types to share one registry", func() {
			type otherRule struct {
				N int
			}
			r.Register(otherRule{})

			tag1, payload1, err := r.Encode(fileRule{Path: "a"})
			Expect(err).ToNot(HaveOccurred())

			tag2, payload2, err := r.Encode(otherRule{N: 3})
			Expect(err).ToNot(HaveOccurred())

			Expect(tag1).ToNot(Equal(tag2))

			got1, err := r.Decode(tag1, payload1)
			Expect(err).ToNot(HaveOccurred())
			Expect(got1).To(Equal(fileRule{Path: "a"}))

			got2, err := r.Decode(tag2, payload2)
			Expect(err).ToNot(HaveOccurred())
			Expect(got2).To(Equal(otherRule{N: 3}))
		})
	})
})
