package transcript_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

func turn(prompt, output string) llm.Turn {
	return llm.Turn{
		Request:  map[string]string{llm.KeyInputText: prompt, llm.KeySeed: "7"},
		Response: map[string]string{llm.KeyOutput: output},
		Seed:     7,
	}
}

var _ = Describe("Entry", func() {
	Describe("NewEntry", func() {
		Context("when creating the first turn (no parent)", func() {
			It("keeps the turn", func() {
				t := turn("hello", "world")
				e := transcript.NewEntry(t, nil)

				Expect(e.Turn).To(Equal(t))
				Expect(e.ParentHash).To(BeNil())
			})

			It("produces a valid SHA-256 hex string", func() {
				e := transcript.NewEntry(turn("hello", "world"), nil)

				Expect(e.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
			})

			It("produces consistent hashes for the same turn", func() {
				e1 := transcript.NewEntry(turn("same", "out"), nil)
				e2 := transcript.NewEntry(turn("same", "out"), nil)

				Expect(e1.Hash).To(Equal(e2.Hash))
			})

			It("produces different hashes for different turns", func() {
				e1 := transcript.NewEntry(turn("prompt A", "out"), nil)
				e2 := transcript.NewEntry(turn("prompt B", "out"), nil)

				Expect(e1.Hash).NotTo(Equal(e2.Hash))
			})

			It("hashes the resolved seed", func() {
				t1 := turn("same", "out")
				t2 := turn("same", "out")
				t2.Seed = 8

				Expect(transcript.NewEntry(t1, nil).Hash).NotTo(Equal(transcript.NewEntry(t2, nil).Hash))
			})
		})

		Context("when chaining turns", func() {
			var first *transcript.Entry

			BeforeEach(func() {
				first = transcript.NewEntry(turn("first", "1"), nil)
			})

			It("links the entry to its parent", func() {
				second := transcript.NewEntry(turn("second", "2"), first)

				Expect(second.ParentHash).NotTo(BeNil())
				Expect(*second.ParentHash).To(Equal(first.Hash))
			})

			It("produces different hashes for the same turn with different parents", func() {
				other := transcript.NewEntry(turn("other", "x"), nil)
				a := transcript.NewEntry(turn("same", "out"), first)
				b := transcript.NewEntry(turn("same", "out"), other)

				Expect(a.Hash).NotTo(Equal(b.Hash))
			})
		})
	})

	Describe("Verify", func() {
		It("accepts an untouched entry", func() {
			Expect(transcript.NewEntry(turn("a", "b"), nil).Verify()).To(BeTrue())
		})

		It("rejects a tampered entry", func() {
			e := transcript.NewEntry(turn("a", "b"), nil)
			e.Turn.Response[llm.KeyOutput] = "c"

			Expect(e.Verify()).To(BeFalse())
		})
	})
})
