package generate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/promptline/pkg/engine"
	"github.com/papercomputeco/promptline/pkg/generate"
)

var _ = Describe("Window", func() {
	It("starts empty", func() {
		w := generate.NewWindow(3)
		Expect(w.Len()).To(Equal(0))
		Expect(w.Cap()).To(Equal(3))
		Expect(w.Tokens()).To(BeEmpty())
	})

	It("appends into a reused slice without growing it", func() {
		w := generate.NewWindow(3)
		dst := make([]engine.Token, 0, w.Cap())
		for i := 1; i <= 5; i++ {
			w.Push(engine.Token(i))
			dst = w.AppendTo(dst[:0])
		}
		Expect(dst).To(Equal([]engine.Token{3, 4, 5}))
		Expect(cap(dst)).To(Equal(3))

		Expect(w.AppendTo([]engine.Token{9})).To(Equal([]engine.Token{9, 3, 4, 5}))
	})

	It("keeps tokens oldest first until full", func() {
		w := generate.NewWindow(3)
		w.Push(7)
		w.Push(8)
		Expect(w.Tokens()).To(Equal([]engine.Token{7, 8}))
	})

	It("evicts the oldest token once full", func() {
		w := generate.NewWindow(3)
		for i := 1; i <= 5; i++ {
			w.Push(engine.Token(i))
		}
		Expect(w.Len()).To(Equal(3))
		Expect(w.Tokens()).To(Equal([]engine.Token{3, 4, 5}))
	})

	It("wraps around repeatedly", func() {
		w := generate.NewWindow(2)
		for i := 1; i <= 101; i++ {
			w.Push(engine.Token(i))
		}
		Expect(w.Tokens()).To(Equal([]engine.Token{100, 101}))
	})

	It("stores nothing with zero capacity", func() {
		w := generate.NewWindow(0)
		w.Push(1)
		Expect(w.Len()).To(Equal(0))
		Expect(w.Tokens()).To(BeEmpty())
	})

	It("treats a negative capacity as zero", func() {
		w := generate.NewWindow(-4)
		w.Push(1)
		Expect(w.Cap()).To(Equal(0))
		Expect(w.Tokens()).To(BeEmpty())
	})

	It("returns a copy", func() {
		w := generate.NewWindow(2)
		w.Push(1)
		toks := w.Tokens()
		toks[0] = 99
		Expect(w.Tokens()).To(Equal([]engine.Token{1}))
	})
})
