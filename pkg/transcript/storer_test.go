package transcript_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

// chain stores a session of turns and returns its entries in order.
func chain(ctx context.Context, s transcript.Storer, prompts ...string) []*transcript.Entry {
	var (
		parent  *transcript.Entry
		entries []*transcript.Entry
	)
	for _, p := range prompts {
		e := transcript.NewEntry(turn(p, p+"!"), parent)
		_, err := s.Put(ctx, e)
		Expect(err).NotTo(HaveOccurred())
		entries = append(entries, e)
		parent = e
	}
	return entries
}

func storerBehaviour(name string, open func() transcript.Storer) {
	Describe(name, func() {
		var (
			storer transcript.Storer
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			storer = open()
		})

		AfterEach(func() {
			if storer != nil {
				storer.Close()
			}
		})

		Describe("Put and Get", func() {
			It("stores and retrieves an entry", func() {
				e := transcript.NewEntry(turn("hello", "world"), nil)

				isNew, err := storer.Put(ctx, e)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())

				got, err := storer.Get(ctx, e.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Hash).To(Equal(e.Hash))
				Expect(got.ParentHash).To(BeNil())
				Expect(got.Turn).To(Equal(e.Turn))
				Expect(got.Verify()).To(BeTrue())
			})

			It("stores and retrieves an entry with a parent", func() {
				entries := chain(ctx, storer, "first", "second")

				got, err := storer.Get(ctx, entries[1].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ParentHash).NotTo(BeNil())
				Expect(*got.ParentHash).To(Equal(entries[0].Hash))
			})

			It("keeps error turns and raw lines", func() {
				t := llm.Turn{
					Raw:      `{"a":1}`,
					Response: map[string]string{llm.KeyError: "Invalid arguments"},
				}
				e := transcript.NewEntry(t, nil)
				_, err := storer.Put(ctx, e)
				Expect(err).NotTo(HaveOccurred())

				got, err := storer.Get(ctx, e.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Turn.Raw).To(Equal(`{"a":1}`))
				Expect(got.Turn.Failed()).To(BeTrue())
			})

			It("returns ErrNotFound for a missing hash", func() {
				_, err := storer.Get(ctx, "nonexistent")
				Expect(err).To(HaveOccurred())

				var notFound transcript.ErrNotFound
				Expect(errors.As(err, &notFound)).To(BeTrue())
				Expect(notFound.Hash).To(Equal("nonexistent"))
			})

			It("is idempotent for duplicate puts", func() {
				e := transcript.NewEntry(turn("dup", "x"), nil)

				_, err := storer.Put(ctx, e)
				Expect(err).NotTo(HaveOccurred())

				isNew, err := storer.Put(ctx, e)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())

				entries, _ := storer.List(ctx)
				Expect(entries).To(HaveLen(1))
			})

			It("rejects nil entries", func() {
				_, err := storer.Put(ctx, nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("nil entry"))
			})
		})

		Describe("Has", func() {
			It("reports stored and missing entries", func() {
				entries := chain(ctx, storer, "a")

				ok, err := storer.Has(ctx, entries[0].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				ok, err = storer.Has(ctx, "nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})
		})

		Describe("traversal", func() {
			It("lists entries in insertion order", func() {
				entries := chain(ctx, storer, "a", "b", "c")

				got, err := storer.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(3))
				for i := range entries {
					Expect(got[i].Hash).To(Equal(entries[i].Hash))
				}
			})

			It("returns an empty slice for an empty store", func() {
				got, err := storer.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeEmpty())
			})

			It("finds children, roots and leaves", func() {
				s1 := chain(ctx, storer, "a", "b")
				s2 := chain(ctx, storer, "x")

				branch := transcript.NewEntry(turn("b2", "?"), s1[0])
				_, err := storer.Put(ctx, branch)
				Expect(err).NotTo(HaveOccurred())

				children, err := storer.GetByParent(ctx, &s1[0].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(children).To(HaveLen(2))

				roots, err := storer.Roots(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(roots).To(HaveLen(2))

				leaves, err := storer.Leaves(ctx)
				Expect(err).NotTo(HaveOccurred())
				var hashes []string
				for _, l := range leaves {
					hashes = append(hashes, l.Hash)
				}
				Expect(hashes).To(ConsistOf(s1[1].Hash, s2[0].Hash, branch.Hash))
			})

			It("walks ancestry and lineage", func() {
				entries := chain(ctx, storer, "root", "child", "grandchild")

				up, err := transcript.Ancestry(ctx, storer, entries[2].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(up).To(HaveLen(3))
				Expect(up[0].Turn.Request[llm.KeyInputText]).To(Equal("grandchild"))
				Expect(up[2].Turn.Request[llm.KeyInputText]).To(Equal("root"))

				down, err := transcript.Lineage(ctx, storer, entries[2].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(down[0].Turn.Request[llm.KeyInputText]).To(Equal("root"))
				Expect(down[2].Turn.Request[llm.KeyInputText]).To(Equal("grandchild"))

				depth, err := transcript.Depth(ctx, storer, entries[2].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(depth).To(Equal(2))

				depth, err = transcript.Depth(ctx, storer, entries[0].Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(depth).To(Equal(0))
			})

			It("fails ancestry for a missing entry", func() {
				_, err := transcript.Ancestry(ctx, storer, "nonexistent")
				Expect(err).To(BeAssignableToTypeOf(transcript.ErrNotFound{}))
			})
		})

		Describe("Copy", func() {
			It("unions two stores and dedupes by hash", func() {
				chain(ctx, storer, "a", "b")

				other := transcript.NewMemoryStorer()
				chain(ctx, other, "a", "b", "c")
				chain(ctx, other, "z")

				added, existing, err := transcript.Copy(ctx, storer, other)
				Expect(err).NotTo(HaveOccurred())
				Expect(added).To(Equal(2))
				Expect(existing).To(Equal(2))

				all, _ := storer.List(ctx)
				Expect(all).To(HaveLen(4))
			})
		})
	})
}

var _ = Describe("Storers", func() {
	storerBehaviour("MemoryStorer", func() transcript.Storer {
		return transcript.NewMemoryStorer()
	})

	storerBehaviour("SQLiteStorer", func() transcript.Storer {
		s, err := transcript.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})
})

var _ = Describe("NewSQLiteStorer", func() {
	It("creates a file database that survives reopening", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "transcript.db")

		s, err := transcript.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		entries := chain(ctx, s, "a", "b")
		Expect(s.Close()).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())

		s, err = transcript.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		got, err := s.Get(ctx, entries[1].Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Verify()).To(BeTrue())
	})
})

var _ = Describe("Open", func() {
	It("returns a memory store for an empty path", func() {
		s, err := transcript.Open("")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeAssignableToTypeOf(&transcript.MemoryStorer{}))
	})
})
