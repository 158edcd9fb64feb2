package transcriptcmder

import (
	"bytes"
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/promptline/pkg/llm"
	"github.com/papercomputeco/promptline/pkg/transcript"
)

var _ = Describe("List and Show Commands", func() {
	var (
		ctx    context.Context
		dbPath string
		first  *transcript.Entry
		last   *transcript.Entry
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "transcript.db")

		first = makeEntry("Name a color.", "Blue", nil)
		failed := transcript.NewEntry(llm.Turn{
			Raw:      `{"a":1}`,
			Response: map[string]string{llm.KeyError: "Invalid arguments"},
		}, first)
		last = makeEntry("Another\none", "Green", failed)
		seed(ctx, dbPath, first, failed, last, makeEntry("Solo", "ok", nil))
	})

	run := func(name string, args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewTranscriptCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{name, "--sqlite", dbPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	Describe("list", func() {
		It("prints one line per session", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("HASH"))
			Expect(out).To(MatchRegexp(last.Hash[:16] + `\s+3\s+1\s+Another one`))
			Expect(out).To(MatchRegexp(`\s+1\s+0\s+Solo`))
		})
	})

	Describe("show", func() {
		It("replays a session from a hash prefix", func() {
			out, err := run("show", last.Hash[:10])
			Expect(err).NotTo(HaveOccurred())

			Expect(out).To(ContainSubstring("#1 " + first.Hash[:16] + " seed=42"))
			Expect(out).To(ContainSubstring("> Name a color.\n< Blue\n"))
			Expect(out).To(ContainSubstring("> {\"a\":1}\n! Invalid arguments\n"))
			Expect(out).To(ContainSubstring("> Another\n  one\n< Green\n"))
		})

		It("fails for an unknown hash", func() {
			_, err := run("show", "zzzz")
			Expect(err).To(MatchError(ContainSubstring("entry not found")))
		})
	})
})
