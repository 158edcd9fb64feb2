package driver_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/promptline/driver"
	"github.com/papercomputeco/promptline/pkg/llm"
)

var _ = Describe("Config", func() {
	writeConfig := func(body string) string {
		path := filepath.Join(GinkgoT().TempDir(), "config.toml")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	Describe("DefaultConfig", func() {
		It("carries the built-in defaults", func() {
			cfg := driver.DefaultConfig()

			Expect(cfg.ContextSize).To(Equal(512))
			Expect(cfg.MaxLineBytes).To(Equal(4096))
			Expect(cfg.Threads).To(Equal(llm.DefaultThreads()))
			Expect(cfg.Defaults).To(Equal(llm.DefaultOptions()))
			Expect(cfg.SuppressInvalidErrors).To(BeFalse())
			Expect(cfg.Validate()).To(Succeed())
		})
	})

	Describe("LoadConfig", func() {
		It("overrides only the keys present in the file", func() {
			path := writeConfig(`
model = "/models/tiny.json"
ctx_size = 256
announce = true

[defaults]
top_k = 10
temp = 0.7
verbose = true
`)
			cfg, err := driver.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.ModelPath).To(Equal("/models/tiny.json"))
			Expect(cfg.ContextSize).To(Equal(256))
			Expect(cfg.Announce).To(BeTrue())
			Expect(cfg.Defaults.TopK).To(Equal(10))
			Expect(cfg.Defaults.Temperature).To(Equal(0.7))
			Expect(cfg.Defaults.Verbose).To(BeTrue())

			Expect(cfg.Defaults.TopP).To(Equal(0.95))
			Expect(cfg.Defaults.NumPredict).To(Equal(128))
			Expect(cfg.MaxLineBytes).To(Equal(4096))
		})

		It("rejects unknown keys", func() {
			path := writeConfig(`
[defaults]
top_k = 10
bogus = 1
`)
			_, err := driver.LoadConfig(path)
			Expect(err).To(MatchError(ContainSubstring("defaults.bogus")))
		})

		It("never reads a prompt from the file", func() {
			path := writeConfig(`
[defaults]
InputText = "hello"
`)
			_, err := driver.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})

		It("fails on malformed TOML", func() {
			_, err := driver.LoadConfig(writeConfig("ctx_size = ="))
			Expect(err).To(HaveOccurred())
		})

		It("fails on a missing file", func() {
			_, err := driver.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.toml"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ConfigDir", func() {
		It("prefers PROMPTLINE_CONFIG_DIR", func() {
			GinkgoT().Setenv("PROMPTLINE_CONFIG_DIR", "/etc/promptline")
			Expect(driver.ConfigDir()).To(Equal("/etc/promptline"))
			Expect(driver.ConfigPath()).To(Equal("/etc/promptline/config.toml"))
		})

		It("falls back to XDG_CONFIG_HOME", func() {
			GinkgoT().Setenv("PROMPTLINE_CONFIG_DIR", "")
			GinkgoT().Setenv("XDG_CONFIG_HOME", "/home/u/.config")
			Expect(driver.ConfigDir()).To(Equal("/home/u/.config/promptline"))
		})

		It("loads built-in defaults when no file exists", func() {
			GinkgoT().Setenv("PROMPTLINE_CONFIG_DIR", GinkgoT().TempDir())
			cfg, err := driver.LoadDefaultConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(driver.DefaultConfig()))
		})
	})

	Describe("Validate", func() {
		It("reports every invalid field", func() {
			cfg := driver.DefaultConfig()
			cfg.ContextSize = 0
			cfg.Threads = -1
			cfg.Defaults.TopP = 2

			err := cfg.Validate()
			Expect(err).To(MatchError(ContainSubstring("ctx_size")))
			Expect(err).To(MatchError(ContainSubstring("threads")))
			Expect(err).To(MatchError(ContainSubstring("top_p")))
		})
	})
})
