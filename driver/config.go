package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/promptline/pkg/llm"
)

// DefaultMaxLineBytes bounds a single request line.
const DefaultMaxLineBytes = 4096

// DefaultContextSize is the context window requested from the model.
const DefaultContextSize = 512

// Config is the driver configuration.
type Config struct {
	// ModelPath is the checkpoint to load.
	ModelPath string `toml:"model"`

	// ContextSize is the context window requested from the model.
	ContextSize int `toml:"ctx_size"`

	// Threads bounds the parallelism of a single evaluation.
	Threads int `toml:"threads"`

	// Defaults are the process-wide generation parameters every request
	// starts from.
	Defaults llm.Options `toml:"defaults"`

	// SuppressInvalidErrors logs parse and validation failures instead of
	// answering them.
	SuppressInvalidErrors bool `toml:"suppress_invalid_errors"`

	// Announce writes an info record before the first request.
	Announce bool `toml:"announce"`

	// MaxLineBytes bounds a single request line, newline excluded.
	MaxLineBytes int `toml:"max_line_bytes"`

	// TranscriptPath is the SQLite database that receives every served turn.
	// Empty disables the transcript; ":memory:" keeps it in process.
	// It is a write-only audit log: the driver never reads it back and it
	// never affects request handling.
	TranscriptPath string `toml:"transcript"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		ContextSize:  DefaultContextSize,
		Threads:      llm.DefaultThreads(),
		Defaults:     llm.DefaultOptions(),
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// ConfigDir returns the config directory path.
// Resolution order: $PROMPTLINE_CONFIG_DIR > $XDG_CONFIG_HOME/promptline > ~/.config/promptline
func ConfigDir() string {
	if dir := os.Getenv("PROMPTLINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "promptline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "promptline-config")
	}
	return filepath.Join(home, ".config", "promptline")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys the file leaves
// out keep their defaults; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadDefaultConfig loads ConfigPath when it exists and DefaultConfig otherwise.
func LoadDefaultConfig() (Config, error) {
	path := ConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate checks the configuration before any model is loaded.
func (c Config) Validate() error {
	var errs []error
	if c.ContextSize <= 0 {
		errs = append(errs, fmt.Errorf("ctx_size must be positive, got %d", c.ContextSize))
	}
	if c.Threads <= 0 {
		errs = append(errs, fmt.Errorf("threads must be positive, got %d", c.Threads))
	}
	if c.MaxLineBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes))
	}
	if err := c.Defaults.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("defaults: %w", err))
	}
	return errors.Join(errs...)
}
