package llm

import (
	"fmt"
	"math"
	"runtime"
)

// Options contains the generation parameters for one request.
// A process-wide default set is built once at startup; every request starts
// from a copy of it and overrides individual fields.
type Options struct {
	// Prompt
	InputText string `toml:"-"`

	// Sampling parameters
	Seed          int64   `toml:"seed"`           // Negative means pick one per request
	TopK          int     `toml:"top_k"`          // 0 considers the whole vocabulary
	TopP          float64 `toml:"top_p"`          // Nucleus sampling threshold, (0,1]
	Temperature   float64 `toml:"temp"`           // > 0
	RepeatPenalty float64 `toml:"repeat_penalty"` // >= 1
	RepeatLastN   int     `toml:"repeat_last_n"`  // Tokens considered for the penalty

	// Length parameters
	NumPredict int `toml:"n_predict"` // Max tokens to generate

	// Verbose is process-wide; requests cannot override it.
	Verbose bool `toml:"verbose"`
}

// DefaultOptions returns the built-in process defaults.
func DefaultOptions() Options {
	return Options{
		Seed:          -1,
		TopK:          40,
		TopP:          0.95,
		Temperature:   0.10,
		RepeatPenalty: 1.30,
		RepeatLastN:   64,
		NumPredict:    128,
	}
}

// DefaultThreads is the evaluation thread count used when none is configured.
func DefaultThreads() int {
	return min(4, runtime.NumCPU())
}

// Validate checks the value ranges of every field.
func (o Options) Validate() error {
	if o.NumPredict < 0 {
		return NewValidationError(KeyNumPredict, fmt.Sprint(o.NumPredict), "must not be negative")
	}
	if o.TopK < 0 {
		return NewValidationError(KeyTopK, fmt.Sprint(o.TopK), "must not be negative")
	}
	if o.RepeatLastN < 0 {
		return NewValidationError(KeyRepeatLastN, fmt.Sprint(o.RepeatLastN), "must not be negative")
	}
	if !finite(o.TopP) || o.TopP <= 0 || o.TopP > 1 {
		return NewValidationError(KeyTopP, fmt.Sprint(o.TopP), "must be in (0, 1]")
	}
	if !finite(o.Temperature) || o.Temperature <= 0 {
		return NewValidationError(KeyTemperature, fmt.Sprint(o.Temperature), "must be greater than 0")
	}
	if !finite(o.RepeatPenalty) || o.RepeatPenalty < 1 {
		return NewValidationError(KeyRepeatPenalty, fmt.Sprint(o.RepeatPenalty), "must be at least 1")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
