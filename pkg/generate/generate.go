// Package generate runs the autoregressive generation loop for one request:
// tokenize the prompt, fit it into the context window, evaluate it, then
// sample and evaluate one token at a time until a stop condition holds.
package generate

import (
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/promptline/pkg/engine"
	"github.com/papercomputeco/promptline/pkg/llm"
)

// State is a phase of the generation loop.
type State int

const (
	StateTokenize State = iota
	StateTruncate
	StateInitialEval
	StateSampleLoop
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateTokenize:
		return "tokenize"
	case StateTruncate:
		return "truncate"
	case StateInitialEval:
		return "initial_eval"
	case StateSampleLoop:
		return "sample_loop"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Metrics describes a completed generation.
type Metrics struct {
	// PromptTokens is the number of prompt tokens evaluated after truncation.
	PromptTokens int

	// OutputTokens is the number of sampled tokens, including a final EOS.
	OutputTokens int

	// ContextLength is the number of tokens in the context when the loop ended.
	ContextLength int

	// TokensTruncated is the number of prompt tokens dropped from the front.
	TokensTruncated int

	// PredictTime is the evaluation time summed over every Evaluate call.
	PredictTime time.Duration

	// ReachedMaxContext is true when ContextLength equals the context size.
	ReachedMaxContext bool

	// Seed is the seed the request actually ran with.
	Seed int64
}

// Result is the output of a successful generation.
type Result struct {
	Output  string
	Metrics Metrics
}

// Generator drives a model and a sampler. It holds no per-request state and
// must not be used by more than one goroutine at a time, since the model's
// KV state is shared.
type Generator struct {
	model   engine.Model
	sampler engine.Sampler
	threads int
	logger  *zap.Logger
}

// New creates a new Generator.
func New(model engine.Model, sampler engine.Sampler, threads int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		model:   model,
		sampler: sampler,
		threads: threads,
		logger:  logger,
	}
}

// Truncate fits prompt into a context of nCtx tokens while leaving room for
// numPredict generated tokens. It drops max(0, len(prompt)+numPredict-nCtx)
// tokens from the front and returns the remaining tokens and the number
// dropped.
func Truncate(prompt []engine.Token, numPredict, nCtx int) ([]engine.Token, int, error) {
	if numPredict > nCtx {
		return nil, 0, &llm.LengthExceededError{PromptTokens: len(prompt), NumPredict: numPredict, ContextSize: nCtx}
	}
	drop := max(0, len(prompt)+numPredict-nCtx)
	return prompt[drop:], drop, nil
}

// Generate runs one request to completion. Errors are *llm.LengthExceededError
// or *llm.InferenceError; no partial output is returned with an error.
func (g *Generator) Generate(opts llm.Options) (*Result, error) {
	var (
		vocab   = g.model.Vocabulary()
		nCtx    = g.model.ContextSize()
		metrics Metrics
	)

	seed := opts.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	metrics.Seed = seed
	rng := rand.New(rand.NewSource(seed))

	log := g.logger.With(zap.Int64("seed", seed))
	fail := func(state State, err error) (*Result, error) {
		log.Debug("generation failed", zap.Stringer("state", state), zap.Error(err))
		return nil, err
	}

	log.Debug("reading input", zap.Stringer("state", StateTokenize))
	prompt := vocab.Tokenize(opts.InputText)

	prompt, dropped, err := Truncate(prompt, opts.NumPredict, nCtx)
	if err != nil {
		return fail(StateTruncate, err)
	}
	metrics.TokensTruncated = dropped
	metrics.PromptTokens = len(prompt)
	if dropped > 0 {
		log.Debug("prompt truncated",
			zap.Stringer("state", StateTruncate),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(prompt)),
		)
	}

	log.Debug("embedding input",
		zap.Stringer("state", StateInitialEval),
		zap.Int("prompt_tokens", len(prompt)),
	)
	eval, err := g.model.Evaluate(g.threads, 0, prompt)
	if err != nil {
		return fail(StateInitialEval, &llm.InferenceError{NPast: 0, Err: err})
	}
	metrics.PredictTime += eval.Elapsed
	nPast := len(prompt)

	log.Debug("predicting outputs", zap.Stringer("state", StateSampleLoop))
	var (
		out    strings.Builder
		window = NewWindow(opts.RepeatLastN)
		recent = make([]engine.Token, 0, window.Cap())
		params = engine.SampleParams{
			TopK:          opts.TopK,
			TopP:          opts.TopP,
			Temperature:   opts.Temperature,
			RepeatPenalty: opts.RepeatPenalty,
		}
	)
	for metrics.OutputTokens < opts.NumPredict && nPast < nCtx {
		recent = window.AppendTo(recent[:0])
		id := g.sampler.Sample(vocab, eval.Logits, recent, params, rng)
		out.WriteString(vocab.TokenText(id))
		metrics.OutputTokens++

		if id == vocab.EOS() || metrics.OutputTokens >= opts.NumPredict {
			break
		}

		eval, err = g.model.Evaluate(g.threads, nPast, []engine.Token{id})
		if err != nil {
			return fail(StateSampleLoop, &llm.InferenceError{NPast: nPast, Err: err})
		}
		metrics.PredictTime += eval.Elapsed
		nPast++
		window.Push(id)
	}

	metrics.ContextLength = nPast
	metrics.ReachedMaxContext = nPast == nCtx
	log.Debug("generation finished",
		zap.Stringer("state", StateDone),
		zap.Int("output_tokens", metrics.OutputTokens),
		zap.Int("context_length", nPast),
		zap.Duration("predict_time", metrics.PredictTime),
	)

	return &Result{Output: out.String(), Metrics: metrics}, nil
}

// Response assembles the success response for r.
func (r *Result) Response(memoryPerToken uint64) *llm.Response {
	return &llm.Response{
		Output:                r.Output,
		ReachedMaxContextSize: r.Metrics.ReachedMaxContext,
		MemoryPerTokenBytes:   memoryPerToken,
		TotalPredictTime:      r.Metrics.PredictTime,
		TotalTokenLength:      r.Metrics.ContextLength,
		TokensTruncated:       r.Metrics.TokensTruncated,
		InputTokenLength:      r.Metrics.PromptTokens,
		OutputTokenLength:     r.Metrics.OutputTokens,
	}
}
