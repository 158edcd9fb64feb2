// Package engine defines the boundary between promptline and a model runtime.
//
// Everything behind these interfaces (weight loading, the tokenizer, the
// evaluation kernel and the sampling math) is owned by the runtime. The
// generation loop only drives them.
package engine

import (
	"math/rand"
	"time"
)

// Token is a vocabulary identifier.
type Token int32

// Vocabulary converts between text and tokens.
type Vocabulary interface {
	// Tokenize converts text into tokens. Empty text yields an empty sequence.
	Tokenize(text string) []Token

	// TokenText returns the text fragment for a single token.
	TokenText(id Token) string

	// Size is the number of distinct tokens, i.e. the length of a logits vector.
	Size() int

	// EOS is the end-of-sequence token.
	EOS() Token
}

// Evaluation is the result of one Model.Evaluate call.
type Evaluation struct {
	// Logits are the next-token scores after the last evaluated token.
	Logits []float32

	// Elapsed is the time spent inside the evaluation kernel for this call.
	Elapsed time.Duration

	// MemoryPerToken is the runtime's estimate of working memory needed per
	// token of context, in bytes.
	MemoryPerToken uint64
}

// Model is a loaded model with a fixed context window.
type Model interface {
	Vocabulary() Vocabulary

	// ContextSize is the maximum number of tokens (prompt plus generated)
	// the model can hold.
	ContextSize() int

	// Evaluate feeds tokens at positions nPast..nPast+len(tokens)-1 and
	// returns the logits for the following position. threads bounds the
	// parallelism used inside the call.
	Evaluate(threads, nPast int, tokens []Token) (*Evaluation, error)

	Close() error
}

// SampleParams shape the sampling distribution.
type SampleParams struct {
	TopK          int
	TopP          float64
	Temperature   float64
	RepeatPenalty float64
}

// Sampler picks the next token from logits. recent holds the most recently
// emitted tokens, oldest first, for the repetition penalty.
type Sampler interface {
	Sample(vocab Vocabulary, logits []float32, recent []Token, params SampleParams, rng *rand.Rand) Token
}

// WarmupTokens are evaluated once at startup to measure MemoryPerToken.
var WarmupTokens = []Token{0, 1, 2, 3}
