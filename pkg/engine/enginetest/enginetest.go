// Package enginetest provides scripted, deterministic engine implementations
// for tests.
package enginetest

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/papercomputeco/promptline/pkg/engine"
)

// ErrScripted is returned by Model.Evaluate on the configured failing call.
var ErrScripted = errors.New("enginetest: scripted evaluation failure")

// Vocab is a word-level vocabulary. Token i renders as Words[i].
// Tokenize splits on spaces; unknown words map to token 0.
type Vocab struct {
	Words []string
	EOSID engine.Token
	index map[string]engine.Token
}

// NewVocab builds a vocabulary whose token 0 is "<unk>" and token 1 is the
// end-of-sequence marker "</s>", followed by words.
func NewVocab(words ...string) *Vocab {
	all := append([]string{"<unk>", "</s>"}, words...)
	v := &Vocab{Words: all, EOSID: 1, index: make(map[string]engine.Token, len(all))}
	for i, w := range all {
		v.index[w] = engine.Token(i)
	}
	return v
}

// Tokenize implements engine.Vocabulary.
func (v *Vocab) Tokenize(text string) []engine.Token {
	fields := strings.Fields(text)
	out := make([]engine.Token, 0, len(fields))
	for _, f := range fields {
		out = append(out, v.index[f])
	}
	return out
}

// TokenText implements engine.Vocabulary.
func (v *Vocab) TokenText(id engine.Token) string {
	if id < 0 || int(id) >= len(v.Words) {
		return ""
	}
	return v.Words[id]
}

// Size implements engine.Vocabulary.
func (v *Vocab) Size() int { return len(v.Words) }

// EOS implements engine.Vocabulary.
func (v *Vocab) EOS() engine.Token { return v.EOSID }

// Call records the arguments of one Evaluate call.
type Call struct {
	Threads int
	NPast   int
	Tokens  []engine.Token
}

// Model is a scripted engine.Model. Each evaluation returns logits whose
// single maximum is chosen by Favor.
type Model struct {
	Vocab          *Vocab
	NCtx           int
	MemPerToken    uint64
	ElapsedPerCall time.Duration

	// Favor picks the token with the highest logit after an evaluation.
	// The default favors the token after the last evaluated one, skipping
	// the unknown and end-of-sequence tokens.
	Favor func(call int, nPast int, tokens []engine.Token) engine.Token

	// FailOnCall makes the n-th Evaluate call (1-based) fail. Zero never fails.
	FailOnCall int

	Calls  []Call
	Closed bool
}

// NewModel returns a model over vocab with the given context size.
func NewModel(vocab *Vocab, nCtx int) *Model {
	return &Model{
		Vocab:          vocab,
		NCtx:           nCtx,
		MemPerToken:    1024,
		ElapsedPerCall: 250 * time.Microsecond,
	}
}

// Vocabulary implements engine.Model.
func (m *Model) Vocabulary() engine.Vocabulary { return m.Vocab }

// ContextSize implements engine.Model.
func (m *Model) ContextSize() int { return m.NCtx }

// Evaluate implements engine.Model.
func (m *Model) Evaluate(threads, nPast int, tokens []engine.Token) (*engine.Evaluation, error) {
	m.Calls = append(m.Calls, Call{Threads: threads, NPast: nPast, Tokens: append([]engine.Token(nil), tokens...)})
	call := len(m.Calls)
	if m.FailOnCall > 0 && call == m.FailOnCall {
		return nil, ErrScripted
	}

	favor := m.Favor
	if favor == nil {
		favor = m.next
	}
	logits := make([]float32, m.Vocab.Size())
	logits[favor(call, nPast, tokens)] = 10

	return &engine.Evaluation{
		Logits:         logits,
		Elapsed:        m.ElapsedPerCall,
		MemoryPerToken: m.MemPerToken,
	}, nil
}

func (m *Model) next(_ int, _ int, tokens []engine.Token) engine.Token {
	last := engine.Token(1)
	if len(tokens) > 0 {
		last = tokens[len(tokens)-1]
	}
	next := last + 1
	if int(next) >= m.Vocab.Size() || next < 2 {
		next = 2
	}
	return next
}

// Close implements engine.Model.
func (m *Model) Close() error {
	m.Closed = true
	return nil
}

// EvaluatedTokens returns the total number of tokens fed across all calls.
func (m *Model) EvaluatedTokens() int {
	n := 0
	for _, c := range m.Calls {
		n += len(c.Tokens)
	}
	return n
}

// Sampler returns scripted tokens, or the highest logit when no script is
// set. It records what it was given.
type Sampler struct {
	// Tokens are returned in order; the last one repeats once exhausted.
	Tokens []engine.Token

	Recent [][]engine.Token
	Params []engine.SampleParams
}

// Sample implements engine.Sampler.
func (s *Sampler) Sample(_ engine.Vocabulary, logits []float32, recent []engine.Token, params engine.SampleParams, _ *rand.Rand) engine.Token {
	call := len(s.Recent)
	s.Recent = append(s.Recent, append([]engine.Token(nil), recent...))
	s.Params = append(s.Params, params)

	if len(s.Tokens) > 0 {
		if call < len(s.Tokens) {
			return s.Tokens[call]
		}
		return s.Tokens[len(s.Tokens)-1]
	}
	return Argmax(logits)
}

// Argmax returns the index of the highest logit, preferring the lowest index on ties.
func Argmax(logits []float32) engine.Token {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return engine.Token(best)
}

// UniformSampler draws uniformly from the non-EOS vocabulary using the
// request's random source, which makes it sensitive to the seed.
type UniformSampler struct{}

// Sample implements engine.Sampler.
func (UniformSampler) Sample(vocab engine.Vocabulary, _ []float32, _ []engine.Token, _ engine.SampleParams, rng *rand.Rand) engine.Token {
	for {
		id := engine.Token(rng.Intn(vocab.Size()))
		if id != vocab.EOS() {
			return id
		}
	}
}
