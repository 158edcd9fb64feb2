package checkpoint

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/promptline/pkg/engine"
)

// Model is an engine.Model over a loaded checkpoint. Evaluate rewinds the
// key/value cache to nPast before feeding new tokens, so a new request
// starting at position zero reuses nothing from the previous one.
type Model struct {
	cfg   Config
	state map[string][][]float64
	vocab *Vocabulary
	nCtx  int

	// keys and values are indexed by layer, then position.
	keys   [][][]float64
	values [][][]float64
}

// Load reads the checkpoint at path and prepares a model with a context of
// at most nCtx tokens. The context never exceeds the checkpoint block size.
func Load(path string, nCtx int) (*Model, error) {
	ckpt, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(ckpt, nCtx)
}

// New prepares a model from a decoded checkpoint.
func New(ckpt *Checkpoint, nCtx int) (*Model, error) {
	if nCtx <= 0 {
		return nil, fmt.Errorf("context size must be positive, got %d", nCtx)
	}

	vocab, err := NewVocabulary(ckpt)
	if err != nil {
		return nil, err
	}
	if err := ckpt.validateShapes(vocab.Size()); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}

	return &Model{
		cfg:    ckpt.Config,
		state:  ckpt.State,
		vocab:  vocab,
		nCtx:   min(nCtx, ckpt.Config.BlockSize),
		keys:   make([][][]float64, ckpt.Config.NLayer),
		values: make([][][]float64, ckpt.Config.NLayer),
	}, nil
}

// Vocabulary implements engine.Model.
func (m *Model) Vocabulary() engine.Vocabulary {
	return m.vocab
}

// Tokenization is TokenizationChar or TokenizationBPE.
func (m *Model) Tokenization() string {
	return m.vocab.Mode()
}

// ContextSize implements engine.Model.
func (m *Model) ContextSize() int {
	return m.nCtx
}

// Evaluate implements engine.Model. Evaluating no tokens yields all-zero
// logits.
func (m *Model) Evaluate(threads, nPast int, tokens []engine.Token) (*engine.Evaluation, error) {
	start := time.Now()

	if nPast < 0 || nPast > len(m.keys[0]) {
		return nil, fmt.Errorf("n_past %d outside cached context of %d tokens", nPast, len(m.keys[0]))
	}
	if nPast+len(tokens) > m.nCtx {
		return nil, fmt.Errorf("%d tokens at n_past %d exceed context size %d", len(tokens), nPast, m.nCtx)
	}
	for _, id := range tokens {
		if id < 0 || int(id) >= m.vocab.Size() {
			return nil, fmt.Errorf("token %d outside vocabulary of %d", id, m.vocab.Size())
		}
	}

	for li := range m.keys {
		m.keys[li] = m.keys[li][:nPast]
		m.values[li] = m.values[li][:nPast]
	}

	var logits []float64
	for i, id := range tokens {
		logits = m.forward(threads, int(id), nPast+i)
	}

	out := make([]float32, m.vocab.Size())
	for i, l := range logits {
		out[i] = float32(l)
	}

	return &engine.Evaluation{
		Logits:         out,
		Elapsed:        time.Since(start),
		MemoryPerToken: m.memoryPerToken(),
	}, nil
}

// Close implements engine.Model.
func (m *Model) Close() error {
	m.keys = make([][][]float64, m.cfg.NLayer)
	m.values = make([][][]float64, m.cfg.NLayer)
	return nil
}

// memoryPerToken estimates the bytes one token of context costs: its cached
// keys and values plus the activations of a forward pass.
func (m *Model) memoryPerToken() uint64 {
	const f64 = 8
	hidden := len(m.state[layerKey(0, "mlp_fc1")])
	kv := 2 * m.cfg.NLayer * m.cfg.NEmbd
	activations := 6*m.cfg.NEmbd + hidden + m.vocab.Size()
	return uint64((kv + activations) * f64)
}

func (m *Model) forward(threads, tokenID, pos int) []float64 {
	nEmbd, nHead := m.cfg.NEmbd, m.cfg.NHead
	headDim := nEmbd / nHead

	tokEmb := m.state["wte"][tokenID]
	posEmb := m.state["wpe"][pos]
	x := make([]float64, nEmbd)
	for i := range x {
		x[i] = tokEmb[i] + posEmb[i]
	}
	x = rmsnorm(x)

	for li := 0; li < m.cfg.NLayer; li++ {
		residual := x
		x = rmsnorm(x)
		q := linear(threads, x, m.state[layerKey(li, "attn_wq")])
		k := linear(threads, x, m.state[layerKey(li, "attn_wk")])
		v := linear(threads, x, m.state[layerKey(li, "attn_wv")])
		m.keys[li] = append(m.keys[li], k)
		m.values[li] = append(m.values[li], v)

		attn := make([]float64, 0, nEmbd)
		scale := 1 / math.Sqrt(float64(headDim))
		for h := 0; h < nHead; h++ {
			hs := h * headDim

			scores := make([]float64, len(m.keys[li]))
			for t, kt := range m.keys[li] {
				s := 0.0
				for j := 0; j < headDim; j++ {
					s += q[hs+j] * kt[hs+j]
				}
				scores[t] = s * scale
			}
			weights := softmax(scores)

			head := make([]float64, headDim)
			for t, vt := range m.values[li] {
				for j := 0; j < headDim; j++ {
					head[j] += weights[t] * vt[hs+j]
				}
			}
			attn = append(attn, head...)
		}

		x = linear(threads, attn, m.state[layerKey(li, "attn_wo")])
		for i := range x {
			x[i] += residual[i]
		}

		residual = x
		x = rmsnorm(x)
		x = linear(threads, x, m.state[layerKey(li, "mlp_fc1")])
		for i := range x {
			x[i] = max(x[i], 0)
		}
		x = linear(threads, x, m.state[layerKey(li, "mlp_fc2")])
		for i := range x {
			x[i] += residual[i]
		}
	}

	return linear(threads, x, m.state["lm_head"])
}

// linear computes w·x, spreading rows over at most threads goroutines.
func linear(threads int, x []float64, w [][]float64) []float64 {
	out := make([]float64, len(w))
	row := func(i int) {
		s := 0.0
		for j, xj := range x {
			s += w[i][j] * xj
		}
		out[i] = s
	}

	if threads <= 1 || len(w) < 2*threads {
		for i := range w {
			row(i)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(threads)
	chunk := (len(w) + threads - 1) / threads
	for lo := 0; lo < len(w); lo += chunk {
		hi := min(lo+chunk, len(w))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				row(i)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func rmsnorm(x []float64) []float64 {
	meanSq := 0.0
	for _, v := range x {
		meanSq += v * v
	}
	meanSq /= float64(len(x))
	inv := 1 / math.Sqrt(meanSq+1e-6)

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * inv
	}
	return out
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = max(maxLogit, l)
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
