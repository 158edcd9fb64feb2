// Package sampling implements the reference token sampler: repetition
// penalty, temperature, top-k and top-p, followed by a weighted draw.
package sampling

import (
	"cmp"
	"math"
	"math/rand"
	"slices"

	"github.com/papercomputeco/promptline/pkg/engine"
)

// TopPTopK is an engine.Sampler.
type TopPTopK struct{}

type candidate struct {
	id    engine.Token
	p     float64
	logit float64
}

// Sample implements engine.Sampler.
func (TopPTopK) Sample(_ engine.Vocabulary, logits []float32, recent []engine.Token, params engine.SampleParams, rng *rand.Rand) engine.Token {
	cands := distribution(logits, recent, params)
	if len(cands) == 0 {
		return 0
	}
	return draw(cands, rng.Float64())
}

// distribution returns the surviving candidates, most likely first, with
// probabilities that sum to one.
func distribution(logits []float32, recent []engine.Token, params engine.SampleParams) []candidate {
	n := len(logits)
	if n == 0 {
		return nil
	}

	penalized := make(map[engine.Token]struct{}, len(recent))
	for _, id := range recent {
		penalized[id] = struct{}{}
	}

	topK := params.TopK
	scale := 1.0
	if params.Temperature > 0 {
		scale = 1.0 / params.Temperature
	} else {
		topK = 1 // greedy
	}
	penalty := params.RepeatPenalty
	if penalty < 1 {
		penalty = 1
	}

	cands := make([]candidate, n)
	for i, l := range logits {
		logit := float64(l) * scale
		if _, ok := penalized[engine.Token(i)]; ok {
			// Negative logits grow more negative, positive ones shrink.
			if logit < 0 {
				logit *= penalty
			} else {
				logit /= penalty
			}
		}
		cands[i] = candidate{id: engine.Token(i), logit: logit}
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		return cmp.Compare(b.logit, a.logit)
	})

	if topK > 0 && topK < len(cands) {
		cands = cands[:topK]
	}

	maxLogit := cands[0].logit
	sum := 0.0
	for i := range cands {
		cands[i].p = math.Exp(cands[i].logit - maxLogit)
		sum += cands[i].p
	}
	normalize(cands, sum)

	if params.TopP > 0 && params.TopP < 1 {
		cum := 0.0
		for i := range cands {
			cum += cands[i].p
			if cum >= params.TopP {
				cands = cands[:i+1]
				break
			}
		}
		normalize(cands, cum)
	}

	return cands
}

func normalize(cands []candidate, sum float64) {
	if sum <= 0 {
		return
	}
	for i := range cands {
		cands[i].p /= sum
	}
}

// draw picks a candidate for coin in [0, 1).
func draw(cands []candidate, coin float64) engine.Token {
	cdf := 0.0
	for _, c := range cands {
		cdf += c.p
		if coin < cdf {
			return c.id
		}
	}
	return cands[len(cands)-1].id
}
