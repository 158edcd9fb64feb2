package checkpoint

import (
	"fmt"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/papercomputeco/promptline/pkg/engine"
)

// Vocabulary maps text to checkpoint-local token ids. Character vocabularies
// use one id per rune followed by the boundary token. BPE vocabularies use
// one id per kept cl100k token, then an unknown token, then the boundary
// token. The boundary token doubles as end-of-sequence.
type Vocabulary struct {
	mode string

	charToLocal map[rune]engine.Token
	localToChar []rune

	bpe        *tiktoken.Tiktoken
	bpeToLocal map[int]engine.Token
	localToBPE []int

	unk engine.Token
	bos engine.Token
}

// NewVocabulary builds the vocabulary described by ckpt.
func NewVocabulary(ckpt *Checkpoint) (*Vocabulary, error) {
	if ckpt.Tokenization == TokenizationBPE || len(ckpt.BPETokenIDs) > 0 {
		encName := strings.TrimSpace(ckpt.BPEEncoding)
		if encName == "" {
			encName = "cl100k_base"
		}
		enc, err := tiktoken.GetEncoding(encName)
		if err != nil {
			return nil, fmt.Errorf("could not load BPE encoding %s: %w", encName, err)
		}
		return newBPEVocabulary(enc, ckpt.BPETokenIDs), nil
	}

	if len(ckpt.Vocab) == 0 {
		return nil, fmt.Errorf("checkpoint has empty character vocab")
	}
	v := &Vocabulary{
		mode:        TokenizationChar,
		charToLocal: make(map[rune]engine.Token, len(ckpt.Vocab)),
		localToChar: make([]rune, 0, len(ckpt.Vocab)),
		unk:         -1,
		bos:         engine.Token(len(ckpt.Vocab)),
	}
	for i, s := range ckpt.Vocab {
		r := []rune(s)
		if len(r) != 1 {
			return nil, fmt.Errorf("invalid vocab token %q: expected one rune", s)
		}
		v.charToLocal[r[0]] = engine.Token(i)
		v.localToChar = append(v.localToChar, r[0])
	}
	return v, nil
}

func newBPEVocabulary(enc *tiktoken.Tiktoken, ids []int) *Vocabulary {
	v := &Vocabulary{
		mode:       TokenizationBPE,
		bpe:        enc,
		bpeToLocal: make(map[int]engine.Token, len(ids)),
		localToBPE: append([]int(nil), ids...),
		unk:        engine.Token(len(ids)),
		bos:        engine.Token(len(ids) + 1),
	}
	for i, id := range ids {
		v.bpeToLocal[id] = engine.Token(i)
	}
	return v
}

// Tokenize implements engine.Vocabulary. Characters outside a character
// vocabulary are skipped; BPE tokens outside the kept set map to the
// unknown token.
func (v *Vocabulary) Tokenize(text string) []engine.Token {
	if v.mode == TokenizationBPE {
		raw := v.bpe.EncodeOrdinary(text)
		out := make([]engine.Token, 0, len(raw))
		for _, id := range raw {
			if local, ok := v.bpeToLocal[id]; ok {
				out = append(out, local)
			} else {
				out = append(out, v.unk)
			}
		}
		return out
	}

	out := make([]engine.Token, 0, len(text))
	for _, r := range text {
		if id, ok := v.charToLocal[r]; ok {
			out = append(out, id)
		}
	}
	return out
}

// TokenText implements engine.Vocabulary. Special tokens render as nothing.
func (v *Vocabulary) TokenText(id engine.Token) string {
	if v.mode == TokenizationBPE {
		if id < 0 || int(id) >= len(v.localToBPE) {
			return ""
		}
		return v.bpe.Decode([]int{v.localToBPE[id]})
	}
	if id < 0 || int(id) >= len(v.localToChar) {
		return ""
	}
	return string(v.localToChar[id])
}

// Size implements engine.Vocabulary.
func (v *Vocabulary) Size() int {
	return int(v.bos) + 1
}

// EOS implements engine.Vocabulary.
func (v *Vocabulary) EOS() engine.Token {
	return v.bos
}

// Mode is TokenizationChar or TokenizationBPE.
func (v *Vocabulary) Mode() string {
	return v.mode
}
