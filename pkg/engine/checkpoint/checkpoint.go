// Package checkpoint is a pure-Go reference engine for small GPT-style
// transformer checkpoints stored as JSON.
//
// A checkpoint holds named weight matrices (wte, wpe, lm_head and, per layer,
// attn_wq/wk/wv/wo and mlp_fc1/fc2) plus either a character vocabulary or a
// subset of the cl100k BPE vocabulary. The model evaluates in float64 with a
// per-layer key/value cache so generation feeds one token at a time.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Tokenization modes.
const (
	TokenizationChar = "char"
	TokenizationBPE  = "bpe_cl100k"
)

// Checkpoint is the on-disk model format.
type Checkpoint struct {
	Version      int                    `json:"version"`
	CreatedAt    string                 `json:"created_at"`
	Config       Config                 `json:"config"`
	Tokenization string                 `json:"tokenization,omitempty"`
	BPEEncoding  string                 `json:"bpe_encoding,omitempty"`
	BPETokenIDs  []int                  `json:"bpe_token_ids,omitempty"`
	Vocab        []string               `json:"vocab,omitempty"`
	State        map[string][][]float64 `json:"state"`
}

// Config holds the transformer dimensions.
type Config struct {
	NLayer    int `json:"n_layer"`
	NEmbd     int `json:"n_embd"`
	NHead     int `json:"n_head"`
	BlockSize int `json:"block_size"`
}

// Read decodes and validates a checkpoint.
func Read(r io.Reader) (*Checkpoint, error) {
	var ckpt Checkpoint
	if err := json.NewDecoder(r).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("could not decode checkpoint: %w", err)
	}
	if err := ckpt.validateConfig(); err != nil {
		return nil, err
	}
	return &ckpt, nil
}

// ReadFile reads the checkpoint at path.
func ReadFile(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open checkpoint: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func (c *Checkpoint) validateConfig() error {
	cfg := c.Config
	if cfg.NLayer < 1 || cfg.NEmbd < 1 || cfg.NHead < 1 || cfg.BlockSize < 2 {
		return fmt.Errorf("invalid checkpoint config %+v", cfg)
	}
	if cfg.NEmbd%cfg.NHead != 0 {
		return fmt.Errorf("invalid checkpoint: n_embd %d must be divisible by n_head %d", cfg.NEmbd, cfg.NHead)
	}
	return nil
}

// validateShapes checks every weight matrix against the config and a
// vocabulary of nVocab tokens.
func (c *Checkpoint) validateShapes(nVocab int) error {
	cfg := c.Config
	check := func(name string, rows, cols int) error {
		m, ok := c.State[name]
		if !ok {
			return fmt.Errorf("checkpoint is missing %s", name)
		}
		if len(m) != rows {
			return fmt.Errorf("%s has %d rows, want %d", name, len(m), rows)
		}
		for i, row := range m {
			if len(row) != cols {
				return fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), cols)
			}
		}
		return nil
	}

	if err := check("wte", nVocab, cfg.NEmbd); err != nil {
		return err
	}
	if err := check("wpe", cfg.BlockSize, cfg.NEmbd); err != nil {
		return err
	}
	if err := check("lm_head", nVocab, cfg.NEmbd); err != nil {
		return err
	}
	for li := 0; li < cfg.NLayer; li++ {
		for _, name := range []string{"attn_wq", "attn_wk", "attn_wv", "attn_wo"} {
			if err := check(layerKey(li, name), cfg.NEmbd, cfg.NEmbd); err != nil {
				return err
			}
		}
		fc1 := c.State[layerKey(li, "mlp_fc1")]
		if err := check(layerKey(li, "mlp_fc1"), len(fc1), cfg.NEmbd); err != nil {
			return err
		}
		if len(fc1) == 0 {
			return fmt.Errorf("%s is empty", layerKey(li, "mlp_fc1"))
		}
		if err := check(layerKey(li, "mlp_fc2"), cfg.NEmbd, len(fc1)); err != nil {
			return err
		}
	}
	return nil
}

func layerKey(layer int, name string) string {
	return fmt.Sprintf("layer%d.%s", layer, name)
}
