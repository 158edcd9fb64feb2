// Package transcript keeps an append-only, content-addressed log of the
// requests a driver served.
//
// Each Entry hashes its turn together with the hash of the entry before it,
// so a session forms a chain and identical histories share entries. Stores
// from different runs can be merged by plain union.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/promptline/pkg/llm"
)

// Entry is a single content-addressed turn in a transcript.
type Entry struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn of the session.
	// This will be nil for the first turn.
	ParentHash *string `json:"parent_hash"`

	Turn llm.Turn `json:"turn"`
}

// NewEntry creates a new entry with the computed hash for turn
func NewEntry(turn llm.Turn, parent *Entry) *Entry {
	e := &Entry{Turn: turn}
	if parent != nil {
		e.ParentHash = &parent.Hash
	}

	e.Hash = e.computeHash()
	return e
}

// Verify reports whether Hash matches the entry's content.
func (e *Entry) Verify() bool {
	return e.Hash == e.computeHash()
}

type hashInput struct {
	Parent string   `json:"parent,omitempty"`
	Turn   llm.Turn `json:"turn"`
}

func (e *Entry) computeHash() string {
	in := hashInput{Turn: e.Turn}
	if e.ParentHash != nil {
		in.Parent = *e.ParentHash
	}

	// Maps marshal with sorted keys, so the encoding is canonical.
	data, err := json.Marshal(in)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
