package transcript

import (
	"context"
	"errors"
	"fmt"
)

// Storer persists and retrieves transcript entries.
// Put is idempotent: an entry whose hash is already stored is skipped.
type Storer interface {
	// Put stores an entry and reports whether it was new.
	Put(ctx context.Context, entry *Entry) (bool, error)

	// Get retrieves an entry by its hash. Returns ErrNotFound if the entry doesn't exist.
	Get(ctx context.Context, hash string) (*Entry, error)

	// Has checks if an entry exists by its hash.
	Has(ctx context.Context, hash string) (bool, error)

	// GetByParent retrieves all entries that have the given parent hash.
	// Pass nil to get the first turns of every session.
	GetByParent(ctx context.Context, parentHash *string) ([]*Entry, error)

	// List returns all entries in insertion order.
	List(ctx context.Context) ([]*Entry, error)

	// Roots returns all entries with no parent.
	Roots(ctx context.Context) ([]*Entry, error)

	// Leaves returns all entries with no children, i.e. the last turn of
	// every session.
	Leaves(ctx context.Context) ([]*Entry, error)

	Close() error
}

// ErrNotFound is returned when an entry doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "entry not found"
	}

	return "entry not found: " + e.Hash
}

var errNilEntry = errors.New("cannot store nil entry")

// Ancestry returns the chain from hash back to its root (entry first, root last).
func Ancestry(ctx context.Context, s Storer, hash string) ([]*Entry, error) {
	var chain []*Entry
	seen := make(map[string]bool)
	for {
		if seen[hash] {
			return nil, fmt.Errorf("cycle at entry %s", hash)
		}
		seen[hash] = true

		e, err := s.Get(ctx, hash)
		if err != nil {
			return nil, err
		}
		chain = append(chain, e)
		if e.ParentHash == nil {
			return chain, nil
		}
		hash = *e.ParentHash
	}
}

// Lineage returns the chain from the root down to hash (root first, entry last).
func Lineage(ctx context.Context, s Storer, hash string) ([]*Entry, error) {
	chain, err := Ancestry(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Depth returns the depth of an entry (0 for roots).
func Depth(ctx context.Context, s Storer, hash string) (int, error) {
	chain, err := Ancestry(ctx, s, hash)
	if err != nil {
		return 0, err
	}
	return len(chain) - 1, nil
}

// Copy puts every entry of src into dst, parents before children, and
// returns how many were new and how many dst already had.
func Copy(ctx context.Context, dst, src Storer) (added, existing int, err error) {
	entries, err := src.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list entries: %w", err)
	}
	for _, e := range entries {
		isNew, err := dst.Put(ctx, e)
		if err != nil {
			return added, existing, fmt.Errorf("could not put entry %s: %w", e.Hash, err)
		}
		if isNew {
			added++
		} else {
			existing++
		}
	}
	return added, existing, nil
}
