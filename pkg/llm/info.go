package llm

import (
	"fmt"
	"strconv"

	"github.com/papercomputeco/promptline/pkg/record"
)

// Announcement record keys.
const (
	KeyContextSize = "n_ctx"
	KeyThreads     = "n_threads"
	KeyVocabSize   = "n_vocab"
)

// Info describes a running driver. It is written once, before the first
// request, when the driver is configured to announce itself.
type Info struct {
	ContextSize         int
	Threads             int
	VocabSize           int
	MemoryPerTokenBytes uint64
}

// Record encodes the announcement.
func (i Info) Record() *record.Record {
	r := record.New()
	r.Set(KeyContextSize, strconv.Itoa(i.ContextSize))
	r.Set(KeyThreads, strconv.Itoa(i.Threads))
	r.Set(KeyVocabSize, strconv.Itoa(i.VocabSize))
	r.Set(KeyMemoryPerTokenBytes, strconv.FormatUint(i.MemoryPerTokenBytes, 10))
	return r
}

// ParseInfo decodes an announcement record.
func ParseInfo(rec *record.Record) (Info, error) {
	var info Info
	for key, dst := range map[string]*int{
		KeyContextSize: &info.ContextSize,
		KeyThreads:     &info.Threads,
		KeyVocabSize:   &info.VocabSize,
	} {
		v, ok := rec.Get(key)
		if !ok {
			return Info{}, fmt.Errorf("missing key %q", key)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Info{}, fmt.Errorf("key %q: %w", key, err)
		}
		*dst = n
	}

	v, ok := rec.Get(KeyMemoryPerTokenBytes)
	if !ok {
		return Info{}, fmt.Errorf("missing key %q", KeyMemoryPerTokenBytes)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("key %q: %w", KeyMemoryPerTokenBytes, err)
	}
	info.MemoryPerTokenBytes = n
	return info, nil
}
