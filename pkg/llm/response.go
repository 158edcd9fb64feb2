package llm

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/papercomputeco/promptline/pkg/record"
)

// Response record keys.
const (
	KeyOutput                = "output"
	KeyReachedMaxContentSize = "reached_max_content_size"
	KeyMemoryPerTokenBytes   = "memory_per_token_bytes"
	KeyTotalPredictTimeUs    = "total_predict_time_us"
	KeyTotalTokenLength      = "total_token_length"
	KeyTokensTruncated       = "n_tokens_truncated"
	KeyInputTokenLength      = "input_token_length"
	KeyOutputTokenLength     = "output_token_length"
)

// ResponseKeys lists every key of a success response.
var ResponseKeys = []string{
	KeyInputTokenLength,
	KeyMemoryPerTokenBytes,
	KeyTokensTruncated,
	KeyOutput,
	KeyOutputTokenLength,
	KeyReachedMaxContentSize,
	KeyTotalPredictTimeUs,
	KeyTotalTokenLength,
}

// Response is a successful completion.
type Response struct {
	Output string

	// ReachedMaxContextSize is true when the context window is exactly full.
	ReachedMaxContextSize bool

	// MemoryPerTokenBytes is the estimate measured once at startup.
	MemoryPerTokenBytes uint64

	// TotalPredictTime is the summed evaluation time, reported in microseconds.
	TotalPredictTime time.Duration

	// TotalTokenLength is the number of tokens in the context after generation.
	TotalTokenLength int

	// TokensTruncated is the number of prompt tokens dropped from the front.
	TokensTruncated int

	// InputTokenLength is the number of prompt tokens evaluated.
	InputTokenLength int

	// OutputTokenLength is the number of tokens sampled.
	OutputTokenLength int
}

// Record encodes the response. All numbers are plain base-10 integers.
func (r *Response) Record() *record.Record {
	rec := record.New()
	rec.Set(KeyOutput, r.Output)
	rec.Set(KeyReachedMaxContentSize, strconv.FormatBool(r.ReachedMaxContextSize))
	rec.Set(KeyMemoryPerTokenBytes, strconv.FormatUint(r.MemoryPerTokenBytes, 10))
	rec.Set(KeyTotalPredictTimeUs, strconv.FormatInt(r.TotalPredictTime.Microseconds(), 10))
	rec.Set(KeyTotalTokenLength, strconv.Itoa(r.TotalTokenLength))
	rec.Set(KeyTokensTruncated, strconv.Itoa(r.TokensTruncated))
	rec.Set(KeyInputTokenLength, strconv.Itoa(r.InputTokenLength))
	rec.Set(KeyOutputTokenLength, strconv.Itoa(r.OutputTokenLength))
	return rec
}

// RemoteError is an error response received from a driver.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "promptline: " + e.Message
}

// Is matches the sentinel with the same message.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrInvalidArguments, ErrLengthExceeded, ErrInference:
		return e.Message == target.Error()
	}
	return false
}

// ParseResponse decodes a response record. An error response is returned as
// a *RemoteError.
func ParseResponse(rec *record.Record) (*Response, error) {
	if msg, ok := rec.Get(KeyError); ok {
		return nil, &RemoteError{Message: msg}
	}

	var (
		resp Response
		errs []error
	)
	get := func(key string) string {
		v, ok := rec.Get(key)
		if !ok {
			errs = append(errs, fmt.Errorf("missing key %q", key))
		}
		return v
	}
	atoi := func(key string) int {
		n, err := strconv.Atoi(get(key))
		if err != nil && rec.Has(key) {
			errs = append(errs, fmt.Errorf("key %q: %w", key, err))
		}
		return n
	}

	resp.Output = get(KeyOutput)
	if v := get(KeyReachedMaxContentSize); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", KeyReachedMaxContentSize, err))
		}
		resp.ReachedMaxContextSize = b
	}
	if v := get(KeyMemoryPerTokenBytes); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", KeyMemoryPerTokenBytes, err))
		}
		resp.MemoryPerTokenBytes = n
	}
	resp.TotalPredictTime = time.Duration(atoi(KeyTotalPredictTimeUs)) * time.Microsecond
	resp.TotalTokenLength = atoi(KeyTotalTokenLength)
	resp.TokensTruncated = atoi(KeyTokensTruncated)
	resp.InputTokenLength = atoi(KeyInputTokenLength)
	resp.OutputTokenLength = atoi(KeyOutputTokenLength)

	if len(errs) > 0 {
		return nil, fmt.Errorf("malformed response: %w", errors.Join(errs...))
	}
	return &resp, nil
}
