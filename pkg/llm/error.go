// Package llm holds the request and response model of the promptline
// protocol: generation options, the parameter decoder, the response
// assembler and the error taxonomy shared by every stage.
package llm

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/promptline/pkg/record"
)

// KeyError is the only key of an error response.
const KeyError = "error"

// Sentinel errors, one per user-facing message.
var (
	// ErrInvalidArguments covers malformed lines, unknown keys and bad values.
	ErrInvalidArguments = errors.New("Invalid arguments")

	// ErrLengthExceeded means the request cannot fit the context window.
	ErrLengthExceeded = errors.New("Input exceeds maximal context length")

	// ErrInference means the evaluation engine failed.
	ErrInference = errors.New("Inference error")
)

// ValidationError reports an unknown key or a value that failed to coerce.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q=%q: %s", e.Key, e.Value, e.Reason)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// NewValidationError creates a new ValidationError
func NewValidationError(key, value, reason string) *ValidationError {
	return &ValidationError{Key: key, Value: value, Reason: reason}
}

// LengthExceededError reports a request that cannot fit the context window
// even after dropping prompt tokens.
type LengthExceededError struct {
	PromptTokens int
	NumPredict   int
	ContextSize  int
}

func (e *LengthExceededError) Error() string {
	return fmt.Sprintf("prompt of %d tokens with n_predict %d exceeds context size %d",
		e.PromptTokens, e.NumPredict, e.ContextSize)
}

// Is implements errors.Is support
func (e *LengthExceededError) Is(target error) bool {
	return target == ErrLengthExceeded
}

// InferenceError wraps an evaluation failure.
type InferenceError struct {
	// NPast is the context length at which evaluation failed.
	NPast int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("evaluation failed at n_past %d: %v", e.NPast, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *InferenceError) Is(target error) bool {
	return target == ErrInference
}

// Message maps err to the message sent to the client.
// Parse and validation failures collapse into one generic message.
func Message(err error) string {
	switch {
	case errors.Is(err, record.ErrMalformed), errors.Is(err, ErrInvalidArguments):
		return ErrInvalidArguments.Error()
	case errors.Is(err, ErrLengthExceeded):
		return ErrLengthExceeded.Error()
	default:
		return ErrInference.Error()
	}
}

// IsInvalidArguments reports whether err is a parse or validation failure.
func IsInvalidArguments(err error) bool {
	return errors.Is(err, record.ErrMalformed) || errors.Is(err, ErrInvalidArguments)
}

// ErrorResponse represents an error reported by the driver.
type ErrorResponse struct {
	Error string
}

// Record encodes the error response. It has exactly one key.
func (e ErrorResponse) Record() *record.Record {
	r := record.New()
	r.Set(KeyError, e.Error)
	return r
}

// ErrorRecord builds the error response record for err.
func ErrorRecord(err error) *record.Record {
	return ErrorResponse{Error: Message(err)}.Record()
}
