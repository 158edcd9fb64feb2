package llm

// Turn is one request and the driver's answer to it, as kept in a transcript.
// Both sides are stored as the flat key/value pairs that crossed the wire.
type Turn struct {
	Request map[string]string `json:"request,omitempty"`
	// Raw holds the input line when it could not be decoded into Request.
	Raw      string            `json:"raw,omitempty"`
	Response map[string]string `json:"response"`

	// Seed is the seed actually used, resolved when the request left it unset.
	// Zero when the request failed before generation.
	Seed int64 `json:"seed,omitempty"`
}

// Failed reports whether the driver answered with an error response.
func (t Turn) Failed() bool {
	_, ok := t.Response[KeyError]
	return ok
}
