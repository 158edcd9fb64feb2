package generate

import "github.com/papercomputeco/promptline/pkg/engine"

// Window is a fixed-capacity ring buffer of the most recently emitted tokens.
// Once full, the oldest token is evicted before the newest is stored.
// A zero-capacity window stores nothing.
type Window struct {
	buf  []engine.Token
	head int
	size int
}

// NewWindow returns an empty window holding at most capacity tokens.
func NewWindow(capacity int) *Window {
	return &Window{buf: make([]engine.Token, max(0, capacity))}
}

// Push stores id, evicting the oldest token when the window is full.
func (w *Window) Push(id engine.Token) {
	if len(w.buf) == 0 {
		return
	}
	w.buf[(w.head+w.size)%len(w.buf)] = id
	if w.size < len(w.buf) {
		w.size++
		return
	}
	w.head = (w.head + 1) % len(w.buf)
}

// Tokens returns a copy of the stored tokens, oldest first.
func (w *Window) Tokens() []engine.Token {
	return w.AppendTo(make([]engine.Token, 0, w.size))
}

// AppendTo appends the stored tokens to dst, oldest first, and returns the
// extended slice. Passing dst[:0] reuses its backing array.
func (w *Window) AppendTo(dst []engine.Token) []engine.Token {
	for i := range w.size {
		dst = append(dst, w.buf[(w.head+i)%len(w.buf)])
	}
	return dst
}

// Len is the number of stored tokens.
func (w *Window) Len() int { return w.size }

// Cap is the window capacity.
func (w *Window) Cap() int { return len(w.buf) }
