package record

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every ParseError.
var ErrMalformed = errors.New("malformed record")

// ParseError describes why a line could not be decoded.
type ParseError struct {
	// Offset is the byte offset in the line where decoding stopped.
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record: %s at offset %d", e.Reason, e.Offset)
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

type tokenKind int

const (
	tokenPunct tokenKind = iota
	tokenString
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer walks the line once, left to right.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) fail(reason string) error {
	return &ParseError{Offset: l.pos, Reason: reason}
}

// next returns the next token. ok is false at end of input.
func (l *lexer) next() (tok token, ok bool, err error) {
	for l.pos < len(l.input) && l.input[l.pos] == ' ' {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{}, false, nil
	}

	start := l.pos
	c := l.input[l.pos]
	if c != '"' {
		l.pos++
		return token{kind: tokenPunct, text: string(c), pos: start}, true, nil
	}

	l.pos++
	buf := make([]byte, 0, 16)
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{kind: tokenString, text: string(buf), pos: start}, true, nil
		case '\\':
			l.pos++
			if l.pos >= len(l.input) {
				return token{}, false, l.fail("unterminated escape sequence")
			}
			switch l.input[l.pos] {
			case 't':
				buf = append(buf, '\t')
			case 'n':
				buf = append(buf, '\n')
			case '\\':
				buf = append(buf, '\\')
			case '"':
				buf = append(buf, '"')
			default:
				return token{}, false, l.fail(fmt.Sprintf("unsupported escape sequence \\%c", l.input[l.pos]))
			}
		default:
			buf = append(buf, c)
		}
		l.pos++
	}

	l.pos = start
	return token{}, false, l.fail("unterminated string literal")
}

func (l *lexer) expectPunct(want byte) error {
	tok, ok, err := l.next()
	if err != nil {
		return err
	}
	if !ok {
		return l.fail(fmt.Sprintf("expected %q, found end of input", want))
	}
	if tok.kind != tokenPunct || tok.text[0] != want {
		return &ParseError{Offset: tok.pos, Reason: fmt.Sprintf("expected %q", want)}
	}
	return nil
}

func (l *lexer) expectString(what string) (string, error) {
	tok, ok, err := l.next()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", l.fail("expected " + what + ", found end of input")
	}
	if tok.kind != tokenString {
		return "", &ParseError{Offset: tok.pos, Reason: "expected quoted " + what}
	}
	return tok.text, nil
}

// Decode parses a single line into a Record.
func Decode(line string) (*Record, error) {
	l := &lexer{input: line}
	r := New()

	if err := l.expectPunct('{'); err != nil {
		return nil, err
	}

	// An empty object is the only place a closing brace may follow the opening one.
	save := l.pos
	tok, ok, err := l.next()
	if err != nil {
		return nil, err
	}
	if ok && tok.kind == tokenPunct && tok.text == "}" {
		if err := l.expectEnd(); err != nil {
			return nil, err
		}
		return r, nil
	}
	l.pos = save

	for {
		key, err := l.expectString("key")
		if err != nil {
			return nil, err
		}
		if err := l.expectPunct(':'); err != nil {
			return nil, err
		}
		value, err := l.expectString("value")
		if err != nil {
			return nil, err
		}
		r.Set(key, value)

		tok, ok, err := l.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, l.fail("expected ',' or '}', found end of input")
		}
		if tok.kind == tokenPunct && tok.text == "," {
			continue
		}
		if tok.kind == tokenPunct && tok.text == "}" {
			if err := l.expectEnd(); err != nil {
				return nil, err
			}
			return r, nil
		}
		return nil, &ParseError{Offset: tok.pos, Reason: "expected ',' or '}'"}
	}
}

func (l *lexer) expectEnd() error {
	tok, ok, err := l.next()
	if err != nil {
		return err
	}
	if ok {
		return &ParseError{Offset: tok.pos, Reason: "unexpected trailing content"}
	}
	return nil
}
