package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Input limits.
const (
	MaxInboundBytes = 16 << 10
	MaxArgsDepth    = 16
)

// Input errors.
var (
	ErrTooLarge   = errors.New("input too large")
	ErrBadText    = errors.New("input is not valid text")
	ErrArgsDepth  = errors.New("arguments nested too deeply")
	ErrArgsSyntax = errors.New("arguments are not valid JSON")
)

// CheckInbound rejects chat text longer than maxBytes (MaxInboundBytes when
// maxBytes <= 0), text that is not UTF-8, and text carrying NUL bytes.
func CheckInbound(text string, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = MaxInboundBytes
	}
	if len(text) > maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(text), maxBytes)
	}
	if !utf8.ValidString(text) {
		return ErrBadText
	}
	if bytes.IndexByte([]byte(text), 0) >= 0 {
		return fmt.Errorf("%w: contains NUL", ErrBadText)
	}
	return nil
}

// CheckArgsDepth walks the JSON tokens of raw and fails once objects and
// arrays nest deeper than maxDepth (MaxArgsDepth when maxDepth <= 0). Empty
// input passes.
func CheckArgsDepth(raw []byte, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = MaxArgsDepth
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if depth != 0 {
				return fmt.Errorf("%w: unexpected end of input", ErrArgsSyntax)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrArgsSyntax, err)
		}
		d, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		if d == '{' || d == '[' {
			if depth++; depth > maxDepth {
				return fmt.Errorf("%w: limit %d", ErrArgsDepth, maxDepth)
			}
		} else {
			depth--
		}
	}
}
