// Package decode extracts readable text from the encoded message bodies
// (attributedBody) that newer Messages versions store instead of plain text.
package decode

import (
	"strings"
)

// Decoder turns an encoded body into text. ok is false when nothing readable
// could be extracted. Implementations must not panic.
type Decoder interface {
	Decode(body []byte) (text string, ok bool)
}

// Func adapts a function to the Decoder interface.
type Func func([]byte) (string, bool)

// Decode calls f.
func (f Func) Decode(body []byte) (string, bool) { return f(body) }

// Chain tries each decoder in order and returns the first success.
func Chain(decoders ...Decoder) Decoder {
	return chain(decoders)
}

type chain []Decoder

func (c chain) Decode(body []byte) (string, bool) {
	for _, d := range c {
		if d == nil {
			continue
		}
		if text, ok := d.Decode(body); ok {
			return text, true
		}
	}
	return "", false
}

// Default is the structured parser with the printable-run heuristic behind it.
func Default() Decoder {
	return Chain(Typedstream{}, Heuristic{})
}

// Text returns the message text, decoding body when text is blank.
// ok is false when neither yields anything.
func Text(d Decoder, text string, body []byte) (string, bool) {
	if strings.TrimSpace(text) != "" {
		return text, true
	}
	if len(body) == 0 || d == nil {
		return "", false
	}
	return d.Decode(body)
}
