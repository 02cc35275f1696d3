package decode

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

var (
	streamMarker = []byte("streamtyped")
	stringClass  = []byte("NSString")
)

const (
	// stringTag precedes the length of an archived C string.
	stringTag = '+'
	// tagSearchWindow bounds how far past the class name the tag may sit.
	tagSearchWindow = 16

	lenUint16 = 0x81
	lenUint32 = 0x82
)

// Typedstream reads the first NSString payload from a typedstream archive.
// The payload follows the NSString class reference as a '+' tag, a length,
// and UTF-8 bytes. Lengths below 0x80 are a single byte; 0x81 and 0x82
// introduce little-endian 16 and 32 bit lengths.
type Typedstream struct{}

// Decode implements Decoder.
func (Typedstream) Decode(body []byte) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	if !bytes.Contains(body, streamMarker) {
		return "", false
	}
	idx := bytes.Index(body, stringClass)
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(stringClass):]

	window := rest
	if len(window) > tagSearchWindow {
		window = window[:tagSearchWindow]
	}
	tag := bytes.IndexByte(window, stringTag)
	if tag < 0 {
		return "", false
	}
	rest = rest[tag+1:]

	n, width, ok := readLength(rest)
	if !ok || n <= 0 || width+n > len(rest) {
		return "", false
	}
	payload := rest[width : width+n]
	if !utf8.Valid(payload) {
		return "", false
	}
	text = strings.TrimSpace(string(payload))
	return text, text != ""
}

func readLength(b []byte) (n, width int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	switch b[0] {
	case lenUint16:
		if len(b) < 3 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint16(b[1:3])), 3, true
	case lenUint32:
		if len(b) < 5 {
			return 0, 0, false
		}
		return int(binary.LittleEndian.Uint32(b[1:5])), 5, true
	default:
		if b[0] >= 0x80 {
			return 0, 0, false
		}
		return int(b[0]), 1, true
	}
}
