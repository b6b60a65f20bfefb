// Package stream extracts a single string field's value out of a JSON
// document that arrives as an arbitrarily-chunked text stream, so a large
// generated artifact can be previewed before the full response parses.
package stream

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

type state int

const (
	stateSeek state = iota // scanning for the field marker
	stateSkipToQuote       // marker found, scanning for the opening quote
	stateExtract           // inside the string value
	stateDone              // closing quote seen, all further input ignored
)

// Extractor scans a growing text buffer for `"<field>"` and streams the
// unescaped string value to a sink callback fragment by fragment. It never
// fails on malformed input: invalid escapes are emitted literally and a
// missing closing quote simply means the sink stops receiving fragments.
type Extractor struct {
	marker string
	sink   func(fragment string)

	state state
	buf   string // unconsumed tail carried across Feed calls
	esc   bool   // previous byte was an unprocessed backslash
	hex   string // partial \uXXXX digits pending across Feed calls
	inHex bool
}

// New returns an extractor for the string-valued field named field.
// The sink receives successive decoded fragments; it is called on the
// goroutine that calls Feed.
func New(field string, sink func(fragment string)) *Extractor {
	return &Extractor{
		marker: `"` + field + `"`,
		sink:   sink,
	}
}

// Done reports whether the closing quote has been consumed.
func (e *Extractor) Done() bool { return e.state == stateDone }

// Feed consumes the next chunk of the raw stream. Chunks may be any size,
// including sizes that split the marker or an escape sequence.
func (e *Extractor) Feed(chunk string) {
	if e.state == stateDone || chunk == "" && e.buf == "" {
		return
	}

	e.buf += chunk

	if e.state == stateSeek {
		idx := strings.Index(e.buf, e.marker)
		if idx == -1 {
			// Retain a tail in case the marker spans two chunks.
			if tail := len(e.marker) - 1; len(e.buf) > tail {
				e.buf = e.buf[len(e.buf)-tail:]
			}
			return
		}
		e.buf = e.buf[idx+len(e.marker):]
		e.state = stateSkipToQuote
	}

	if e.state == stateSkipToQuote {
		q := strings.IndexByte(e.buf, '"')
		if q == -1 {
			e.buf = ""
			return
		}
		e.buf = e.buf[q+1:]
		e.state = stateExtract
	}

	if e.state == stateExtract {
		e.extract()
	}
}

func (e *Extractor) extract() {
	var out strings.Builder
	b := e.buf
	i := 0

	for i < len(b) {
		ch := b[i]

		if e.inHex {
			e.hex += string(ch)
			i++
			if len(e.hex) < 4 {
				continue
			}
			out.WriteString(decodeHexEscape(e.hex))
			e.hex = ""
			e.inHex = false
			continue
		}

		if e.esc {
			e.esc = false
			switch ch {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case 'r':
				out.WriteByte('\r')
			case '"':
				out.WriteByte('"')
			case '\\':
				out.WriteByte('\\')
			case '/':
				out.WriteByte('/')
			case 'u':
				e.inHex = true
			default:
				out.WriteByte(ch)
			}
			i++
			continue
		}

		switch ch {
		case '\\':
			e.esc = true
		case '"':
			// Closing quote: flush and ignore everything after.
			if out.Len() > 0 {
				e.sink(out.String())
			}
			e.state = stateDone
			e.buf = ""
			return
		default:
			out.WriteByte(ch)
		}
		i++
	}

	if out.Len() > 0 {
		e.sink(out.String())
	}
	// Buffer fully consumed; esc/hex state carries into the next Feed.
	e.buf = ""
}

// decodeHexEscape turns the four digits of a \uXXXX escape into the encoded
// rune, or returns the escape verbatim when the digits are not valid hex.
func decodeHexEscape(digits string) string {
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return `\u` + digits
	}
	var tmp [utf8.UTFMax]byte
	w := utf8.EncodeRune(tmp[:], rune(n))
	return string(tmp[:w])
}
