// Package stream decodes the chunked body of an OCR response into text
// fragments and detects the in-band abort marker.
package stream

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Sentinel is written by the server in place of further output when a job is
// aborted.
const Sentinel = "<!-- Process Aborted -->"

const readSize = 32 * 1024

// Fragment is one decoded piece of the body.
type Fragment struct {
	Text string
	// Aborted is set on the last fragment when the sentinel was seen. Text
	// then holds whatever preceded the sentinel.
	Aborted bool
}

// Decoder reads an OCR response body chunk by chunk. Multi-byte characters
// split across chunks are reassembled and invalid bytes become U+FFFD.
//
// A chunk tail that could be the start of the sentinel is held back until the
// next chunk shows whether it is.
type Decoder struct {
	r    io.Reader
	buf  []byte
	held string
	acc  strings.Builder
	done bool
}

// NewDecoder wraps a response body. The caller still owns and closes body.
func NewDecoder(body io.Reader) *Decoder {
	return &Decoder{
		r:   transform.NewReader(body, unicode.UTF8.NewDecoder()),
		buf: make([]byte, readSize),
	}
}

// Next returns the next non-empty fragment, or io.EOF once the body is
// exhausted or the sentinel has been returned.
func (d *Decoder) Next() (Fragment, error) {
	for !d.done {
		n, err := d.r.Read(d.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return Fragment{}, err
		}
		eof := err != nil

		text := d.held + string(d.buf[:n])
		d.held = ""

		if idx := strings.Index(text, Sentinel); idx >= 0 {
			d.done = true
			frag := Fragment{Text: text[:idx], Aborted: true}
			d.acc.WriteString(frag.Text)
			return frag, nil
		}

		if eof {
			d.done = true
			if text == "" {
				return Fragment{}, io.EOF
			}
			d.acc.WriteString(text)
			return Fragment{Text: text}, nil
		}

		keep := partialSentinelSuffix(text)
		d.held = text[len(text)-keep:]
		text = text[:len(text)-keep]
		if text != "" {
			d.acc.WriteString(text)
			return Fragment{Text: text}, nil
		}
	}
	return Fragment{}, io.EOF
}

// Accumulated returns everything returned by Next so far.
func (d *Decoder) Accumulated() string {
	return d.acc.String()
}

// partialSentinelSuffix returns the length of the longest suffix of s that is
// a proper prefix of Sentinel.
func partialSentinelSuffix(s string) int {
	limit := len(Sentinel) - 1
	if len(s) < limit {
		limit = len(s)
	}
	for n := limit; n > 0; n-- {
		if strings.HasPrefix(Sentinel, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
