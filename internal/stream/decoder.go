package stream

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns a sequence of byte chunks into text, holding back an
// incomplete trailing UTF-8 sequence until the next chunk completes it.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text fully contained in the bytes seen so far.
func (d *Decoder) Decode(p []byte) string {
	return d.run(p, false)
}

// Flush decodes whatever is still held back. Invalid trailing bytes become U+FFFD.
func (d *Decoder) Flush() string {
	out := d.run(nil, true)
	d.t.Reset()
	return out
}

func (d *Decoder) run(p []byte, atEOF bool) string {
	src := append(d.pending[:len(d.pending):len(d.pending)], p...)
	d.pending = nil

	var out []byte
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch err {
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			d.pending = append([]byte(nil), src...)
		}
		return string(out)
	}
}
