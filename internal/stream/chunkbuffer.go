package stream

import "strings"

// EventDelimiter terminates one event in a framed stream.
const EventDelimiter = "\n\n"

// ChunkBuffer reassembles delimiter-terminated events from arbitrarily split
// byte chunks. Returned events keep their trailing delimiter, so the
// concatenation of everything returned by Feed and Flush equals the decoded input.
type ChunkBuffer struct {
	dec      *Decoder
	leftover string
}

func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{dec: NewDecoder()}
}

// Feed decodes chunk and returns every event completed by it.
func (b *ChunkBuffer) Feed(chunk []byte) []string {
	return b.split(b.dec.Decode(chunk))
}

// Flush is called once the transport reports completion. It returns the
// remaining complete events plus any undelimited tail as a final event.
func (b *ChunkBuffer) Flush() []string {
	events := b.split(b.dec.Flush())
	if b.leftover != "" {
		events = append(events, b.leftover)
		b.leftover = ""
	}
	return events
}

func (b *ChunkBuffer) split(text string) []string {
	if text == "" {
		return nil
	}
	buf := b.leftover + text

	var events []string
	for {
		idx := strings.Index(buf, EventDelimiter)
		if idx < 0 {
			break
		}
		end := idx + len(EventDelimiter)
		events = append(events, buf[:end])
		buf = buf[end:]
	}
	b.leftover = buf
	return events
}
