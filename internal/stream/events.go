package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"schoolhub-backend/internal/models"
)

// EventPrefix starts every event in the bulk job stream.
const EventPrefix = "data: "

// EventConsumer decodes a `data: <json>\n\n` framed stream into typed events.
// Malformed events are logged, counted and skipped.
type EventConsumer struct {
	OnEvent func(ev models.StreamEvent)
	OnError func(err error)

	// Malformed counts events that were skipped.
	Malformed int
}

// ParseEvent decodes one raw event as returned by ChunkBuffer. A blank event
// (keep-alive padding) returns ok=false with a nil error.
func ParseEvent(raw string) (ev models.StreamEvent, ok bool, err error) {
	text := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(text) == "" {
		return ev, false, nil
	}
	if !strings.HasPrefix(text, EventPrefix) {
		return ev, false, fmt.Errorf("%w: missing %q prefix", ErrMalformedEvent, EventPrefix)
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(text, EventPrefix)), &ev); err != nil {
		return ev, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, true, nil
}

// Consume reads body until a result event arrives or the stream ends, and
// closes body on every path. Ending without a result reports ErrTruncatedStream,
// which is distinct from a delivered result with success=false.
func (c *EventConsumer) Consume(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	buf := NewChunkBuffer()
	chunk := make([]byte, readBufferSize)

	// dispatch reports true once the terminal event has been delivered.
	dispatch := func(events []string) bool {
		for _, raw := range events {
			ev, ok, err := ParseEvent(raw)
			if err != nil {
				c.Malformed++
				log.Printf("WARN: skipping event: %v", err)
				continue
			}
			if !ok {
				continue
			}
			if c.OnEvent != nil {
				c.OnEvent(ev)
			}
			if ev.Type == models.EventResult {
				return true
			}
		}
		return false
	}

	for {
		n, readErr := body.Read(chunk)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if n > 0 && dispatch(buf.Feed(chunk[:n])) {
			return nil
		}

		if errors.Is(readErr, io.EOF) {
			if dispatch(buf.Flush()) {
				return nil
			}
			c.fail(ErrTruncatedStream)
			return ErrTruncatedStream
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			err := &TransportError{Err: readErr}
			c.fail(err)
			return err
		}
	}
}

func (c *EventConsumer) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
