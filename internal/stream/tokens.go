package stream

import (
	"context"
	"errors"
	"io"
)

const readBufferSize = 4096

// TokenConsumer drains an unframed stream of UTF-8 text deltas. OnChunk
// receives only the newly decoded text of each read; accumulation is the
// caller's job.
type TokenConsumer struct {
	OnChunk func(text string)
	OnDone  func()
	OnError func(err error)
}

// Consume reads body to exhaustion and closes it on every path.
//
// A stream that ends without a single non-empty chunk reports
// ErrEmptyResponse. Once ctx is done no callback fires and the context
// cause is returned.
func (c *TokenConsumer) Consume(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	dec := NewDecoder()
	buf := make([]byte, readBufferSize)
	delivered := false

	emit := func(text string) {
		if text == "" {
			return
		}
		delivered = true
		if c.OnChunk != nil {
			c.OnChunk(text)
		}
	}

	for {
		n, readErr := body.Read(buf)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if n > 0 {
			emit(dec.Decode(buf[:n]))
		}

		if errors.Is(readErr, io.EOF) {
			emit(dec.Flush())
			if !delivered {
				c.fail(ErrEmptyResponse)
				return ErrEmptyResponse
			}
			if c.OnDone != nil {
				c.OnDone()
			}
			return nil
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

func (c *TokenConsumer) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
