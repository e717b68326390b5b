package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelledByUser is the cause attached to a request stopped through Cancel.
	// It marks a terminal outcome, not a failure.
	ErrCancelledByUser = errors.New("cancelled by user")

	ErrEmptyResponse   = errors.New("empty response")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrTruncatedStream = errors.New("stream ended before a result event")
	ErrStreamStalled   = errors.New("stream stalled: no data received within idle timeout")
	ErrAlreadyStarted  = errors.New("request already started")
)

// TransportError is a network or HTTP failure before or during streaming.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	case e.Err != nil:
		return "transport error: " + e.Err.Error()
	default:
		return "transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
