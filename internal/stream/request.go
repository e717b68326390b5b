package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateInFlight
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Outcome is the single terminal result of a Request.
type Outcome struct {
	State State
	Err   error
}

// BuildFunc creates the HTTP request bound to the request's own context.
type BuildFunc func(ctx context.Context) (*http.Request, error)

// ConsumeFunc owns the response body for the lifetime of the stream.
type ConsumeFunc func(ctx context.Context, body io.ReadCloser) error

// Request owns the lifecycle of one outstanding streaming HTTP call:
// idle -> in_flight -> completed | cancelled | failed. It is single use.
type Request struct {
	client      *http.Client
	build       BuildFunc
	idleTimeout time.Duration

	mu      sync.Mutex
	state   State
	started bool
	cancel  context.CancelCauseFunc
}

// NewRequest prepares a request. A positive idleTimeout fails the request
// with ErrStreamStalled when no bytes arrive for that long.
func NewRequest(client *http.Client, build BuildFunc, idleTimeout time.Duration) *Request {
	if client == nil {
		client = http.DefaultClient
	}
	return &Request{client: client, build: build, idleTimeout: idleTimeout}
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Do issues the call and streams a 2xx body through consume. It blocks until
// the request reaches a terminal state and returns that state.
func (r *Request) Do(parent context.Context, consume ConsumeFunc) Outcome {
	r.mu.Lock()
	if r.started {
		state := r.state
		r.mu.Unlock()
		return Outcome{State: state, Err: ErrAlreadyStarted}
	}
	r.started = true
	if r.state == StateCancelled {
		r.mu.Unlock()
		return Outcome{State: StateCancelled, Err: ErrCancelledByUser}
	}
	ctx, cancel := context.WithCancelCause(parent)
	r.cancel = cancel
	r.state = StateInFlight
	r.mu.Unlock()
	defer cancel(nil)

	var watchdog *time.Timer
	if r.idleTimeout > 0 {
		watchdog = time.AfterFunc(r.idleTimeout, func() { cancel(ErrStreamStalled) })
		defer watchdog.Stop()
	}

	req, err := r.build(ctx)
	if err != nil {
		return r.finish(ctx, fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return r.finish(ctx, &TransportError{Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return r.finish(ctx, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))})
	}

	body := &watchedBody{rc: resp.Body, timer: watchdog, idle: r.idleTimeout}
	err = consume(ctx, body)
	body.Close()
	return r.finish(ctx, err)
}

func (r *Request) finish(ctx context.Context, err error) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateCancelled {
		return Outcome{State: StateCancelled, Err: ErrCancelledByUser}
	}

	if err != nil && errors.Is(context.Cause(ctx), ErrStreamStalled) {
		err = ErrStreamStalled
	}

	if err == nil {
		r.state = StateCompleted
		return Outcome{State: StateCompleted}
	}
	r.state = StateFailed
	return Outcome{State: StateFailed, Err: err}
}

// Cancel aborts the request. Cancelling an idle request makes a later Do
// return cancelled without dialing. It reports whether this call moved the
// request to cancelled; on a terminal request it is a no-op.
func (r *Request) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateIdle:
		r.state = StateCancelled
		return true
	case StateInFlight:
		r.state = StateCancelled
		r.cancel(ErrCancelledByUser)
		return true
	}
	return false
}

// Deliver runs fn only while the request is in flight. Cancel cannot
// interleave with fn, so nothing is delivered after Cancel returns.
// fn must not call back into the Request.
func (r *Request) Deliver(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateInFlight {
		return false
	}
	fn()
	return true
}

type watchedBody struct {
	rc    io.ReadCloser
	timer *time.Timer
	idle  time.Duration
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && b.timer != nil {
		b.timer.Reset(b.idle)
	}
	return n, err
}

func (b *watchedBody) Close() error {
	return b.rc.Close()
}
