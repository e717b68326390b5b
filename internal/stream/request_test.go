package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getBuilder(url string) BuildFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

// holdOpen writes chunk, flushes it and keeps the response open until the client goes away.
func holdOpen(chunk string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chunk))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

func TestRequest_Completed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	}))
	defer srv.Close()

	var text strings.Builder
	req := NewRequest(srv.Client(), getBuilder(srv.URL), time.Second)
	out := req.Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
		c := &TokenConsumer{OnChunk: func(s string) { text.WriteString(s) }}
		return c.Consume(ctx, body)
	})

	require.Equal(t, StateCompleted, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, "hello", text.String())
	assert.False(t, req.Cancel(), "cancel after terminal is a no-op")
	assert.Equal(t, StateCompleted, req.State())
}

func TestRequest_NonSuccessStatusFailsBeforeStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var consumed atomic.Bool
	out := NewRequest(srv.Client(), getBuilder(srv.URL), 0).Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
		consumed.Store(true)
		return nil
	})

	require.Equal(t, StateFailed, out.State)
	var te *TransportError
	require.ErrorAs(t, out.Err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, "overloaded", te.Body)
	assert.False(t, consumed.Load())
}

func TestRequest_CancelMidStream(t *testing.T) {
	srv := httptest.NewServer(holdOpen("سل"))
	defer srv.Close()

	req := NewRequest(srv.Client(), getBuilder(srv.URL), 0)

	first := make(chan struct{})
	var once sync.Once
	var delivered []string
	var errCalls atomic.Int32
	done := make(chan Outcome, 1)
	go func() {
		done <- req.Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
			c := &TokenConsumer{
				OnChunk: func(s string) {
					req.Deliver(func() { delivered = append(delivered, s) })
					once.Do(func() { close(first) })
				},
				OnError: func(error) { errCalls.Add(1) },
			}
			return c.Consume(ctx, body)
		})
	}()

	<-first
	assert.Equal(t, StateInFlight, req.State())
	assert.True(t, req.Cancel())
	assert.False(t, req.Cancel(), "double cancel is a no-op")
	assert.False(t, req.Deliver(func() { t.Fatal("delivered after cancel") }))

	out := <-done
	assert.Equal(t, StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, ErrCancelledByUser)
	assert.Equal(t, []string{"سل"}, delivered)
	assert.Zero(t, errCalls.Load())
}

func TestRequest_CancelBeforeDo(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, "late")
	}))
	defer srv.Close()

	req := NewRequest(srv.Client(), getBuilder(srv.URL), 0)
	require.True(t, req.Cancel())
	assert.False(t, req.Cancel(), "double cancel is a no-op")
	assert.Equal(t, StateCancelled, req.State())

	out := req.Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
		t.Fatal("consumed a cancelled request")
		return nil
	})
	assert.Equal(t, StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, ErrCancelledByUser)
	assert.Zero(t, hits.Load())

	again := req.Do(context.Background(), func(context.Context, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, again.Err, ErrAlreadyStarted)
}

func TestRequest_IdleTimeoutFails(t *testing.T) {
	srv := httptest.NewServer(holdOpen("partial"))
	defer srv.Close()

	out := NewRequest(srv.Client(), getBuilder(srv.URL), 100*time.Millisecond).Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
		return (&TokenConsumer{}).Consume(ctx, body)
	})

	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrStreamStalled)
}

func TestRequest_SingleUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "x")
	}))
	defer srv.Close()

	req := NewRequest(srv.Client(), getBuilder(srv.URL), 0)
	consume := func(ctx context.Context, body io.ReadCloser) error {
		return (&TokenConsumer{}).Consume(ctx, body)
	}
	require.Equal(t, StateCompleted, req.Do(context.Background(), consume).State)

	again := req.Do(context.Background(), consume)
	assert.Equal(t, StateCompleted, again.State)
	assert.ErrorIs(t, again.Err, ErrAlreadyStarted)
}

func TestRequest_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewRequest(nil, getBuilder(url), 0).Do(context.Background(), func(ctx context.Context, body io.ReadCloser) error {
		t.Fatal("consume must not run")
		return nil
	})
	assert.Equal(t, StateFailed, out.State)
	var te *TransportError
	assert.ErrorAs(t, out.Err, &te)
}
