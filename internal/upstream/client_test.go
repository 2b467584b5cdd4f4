package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animeshelf/internal/upstream"
)

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestDoReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := upstream.New("test-ok", upstream.Options{Timeout: time.Second})
	resp, err := c.Do(newRequest(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestDoWrapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := upstream.New("test-status", upstream.Options{Timeout: time.Second})
	_, err := c.Do(newRequest(t, srv.URL))
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrStatus))

	var se *upstream.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := upstream.New("test-breaker", upstream.Options{
		Timeout:             time.Second,
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(newRequest(t, srv.URL))
		require.ErrorIs(t, err, upstream.ErrStatus)
	}

	_, err := c.Do(newRequest(t, srv.URL))
	require.ErrorIs(t, err, upstream.ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := upstream.New("test-4xx", upstream.Options{Timeout: time.Second, ConsecutiveFailures: 1, OpenTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := c.Do(newRequest(t, srv.URL))
		require.ErrorIs(t, err, upstream.ErrStatus)
	}
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("slow") != "" {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := upstream.New("test-cancel", upstream.Options{
		Timeout:             5 * time.Second,
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?slow=1", nil)
		require.NoError(t, err)
		_, err = c.Do(req)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, upstream.ErrUnavailable)
	}

	_, err := c.Do(newRequest(t, srv.URL))
	require.NoError(t, err, "abandoned requests must not open the breaker")
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := upstream.New("test-limit", upstream.Options{Timeout: time.Second, RequestsPerSecond: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Do(newRequest(t, srv.URL))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRateLimiterHonoursCallerDeadline(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := upstream.New("test-limit-deadline", upstream.Options{Timeout: time.Second, RequestsPerSecond: 0.1})

	_, err := c.Do(newRequest(t, srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "throttled request must not reach the server")
}
