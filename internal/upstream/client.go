// Package upstream wraps outbound HTTP calls to external APIs with a circuit
// breaker, an optional rate limiter and request metrics.
package upstream

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"animeshelf/internal/metrics"
)

const maxBodyBytes = 4 << 20

var (
	// ErrUnavailable is returned without calling the upstream while its
	// breaker is open.
	ErrUnavailable = errors.New("upstream temporarily unavailable")
	// ErrStatus is matched by every non-2xx StatusError.
	ErrStatus = errors.New("unexpected upstream status")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Upstream, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configures a Client.
type Options struct {
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client performs requests against one named upstream.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	limiter *rate.Limiter
}

// New returns a client for the upstream called name.
func New(name string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{name: name, http: httpClient}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:    name,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[upstream] breaker %s: %s -> %s", name, from, to)
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.BreakerState.WithLabelValues(name).Set(open)
		},
	})
	return c
}

// Name returns the upstream name used in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// Do sends req, honouring the rate limiter and breaker. Non-2xx responses are
// returned as *StatusError.
func (c *Client) Do(req *http.Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			metrics.UpstreamRequests.WithLabelValues(c.name, "rejected").Inc()
			return nil, fmt.Errorf("%s: rate limit wait: %w", c.name, err)
		}
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*Response, error) {
		resp, err := c.send(req)
		if err != nil && req.Context().Err() != nil {
			return nil, &callerGoneError{err: err}
		}
		return resp, err
	})
	metrics.UpstreamDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(c.name, "rejected").Inc()
		return nil, fmt.Errorf("%s: %w", c.name, ErrUnavailable)
	case errors.As(err, new(*callerGoneError)):
		metrics.UpstreamRequests.WithLabelValues(c.name, "canceled").Inc()
		return nil, err
	case errors.Is(err, ErrStatus):
		metrics.UpstreamRequests.WithLabelValues(c.name, "status").Inc()
		return nil, err
	case err != nil:
		metrics.UpstreamRequests.WithLabelValues(c.name, "error").Inc()
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(c.name, "ok").Inc()
	return resp, nil
}

func (c *Client) send(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{Upstream: c.name, StatusCode: resp.StatusCode, Body: snippet}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// callerGoneError marks a failure caused by the request's own context ending.
type callerGoneError struct {
	err error
}

func (e *callerGoneError) Error() string { return e.err.Error() }

func (e *callerGoneError) Unwrap() error { return e.err }

// isSuccessful keeps client errors (4xx) and abandoned requests from tripping
// the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var gone *callerGoneError
	if errors.As(err, &gone) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}
