// Package opencode provides the HTTP client for an opencode server.
//
// client.go - Client and global event stream
//
// This file contains:
// - Client holding the server URL, credentials and HTTP transport
// - Global event subscription (GlobalEvents)
// - StatusError for non-2xx responses
//
// The server multiplexes events for every directory over one SSE stream
// at /global/event. Each frame is decoded into an event.Envelope.

package opencode

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/sse"
)

const (
	// DefaultUsername is sent with a password when no username is configured
	DefaultUsername = "opencode"

	defaultRequestTimeout = 30 * time.Second
	eventBufferSize       = 64
	maxErrorBody          = 4096
)

// ErrUnexpectedStatus is wrapped by StatusError
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError reports a non-2xx response and its body
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client talks to one opencode server
type Client struct {
	baseURL        string
	username       string
	password       string
	httpClient     *http.Client
	limiter        *rate.Limiter
	requestTimeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBasicAuth sets the credentials sent on every request. An empty
// password disables authentication.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the transport. It must not set a Timeout, since
// that would cut the event stream.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit throttles requests made through directory clients.
// The event stream itself is never throttled.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithRequestTimeout bounds each non-streaming request
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Inf, 0),
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the server base URL
func (c *Client) URL() string {
	return c.baseURL
}

// GlobalEvents opens the global event stream. It returns once the server has
// accepted the request; decoded events are then delivered on the channel,
// which is closed when the stream ends or ctx is cancelled. Read and decode
// failures are reported through onError; errors caused by cancelling ctx are
// not reported.
func (c *Client) GlobalEvents(ctx context.Context, onError func(error)) (<-chan event.Envelope, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/global/event", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError("event stream", resp)
	}

	events := make(chan event.Envelope, eventBufferSize)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()

		dec := sse.NewDecoder(resp.Body)
		for {
			frame, err := dec.Next()
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					onError(fmt.Errorf("reading event stream: %w", err))
				}
				return
			}

			env, err := event.DecodeEnvelope(frame.Data)
			if err != nil {
				if ctx.Err() == nil {
					onError(err)
				}
				continue // Skip malformed events
			}

			select {
			case events <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// Subscribe implements the event source used by the sync pipeline
func (c *Client) Subscribe(ctx context.Context, onError func(error)) (<-chan event.Envelope, error) {
	return c.GlobalEvents(ctx, onError)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req, nil
}

func (c *Client) authorization() string {
	if c.password == "" {
		return ""
	}
	username := c.username
	if username == "" {
		username = DefaultUsername
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+c.password))
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
