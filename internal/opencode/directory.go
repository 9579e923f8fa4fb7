// Package opencode provides the HTTP client for an opencode server.
//
// directory.go - Directory-scoped request client
//
// This file contains:
// - DirectoryClient, a request client bound to one project directory
// - Session operations (CreateSession, ListSessions, SendMessageAsync, AbortSession)
//
// The server resolves the project from the x-opencode-directory header.
// Directory clients share the parent Client's rate limiter and are
// independent of the event stream.

package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// DirectoryHeader carries the directory a request applies to
const DirectoryHeader = "x-opencode-directory"

// DirectoryClient issues requests scoped to one directory
type DirectoryClient struct {
	client    *Client
	directory string
}

// ForDirectory returns a request client scoped to directory
func (c *Client) ForDirectory(directory string) *DirectoryClient {
	return &DirectoryClient{client: c, directory: directory}
}

// Directory returns the directory this client is scoped to
func (d *DirectoryClient) Directory() string {
	return d.directory
}

// Do sends a request with an optional JSON body. The caller closes the
// response body. Do waits on the shared rate limiter first.
func (d *DirectoryClient) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := d.client.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := d.client.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.directory != "" {
		// Servers decode this with decodeURIComponent semantics
		req.Header.Set(DirectoryHeader, url.PathEscape(d.directory))
	}

	start := time.Now()
	resp, err := d.client.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	metrics.RecordRequest(method, resp.StatusCode, time.Since(start))
	return resp, nil
}

// doJSON runs a bounded request and decodes a JSON response into out when
// out is non-nil
func (d *DirectoryClient) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, d.client.requestTimeout)
	defer cancel()

	resp, err := d.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// CreateSession creates a new session and returns its ID
func (d *DirectoryClient) CreateSession(ctx context.Context, title string) (string, error) {
	var body map[string]string
	if title != "" {
		body = map[string]string{"title": title}
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := d.doJSON(ctx, "create session", http.MethodPost, "/session", body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// ListSessions returns the sessions of this directory
func (d *DirectoryClient) ListSessions(ctx context.Context) ([]event.SessionInfo, error) {
	var sessions []event.SessionInfo
	if err := d.doJSON(ctx, "list sessions", http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SendMessageAsync sends a message asynchronously (returns immediately, events via SSE)
// model format: "providerID/modelID" (e.g., "anthropic/claude-sonnet-4-5")
// variant maps to the reasoning variant ("low", "medium", "high", or "" for none)
func (d *DirectoryClient) SendMessageAsync(ctx context.Context, sessionID, message, model, variant string) error {
	body := map[string]any{
		"parts": []map[string]string{
			{"type": "text", "text": message},
		},
	}

	if model != "" {
		parts := strings.SplitN(model, "/", 2)
		if len(parts) == 2 {
			body["model"] = map[string]string{
				"providerID": parts[0],
				"modelID":    parts[1],
			}
		}
	}

	if variant != "" && variant != "off" {
		body["variant"] = variant
	}

	path := fmt.Sprintf("/session/%s/prompt_async", url.PathEscape(sessionID))
	return d.doJSON(ctx, "send message async", http.MethodPost, path, body, nil)
}

// AbortSession stops the current operation of a session
func (d *DirectoryClient) AbortSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/session/%s/abort", url.PathEscape(sessionID))
	return d.doJSON(ctx, "abort session", http.MethodPost, path, nil, nil)
}
