// Package opencode provides the HTTP client for an opencode server.
//
// health.go - Server health checks
//
// This file contains:
// - Health probe against /global/health
// - WaitForHealth polling until the server responds

package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	healthCheckRetries = 30
	healthCheckDelay   = time.Second
)

// HealthStatus is the body returned by /global/health
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}

// Health checks if the server is responding
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/global/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, statusError("health check", resp)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("failed to decode health response: %w", err)
	}
	return status, nil
}

// WaitForHealth polls the health endpoint until the server is ready
func (c *Client) WaitForHealth(ctx context.Context) error {
	return c.waitForHealth(ctx, healthCheckRetries, healthCheckDelay)
}

func (c *Client) waitForHealth(ctx context.Context, retries int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < retries; i++ {
		status, err := c.Health(ctx)
		if err == nil && status.Healthy {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("server did not become healthy after %d retries: %w", retries, lastErr)
	}
	return fmt.Errorf("server did not become healthy after %d retries", retries)
}
