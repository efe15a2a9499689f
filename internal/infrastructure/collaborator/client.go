// Package collaborator implements the engine's outbound ports (directory,
// invoicing, ledger, notification) as JSON-over-HTTP clients, plus
// in-memory stand-ins for local runs.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 1 << 20

// IdempotencyHeader carries the caller's idempotency key
const IdempotencyHeader = "Idempotency-Key"

var (
	// ErrUnavailable is a transient failure (timeout, connection error, 5xx, 429)
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrRejected is a permanent 4xx answer; retrying the same request will not help
	ErrRejected = errors.New("collaborator rejected request")

	// ErrNotFound is a 404 answer
	ErrNotFound = errors.New("collaborator resource not found")
)

// ClientConfig holds the connection settings of one collaborator
type ClientConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxRetries      int
	RetryMaxElapsed time.Duration
	// InitialInterval of the exponential backoff; zero uses the library default
	InitialInterval time.Duration
}

// Client is a small JSON client with bounded exponential retry on
// transient failures. Every retry of a request reuses its idempotency key.
type Client struct {
	name       string
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new client for the named collaborator
func NewClient(name string, config ClientConfig, logger *zap.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", name)
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Client{
		name:   name,
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With(zap.String("collaborator", name)),
	}, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.config.InitialInterval > 0 {
		b.InitialInterval = c.config.InitialInterval
	}
	if c.config.RetryMaxElapsed > 0 {
		b.MaxElapsedTime = c.config.RetryMaxElapsed
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx)
}

// do sends the request and decodes a JSON answer into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: failed to marshal request: %w", c.name, err))
		}
	}
	url := strings.TrimRight(c.config.BaseURL, "/") + path

	attempt := 0
	op := func() error {
		attempt++
		err := c.once(ctx, method, url, idempotencyKey, payload, out)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Collaborator call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, c.backOff(ctx), notify)
}

func (c *Client) once(ctx context.Context, method, url, idempotencyKey string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: failed to read response: %v", ErrUnavailable, c.name, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.name, url)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: HTTP %d", ErrUnavailable, c.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrRejected, c.name, resp.StatusCode, truncate(respBody, 200))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
