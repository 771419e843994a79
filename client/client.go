// ABOUTME: Core HTTP client: construction, options, request plumbing.
// ABOUTME: Exponential-backoff retries on transport failures and 5xx.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults used when the corresponding option is not supplied.
const (
	DefaultBaseURL    = "https://lpvbvnqrozlwalnkvrgk.supabase.co/functions/v1/monkai-api"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultChunkSize  = 100

	// ExportTimeout is the floor for export requests: the server builds
	// the whole file before responding.
	ExportTimeout = 120 * time.Second
)

// tokenHeader carries the tracer token on every request.
const tokenHeader = "tracer_token"

// Client is a MonkAI collection API client. Safe for concurrent use.
type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	maxRetries int
	chunkSize  int
	backoff    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, e.g. a staging
// deployment or an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries sets how many times a retryable request is re-attempted
// after the initial try. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithChunkSize caps how many records or logs go into one upload request.
func WithChunkSize(n int) Option {
	return func(c *Client) { c.chunkSize = n }
}

// WithRetryBackoff sets the base delay before the first retry; each
// subsequent retry doubles it.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithHTTPClient substitutes the underlying HTTP client. Its Timeout
// should be left zero; the Client enforces deadlines via context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the collection API. The token is required;
// misconfiguration fails here rather than on the first upload.
func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("client: tracer token is required")
	}
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		chunkSize:  DefaultChunkSize,
		backoff:    500 * time.Millisecond,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		return nil, fmt.Errorf("client: timeout must be positive, got %s", c.timeout)
	}
	if c.maxRetries < 0 {
		return nil, fmt.Errorf("client: max retries must be >= 0, got %d", c.maxRetries)
	}
	if c.chunkSize < 1 {
		return nil, fmt.Errorf("client: chunk size must be >= 1, got %d", c.chunkSize)
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

// post sends payload to path and decodes the JSON response into out (which
// may be nil). Retries on network errors and 5xx with exponential backoff;
// the idempotency key is fixed across retries of one logical request.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	raw, err := c.postWithTimeout(ctx, path, payload, c.timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// postWithTimeout is post with an explicit deadline, returning the raw
// response body. Export endpoints use it directly with a longer timeout.
func (c *Client) postWithTimeout(ctx context.Context, path string, payload any, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", path, err)
	}
	idemKey := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.logger.Debug("retrying request",
				"path", path,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &NetworkError{Err: ctx.Err()}
			}
		}

		raw, err := c.doOnce(ctx, path, body, idemKey, timeout)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte, idemKey string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("X-Idempotency-Key", idemKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, classifyStatus(resp.StatusCode, raw)
}

// classifyStatus maps a non-2xx response to the error taxonomy.
func classifyStatus(status int, body []byte) error {
	msg := errorMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Message: msg}
	case status >= 400 && status < 500:
		return &ValidationError{StatusCode: status, Message: msg}
	default:
		return &ServerError{StatusCode: status, Message: msg}
	}
}

// errorMessage extracts a human-readable message from an error body,
// falling back to the raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		text = "no response body"
	}
	return text
}
