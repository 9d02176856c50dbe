// Package twentyi fulfils ACME DNS-01 challenges using the 20i reseller REST API.
package twentyi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"gitlab.bluewillows.net/root/dns20i/internal/metrics"
	"gitlab.bluewillows.net/root/dns20i/pkg/httputil"
	"gitlab.bluewillows.net/root/dns20i/pkg/provider"
)

const (
	// DefaultAPIEndpoint is the base URL of the 20i REST API.
	DefaultAPIEndpoint = "https://api.20i.com"

	// ProviderName identifies 20i in wrapped errors and logs.
	ProviderName = "20i"

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 512
)

// API is the REST capability the resolver and reconciler need.
// Both methods fail with *StatusError on a non-2xx response.
type API interface {
	// Get fetches path and decodes the JSON response into out (if non-nil).
	Get(ctx context.Context, path string, out any) error

	// Post sends body as JSON to path and decodes the response into out (if non-nil).
	Post(ctx context.Context, path string, body, out any) error
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status code %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 401 to provider.ErrUnauthorized.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return provider.ErrUnauthorized
	}
	return nil
}

// IsNotFoundClass reports whether err is a client error that means "this
// name is not one of your zones": 404 and other 4xx responses, except 401
// (bad credentials) and 429 (rate limited), which are real failures.
func IsNotFoundClass(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

// Client is a 20i REST API client.
type Client struct {
	apiEndpoint string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The caller is then responsible
// for authentication.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.apiEndpoint = endpoint
		}
	}
}

// WithTimeout sets the HTTP timeout used when the client builds its own HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a new 20i API client authenticating with tokens from ts.
func NewClient(ts oauth2.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		timeout:     httputil.DefaultTimeout,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{
			Timeout:     c.timeout,
			TokenSource: ts,
			Logger:      c.logger,
		})
	}

	return c
}

// Get implements API.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

// Post implements API.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

// doRequest performs an HTTP request to the 20i API.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	reqURL := c.apiEndpoint + path

	c.logger.Debug("making API request",
		slog.String("method", method),
		slog.String("path", path),
	)

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(respBody)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response JSON: %w", err)
	}

	return nil
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)
