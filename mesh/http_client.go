package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for input fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 50 MB to prevent OOM.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchInput behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	session     string
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// WithSessionCookie sends a "session" cookie, as puzzle input endpoints
// require.
func WithSessionCookie(value string) FetchOption {
	return func(c *fetchConfig) {
		c.session = value
	}
}

// statusError is a non-200 response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// FetchInput downloads a scanner report. Network errors and 5xx responses
// are retried with exponential backoff; other statuses fail immediately.
func FetchInput(ctx context.Context, url string, opts ...FetchOption) (string, error) {
	if url == "" {
		return "", fmt.Errorf("fetch input: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.baseBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempts := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		body, err := doFetch(ctx, client, url, cfg.session)
		var se *statusError
		if errors.As(err, &se) && se.code < 500 {
			return nil, backoff.Permanent(err)
		}
		return body, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.maxRetries)),
	)
	if err != nil {
		if attempts > 1 {
			return "", fmt.Errorf("fetch input: %d attempts failed: %w", attempts, err)
		}
		return "", fmt.Errorf("fetch input: %w", err)
	}
	return string(body), nil
}

// doFetch performs a single HTTP GET and returns the response body bytes.
func doFetch(ctx context.Context, client *http.Client, url, session string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: session})
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}
