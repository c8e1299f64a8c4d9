package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/incident-radar/internal/pkg/ctxlog"
	"github.com/bissquit/incident-radar/internal/version"
	"golang.org/x/time/rate"
)

const (
	// RequestTimeout bounds every outbound vendor request.
	RequestTimeout = 30 * time.Second

	// MaxResponseSize caps a vendor response body (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// DefaultUserAgent identifies this client to vendors.
func DefaultUserAgent() string {
	return "incident-radar/" + version.Version
}

// ClientConfig configures a vendor HTTP client.
type ClientConfig struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
	Headers           map[string]string
}

// Client performs GET requests against one vendor base URL.
type Client struct {
	baseURL    string
	userAgent  string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a vendor client. The request timeout is fixed to RequestTimeout.
func NewClient(cfg ClientConfig) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: userAgent,
		headers:   cfg.Headers,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches path relative to the base URL and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	op := "GET " + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Classify(op, fmt.Errorf("wait for rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(KindConfiguration, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Classify(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ctxlog.FromContext(ctx).Debug("vendor request",
		"url", url,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(KindHTTPStatus, op, &HTTPStatusError{StatusCode: resp.StatusCode, URL: url})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, Classify(op, fmt.Errorf("read response body: %w", err))
	}
	if len(body) > MaxResponseSize {
		return nil, NewError(KindParse, op, fmt.Errorf("response exceeds %d bytes", MaxResponseSize))
	}

	return body, nil
}

// GetJSON fetches path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(KindParse, "decode "+path, err)
	}
	return nil
}
