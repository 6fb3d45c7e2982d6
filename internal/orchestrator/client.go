package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// APIError is returned for any non-200 response from the orchestration service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d and %s", e.StatusCode, e.Body)
}

// Client talks to the orchestration service for a single application.
// Construct one per session; it holds no global state.
type Client struct {
	baseURL    string
	appID      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for appID rooted at baseURL (e.g. "http://localhost:8080").
func New(baseURL, appID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.SetOutput(io.Discard)
	}
	return c
}

// AppID returns the application this client is bound to.
func (c *Client) AppID() string {
	return c.appID
}

func (c *Client) getJSON(ctx context.Context, path string, headers map[string]string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, headers, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, headers map[string]string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, headers, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("orchestrator request")

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
