package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 2 * time.Minute

// Client talks to a running recorder service.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// APIError is a non-2xx response from the recorder.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recorder returned %d: %s", e.StatusCode, e.Message)
}

// Response is the union of the recorder's JSON response bodies.
type Response struct {
	Message       string          `json:"message"`
	Recording     bool            `json:"recording,omitempty"`
	LastKeepAlive int64           `json:"lastKeepAlive,omitempty"`
	State         string          `json:"state,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	Basename      string          `json:"basename,omitempty"`
	PendingMerge  string          `json:"pendingMerge,omitempty"`
	Output        string          `json:"output,omitempty"`
	Merged        bool            `json:"merged,omitempty"`
	Workers       json.RawMessage `json:"workers,omitempty"`
}

func New(baseURL string, token string) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid recorder url %q: %w", baseURL, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid recorder url %q: missing host", baseURL)
	}
	return &Client{
		baseURL: parsed,
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}, nil
}

func (c *Client) Status(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodGet, "/status")
}

func (c *Client) Start(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodPost, "/start")
}

func (c *Client) Stop(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodPost, "/stop")
}

func (c *Client) KeepAlive(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodPost, "/keep_alive")
}

func (c *Client) Merge(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodPost, "/merge")
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return &u
}

func (c *Client) do(ctx context.Context, method string, path string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path).String(), nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("recorder request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read recorder response: %w", err)
	}

	var out Response
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(out.Message)
		if decodeErr != nil || message == "" {
			message = strings.TrimSpace(string(body))
		}
		return Response{}, &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("failed to decode recorder response: %w", decodeErr)
	}
	return out, nil
}
