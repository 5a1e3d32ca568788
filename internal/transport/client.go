// Package transport sends staging commands to the server of record over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"staging-cli/internal/model"
)

const (
	CommandPath     = "/command"
	RequestIDHeader = "X-Request-ID"
	DefaultTimeout  = 30 * time.Second

	maxErrorBody = 4 << 10
)

// ErrNotAllowed is returned when the server answers 401 or sets not_allowed.
var ErrNotAllowed = errors.New("not allowed")

// FailureError is a well-formed response with success unset or false.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string {
	if e.Message == "" {
		return "server reported failure"
	}
	return "server reported failure: " + e.Message
}

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Result is the response envelope of every command.
type Result struct {
	Success    *bool           `json:"success"`
	Message    string          `json:"message,omitempty"`
	NotAllowed bool            `json:"not_allowed,omitempty"`
	Contents   json.RawMessage `json:"contents,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	log        *slog.Logger
	newID      func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithHeader adds a header to every request (e.g. a session cookie obtained elsewhere).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		header:     http.Header{},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// SendCommand posts cmd and decodes the contents of a successful response into out (which
// may be nil). It never retries.
func (c *Client) SendCommand(ctx context.Context, cmd model.Command, out any) error {
	if c.baseURL == "" {
		return errors.New("no server configured")
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	reqID := c.newID()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CommandPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)

	log := c.log.With("request_id", reqID, "action", string(cmd.Action), "context", string(cmd.Context))
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("command failed", "error", err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	log.Debug("command response", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAllowed
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if res.NotAllowed {
		return ErrNotAllowed
	}
	if res.Success == nil || !*res.Success {
		return &FailureError{Message: res.Message}
	}
	if out == nil || len(res.Contents) == 0 || string(res.Contents) == "null" {
		return nil
	}
	if err := json.Unmarshal(res.Contents, out); err != nil {
		return fmt.Errorf("decode contents: %w", err)
	}
	return nil
}
