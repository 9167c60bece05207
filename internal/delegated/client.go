// Package delegated calls the external response generator used when a
// channel account runs in delegated mode.
package delegated

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
)

// ErrEmptyReply is returned when the generator answers successfully but with
// no usable text; the caller falls back to the rule engine.
var ErrEmptyReply = errors.New("delegated generator returned empty reply")

// Request is the payload sent to the generator.
type Request struct {
	ContactID string            `json:"contact_id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Response is the generator's answer.
type Response struct {
	Success    bool    `json:"success"`
	ReplyText  string  `json:"reply_text"`
	Confidence float64 `json:"confidence"`
}

// Client is an HTTP client for the delegated response generator. All calls
// are bounded by the configured timeout.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a generator client. An empty baseURL yields a client
// whose Generate always fails fast, which the coordinator treats as
// rule-mode-only.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("service", "delegated")),
	}
}

// Configured reports whether a generator endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Generate asks the external generator for a reply.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	if !c.Configured() {
		return Response{}, errors.New("delegated generator not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call delegated generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("delegated generator status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("decode delegated response: %w", err)
	}
	if !parsed.Success {
		return Response{}, errors.New("delegated generator reported failure")
	}
	if strings.TrimSpace(parsed.ReplyText) == "" {
		return Response{}, ErrEmptyReply
	}
	return parsed, nil
}
