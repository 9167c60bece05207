// Package document asks the external document generator for quote and
// invoice PDFs. Requests are fire-and-forget; results arrive out of band and
// are not awaited by the pipeline.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client posts document generation requests.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a document generator client. An empty baseURL disables
// requests (calls become logged no-ops).
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
		logger:  log.With(slog.String("service", "document")),
	}
}

// RequestQuote asks for a quote PDF referencing the order.
func (c *Client) RequestQuote(ctx context.Context, tenantID, orderID string) {
	c.request(ctx, "quote", tenantID, orderID)
}

// RequestInvoice asks for an invoice PDF referencing the order.
func (c *Client) RequestInvoice(ctx context.Context, tenantID, orderID string) {
	c.request(ctx, "invoice", tenantID, orderID)
}

func (c *Client) request(ctx context.Context, kind, tenantID, orderID string) {
	if c.baseURL == "" {
		c.logger.Debug("document generator not configured, skipping request",
			slog.String("kind", kind), slog.String("order_id", orderID))
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"kind":      kind,
		"tenant_id": tenantID,
		"order_id":  orderID,
	})
	// Detached from the request context: the caller does not await the result.
	go func() {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.http.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("document request failed",
				slog.String("kind", kind),
				slog.String("order_id", orderID),
				slog.Any("error", err))
			return
		}
		resp.Body.Close()
	}()
}
