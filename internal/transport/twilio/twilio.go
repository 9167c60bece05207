// Package twilio sends SMS and gateway WhatsApp messages through the Twilio
// Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Client wraps the Twilio REST API for the two channel kinds it serves.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Twilio API client.
func NewClient(log *slog.Logger, accountSID, authToken, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("transport", "twilio")),
	}
}

// SMSTransport returns the transport for plain SMS.
func (c *Client) SMSTransport() channel.Transport {
	return &transport{client: c, kind: channel.KindSMS}
}

// WhatsAppTransport returns the transport for gateway WhatsApp. Addresses
// are prefixed with "whatsapp:" per the provider convention.
func (c *Client) WhatsAppTransport() channel.Transport {
	return &transport{client: c, kind: channel.KindWhatsApp}
}

type transport struct {
	client *Client
	kind   channel.Kind
}

func (t *transport) Kind() channel.Kind {
	return t.kind
}

func (t *transport) Send(ctx context.Context, msg channel.OutboundMessage) (channel.SendResult, error) {
	return t.client.send(ctx, t.kind, msg)
}

type apiResponse struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

func (c *Client) send(ctx context.Context, kind channel.Kind, msg channel.OutboundMessage) (channel.SendResult, error) {
	form := url.Values{}
	form.Set("From", address(kind, msg.Source))
	form.Set("To", address(kind, msg.Destination))
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("call twilio: %w", err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return channel.SendResult{}, fmt.Errorf("decode twilio response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.ErrorCode == nil {
		return channel.SendResult{Success: true, ProviderMessageID: parsed.SID}, nil
	}

	code := parsed.Code
	if parsed.ErrorCode != nil {
		code = *parsed.ErrorCode
	}
	c.logger.Warn("twilio send rejected",
		slog.String("channel", kind.String()),
		slog.Int("status", resp.StatusCode),
		slog.Int("code", code),
		slog.String("message", parsed.Message))
	return channel.SendResult{
		Success:           false,
		ProviderErrorCode: strconv.Itoa(code),
	}, nil
}

// address applies the provider's channel prefix to a phone number.
func address(kind channel.Kind, number string) string {
	number = strings.TrimSpace(number)
	if kind == channel.KindWhatsApp && !strings.HasPrefix(number, "whatsapp:") {
		return "whatsapp:" + number
	}
	return number
}
