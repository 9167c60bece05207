// Package whatsappcloud sends messages through the WhatsApp Business Cloud
// API (Graph API).
package whatsappcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Transport sends free-form text messages from a business phone number.
type Transport struct {
	accessToken string
	baseURL     string
	http        *http.Client
	logger      *slog.Logger
}

// New creates the WhatsApp Cloud transport.
func New(log *slog.Logger, accessToken, baseURL string, timeout time.Duration) *Transport {
	if log == nil {
		log = slog.Default()
	}
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Transport{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("transport", "whatsapp_cloud")),
	}
}

// Kind implements channel.Transport.
func (t *Transport) Kind() channel.Kind {
	return channel.KindWhatsAppCloud
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts a text message. msg.Source is the business phone number id the
// Graph API path requires.
func (t *Transport) Send(ctx context.Context, msg channel.OutboundMessage) (channel.SendResult, error) {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimSpace(msg.Destination),
		Type:             "text",
		Text:             textBody{Body: msg.Body},
	})
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("marshal whatsapp message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", t.baseURL, strings.TrimSpace(msg.Source))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("call whatsapp cloud: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return channel.SendResult{}, fmt.Errorf("decode whatsapp response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.Error == nil {
		id := ""
		if len(parsed.Messages) > 0 {
			id = parsed.Messages[0].ID
		}
		return channel.SendResult{Success: true, ProviderMessageID: id}, nil
	}

	code := 0
	message := ""
	if parsed.Error != nil {
		code = parsed.Error.Code
		message = parsed.Error.Message
	}
	t.logger.Warn("whatsapp cloud send rejected",
		slog.Int("status", resp.StatusCode),
		slog.Int("code", code),
		slog.String("message", message))
	return channel.SendResult{
		Success:           false,
		ProviderErrorCode: strconv.Itoa(code),
	}, nil
}
