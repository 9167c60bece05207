// Package messenger sends messages through the Messenger Send API.
package messenger

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

// Transport sends text messages to a page-scoped user id.
type Transport struct {
	pageToken string
	baseURL   string
	http      *http.Client
	logger    *slog.Logger
}

// New creates the Messenger transport.
func New(log *slog.Logger, pageToken, baseURL string, timeout time.Duration) *Transport {
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
		pageToken: pageToken,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		logger:    log.With(slog.String("transport", "messenger")),
	}
}

// Kind implements channel.Transport.
func (t *Transport) Kind() channel.Kind {
	return channel.KindMessenger
}

type sendRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
	Tag       string    `json:"messaging_type"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts a RESPONSE-type message to the recipient.
func (t *Transport) Send(ctx context.Context, msg channel.OutboundMessage) (channel.SendResult, error) {
	payload, err := json.Marshal(sendRequest{
		Recipient: recipient{ID: strings.TrimSpace(msg.Destination)},
		Message:   message{Text: msg.Body},
		Tag:       "RESPONSE",
	})
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("marshal messenger message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", t.baseURL, t.pageToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("build messenger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("call messenger: %w", err)
	}
	defer resp.Body.Close()

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return channel.SendResult{}, fmt.Errorf("decode messenger response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.Error == nil {
		return channel.SendResult{Success: true, ProviderMessageID: parsed.MessageID}, nil
	}

	code := 0
	errMessage := ""
	if parsed.Error != nil {
		code = parsed.Error.Code
		errMessage = parsed.Error.Message
	}
	t.logger.Warn("messenger send rejected",
		slog.Int("status", resp.StatusCode),
		slog.Int("code", code),
		slog.String("message", errMessage))
	return channel.SendResult{
		Success:           false,
		ProviderErrorCode: strconv.Itoa(code),
	}, nil
}
