package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/channel"
)

const messengerMaxBodyBytes int64 = 1 << 20 // 1 MiB

// MessengerHandler receives Messenger-platform webhook events.
type MessengerHandler struct {
	pipeline    Ingestor
	logger      *slog.Logger
	appSecret   string
	verifyToken string
}

// NewMessengerHandler creates the handler.
func NewMessengerHandler(log *slog.Logger, pipeline Ingestor, appSecret, verifyToken string) *MessengerHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessengerHandler{
		pipeline:    pipeline,
		logger:      log.With(slog.String("handler", "messenger_webhook")),
		appSecret:   strings.TrimSpace(appSecret),
		verifyToken: strings.TrimSpace(verifyToken),
	}
}

// Register registers webhook routes.
func (h *MessengerHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/messenger", h.HandleVerify)
	e.POST("/webhooks/messenger", h.Handle)
}

// HandleVerify answers the platform's subscription handshake.
func (h *MessengerHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

type messengerPayload struct {
	Entry []struct {
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Timestamp int64 `json:"timestamp"`
			Message   struct {
				MID    string `json:"mid"`
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// Handle processes an event batch. Echo events (the page's own outbound
// messages mirrored back) are skipped.
func (h *MessengerHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, messengerMaxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	if h.appSecret != "" {
		signature := c.Request().Header.Get("X-Hub-Signature-256")
		if !h.validSignature(body, signature) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid messenger signature")
		}
	}

	var payload messengerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("malformed messenger payload", slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			if event.Message.IsEcho || strings.TrimSpace(event.Message.Text) == "" {
				continue
			}
			receivedAt := time.Now()
			if event.Timestamp > 0 {
				receivedAt = time.UnixMilli(event.Timestamp)
			}
			h.pipeline.Accept(c.Request().Context(), channel.InboundMessage{
				Kind:              channel.KindMessenger,
				RoutingHint:       event.Recipient.ID,
				SenderID:          event.Sender.ID,
				Text:              event.Message.Text,
				ProviderMessageID: event.Message.MID,
				ReceivedAt:        receivedAt,
			})
		}
	}
	return c.NoContent(http.StatusOK)
}

func (h *MessengerHandler) validSignature(body []byte, header string) bool {
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
