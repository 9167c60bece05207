package webhook

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// WhatsAppCloudHandler receives WhatsApp Business Cloud API event
// subscriptions.
type WhatsAppCloudHandler struct {
	pipeline    Ingestor
	logger      *slog.Logger
	verifyToken string
}

// NewWhatsAppCloudHandler creates the handler.
func NewWhatsAppCloudHandler(log *slog.Logger, pipeline Ingestor, verifyToken string) *WhatsAppCloudHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WhatsAppCloudHandler{
		pipeline:    pipeline,
		logger:      log.With(slog.String("handler", "whatsapp_cloud_webhook")),
		verifyToken: strings.TrimSpace(verifyToken),
	}
}

// Register registers webhook routes.
func (h *WhatsAppCloudHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/whatsapp", h.HandleVerify)
	e.POST("/webhooks/whatsapp", h.Handle)
}

// HandleVerify answers the platform's subscription handshake.
func (h *WhatsAppCloudHandler) HandleVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

type cloudPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID      string `json:"phone_number_id"`
					DisplayPhoneNumber string `json:"display_phone_number"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Handle processes an event batch. Non-text events (statuses, media) are
// ignored; every batch is acknowledged with 200.
func (h *WhatsAppCloudHandler) Handle(c echo.Context) error {
	var payload cloudPayload
	if err := c.Bind(&payload); err != nil {
		h.logger.Warn("malformed whatsapp cloud payload", slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			senderName := ""
			if len(value.Contacts) > 0 {
				senderName = value.Contacts[0].Profile.Name
			}
			for _, msg := range value.Messages {
				if msg.Type != "" && msg.Type != "text" {
					continue
				}
				h.pipeline.Accept(c.Request().Context(), channel.InboundMessage{
					Kind:              channel.KindWhatsAppCloud,
					RoutingHint:       value.Metadata.PhoneNumberID,
					SenderID:          msg.From,
					SenderName:        senderName,
					Text:              msg.Text.Body,
					ProviderMessageID: msg.ID,
					ReceivedAt:        parseUnixTimestamp(msg.Timestamp),
				})
			}
		}
	}
	return c.NoContent(http.StatusOK)
}

func parseUnixTimestamp(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Now()
	}
	return time.Unix(seconds, 0)
}
