// Package webhook exposes one HTTP ingress endpoint per external channel.
// Handlers verify provider authenticity, normalize the native payload into a
// channel.InboundMessage, hand it to the pipeline, and acknowledge with a
// 2xx regardless of downstream outcome so providers never enter a
// redelivery storm.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Ingestor is the pipeline surface the webhook handlers call.
type Ingestor interface {
	Accept(ctx context.Context, msg channel.InboundMessage)
}

// TwilioHandler receives telephony-gateway callbacks carrying both plain SMS
// and gateway WhatsApp messages.
type TwilioHandler struct {
	pipeline  Ingestor
	logger    *slog.Logger
	authToken string
	baseURL   string
}

// NewTwilioHandler creates the handler. baseURL is the public URL of this
// host, needed to reconstruct the signed request URL.
func NewTwilioHandler(log *slog.Logger, pipeline Ingestor, authToken, baseURL string) *TwilioHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TwilioHandler{
		pipeline:  pipeline,
		logger:    log.With(slog.String("handler", "twilio_webhook")),
		authToken: strings.TrimSpace(authToken),
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// Register registers webhook routes.
func (h *TwilioHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/twilio", h.Handle)
}

// Handle processes one inbound message callback.
func (h *TwilioHandler) Handle(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form payload")
	}
	if h.authToken != "" {
		signature := c.Request().Header.Get("X-Twilio-Signature")
		if !h.validSignature(c, signature, params) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid twilio signature")
		}
	}

	from := strings.TrimSpace(params.Get("From"))
	to := strings.TrimSpace(params.Get("To"))
	body := params.Get("Body")
	messageSID := strings.TrimSpace(params.Get("MessageSid"))

	kind := channel.KindSMS
	if strings.HasPrefix(from, "whatsapp:") || strings.HasPrefix(to, "whatsapp:") {
		kind = channel.KindWhatsApp
	}

	h.pipeline.Accept(c.Request().Context(), channel.InboundMessage{
		Kind:              kind,
		RoutingHint:       to,
		SenderID:          strings.TrimPrefix(from, "whatsapp:"),
		SenderName:        strings.TrimSpace(params.Get("ProfileName")),
		Text:              body,
		ProviderMessageID: messageSID,
		ReceivedAt:        time.Now(),
	})

	// Empty TwiML: acknowledge without instructing the gateway to reply.
	return c.XMLBlob(http.StatusOK, []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}

// validSignature checks X-Twilio-Signature: base64 HMAC-SHA1 over the full
// request URL concatenated with the sorted form parameters.
func (h *TwilioHandler) validSignature(c echo.Context, signature string, params map[string][]string) bool {
	if signature == "" {
		return false
	}
	requestURL := h.baseURL + c.Request().URL.RequestURI()
	if h.baseURL == "" {
		scheme := c.Scheme()
		requestURL = scheme + "://" + c.Request().Host + c.Request().URL.RequestURI()
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	mac := hmac.New(sha1.New, []byte(h.authToken))
	mac.Write([]byte(payload.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
