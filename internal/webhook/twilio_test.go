package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/channel"
)

type fakeIngestor struct {
	accepted []channel.InboundMessage
}

func (f *fakeIngestor) Accept(_ context.Context, msg channel.InboundMessage) {
	f.accepted = append(f.accepted, msg)
}

func twilioSign(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var payload strings.Builder
	payload.WriteString(requestURL)
	for _, key := range keys {
		for _, value := range form[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postTwilio(t *testing.T, h *TwilioHandler, form url.Values, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Handle(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestTwilioHandleSMS(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewTwilioHandler(nil, ingestor, "token", "https://bot.example.com")

	form := url.Values{}
	form.Set("From", "+33612345678")
	form.Set("To", "+33700000001")
	form.Set("Body", "bonjour")
	form.Set("MessageSid", "SM123")
	signature := twilioSign("token", "https://bot.example.com/webhooks/twilio", form)

	rec := postTwilio(t, h, form, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response>") {
		t.Fatalf("expected empty TwiML, got %q", rec.Body.String())
	}
	if len(ingestor.accepted) != 1 {
		t.Fatalf("accepted %d messages, want 1", len(ingestor.accepted))
	}
	msg := ingestor.accepted[0]
	if msg.Kind != channel.KindSMS {
		t.Fatalf("kind = %s, want sms", msg.Kind)
	}
	if msg.SenderID != "+33612345678" || msg.RoutingHint != "+33700000001" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	if msg.Text != "bonjour" || msg.ProviderMessageID != "SM123" {
		t.Fatalf("unexpected payload: %+v", msg)
	}
}

func TestTwilioHandleWhatsAppPrefix(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewTwilioHandler(nil, ingestor, "", "")

	form := url.Values{}
	form.Set("From", "whatsapp:+33612345678")
	form.Set("To", "whatsapp:+33700000001")
	form.Set("Body", "bonjour")
	form.Set("MessageSid", "SM124")
	form.Set("ProfileName", "Alice")

	rec := postTwilio(t, h, form, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	msg := ingestor.accepted[0]
	if msg.Kind != channel.KindWhatsApp {
		t.Fatalf("kind = %s, want whatsapp", msg.Kind)
	}
	if msg.SenderID != "+33612345678" {
		t.Fatalf("sender should drop the whatsapp prefix, got %q", msg.SenderID)
	}
	if msg.RoutingHint != "whatsapp:+33700000001" {
		t.Fatalf("routing hint = %q", msg.RoutingHint)
	}
	if msg.SenderName != "Alice" {
		t.Fatalf("sender name = %q", msg.SenderName)
	}
}

func TestTwilioRejectsBadSignature(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewTwilioHandler(nil, ingestor, "token", "https://bot.example.com")

	form := url.Values{}
	form.Set("From", "+336")
	form.Set("To", "+337")
	form.Set("Body", "bonjour")

	rec := postTwilio(t, h, form, "not-a-signature")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(ingestor.accepted) != 0 {
		t.Fatal("forged requests must not reach the pipeline")
	}
}

func TestTwilioRejectsMissingSignature(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewTwilioHandler(nil, ingestor, "token", "https://bot.example.com")

	form := url.Values{}
	form.Set("Body", "bonjour")

	rec := postTwilio(t, h, form, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
