package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/comptoirhq/comptoir/internal/channel"
)

const messengerEventBody = `{
  "entry": [{
    "messaging": [{
      "sender": {"id": "user-123"},
      "recipient": {"id": "page-456"},
      "timestamp": 1767000000000,
      "message": {"mid": "mid.789", "text": "bonjour"}
    }]
  }]
}`

func signMessenger(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postMessenger(t *testing.T, h *MessengerHandler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messenger", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Handle(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestMessengerHandleMessage(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewMessengerHandler(nil, ingestor, "app-secret", "verify-me")

	rec := postMessenger(t, h, messengerEventBody, signMessenger("app-secret", messengerEventBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.accepted) != 1 {
		t.Fatalf("accepted %d messages, want 1", len(ingestor.accepted))
	}
	msg := ingestor.accepted[0]
	if msg.Kind != channel.KindMessenger {
		t.Fatalf("kind = %s", msg.Kind)
	}
	if msg.SenderID != "user-123" || msg.RoutingHint != "page-456" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	if msg.Text != "bonjour" || msg.ProviderMessageID != "mid.789" {
		t.Fatalf("unexpected payload: %+v", msg)
	}
}

func TestMessengerSkipsEchoEvents(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewMessengerHandler(nil, ingestor, "", "verify-me")

	body := `{"entry":[{"messaging":[{"sender":{"id":"page-456"},"recipient":{"id":"user-123"},"message":{"mid":"mid.1","text":"echo","is_echo":true}}]}]}`
	rec := postMessenger(t, h, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(ingestor.accepted) != 0 {
		t.Fatal("echo events must be skipped")
	}
}

func TestMessengerRejectsBadSignature(t *testing.T) {
	t.Parallel()

	ingestor := &fakeIngestor{}
	h := NewMessengerHandler(nil, ingestor, "app-secret", "verify-me")

	rec := postMessenger(t, h, messengerEventBody, "sha256=deadbeef")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(ingestor.accepted) != 0 {
		t.Fatal("forged requests must not reach the pipeline")
	}
}

func TestMessengerVerifyHandshake(t *testing.T) {
	t.Parallel()

	h := NewMessengerHandler(nil, &fakeIngestor{}, "", "verify-me")
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messenger?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=ch", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.HandleVerify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "ch" {
		t.Fatalf("challenge = %q", rec.Body.String())
	}
}

func TestMessengerAcksMalformedPayload(t *testing.T) {
	t.Parallel()

	h := NewMessengerHandler(nil, &fakeIngestor{}, "", "verify-me")
	rec := postMessenger(t, h, `{"entry": 12}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("malformed payloads must still be acknowledged, got %d", rec.Code)
	}
}
