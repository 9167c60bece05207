package channel

import (
	"context"
	"errors"
	"testing"
)

type stubTransport struct {
	kind Kind
	sent []OutboundMessage
}

func (s *stubTransport) Kind() Kind { return s.kind }

func (s *stubTransport) Send(_ context.Context, msg OutboundMessage) (SendResult, error) {
	s.sent = append(s.sent, msg)
	return SendResult{Success: true}, nil
}

func TestRegistryRegisterAndSend(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	sms := &stubTransport{kind: KindSMS}
	if err := registry.Register(sms); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := registry.Send(context.Background(), OutboundMessage{Kind: KindSMS, Destination: "+336", Body: "hi"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if len(sms.sent) != 1 || sms.sent[0].Body != "hi" {
		t.Fatalf("unexpected sent messages: %+v", sms.sent)
	}
}

func TestRegistryRejectsDuplicateAndUnknown(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(&stubTransport{kind: KindSMS}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.Register(&stubTransport{kind: KindSMS}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := registry.Register(&stubTransport{kind: Kind("carrier-pigeon")}); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestRegistrySendWithoutTransport(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	_, err := registry.Send(context.Background(), OutboundMessage{Kind: KindMessenger})
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}
