package channel

import (
	"testing"
)

func TestSessionWindowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want bool
	}{
		{KindSMS, false},
		{KindWhatsApp, true},
		{KindWhatsAppCloud, true},
		{KindMessenger, false},
	}
	for _, tt := range tests {
		if got := tt.kind.SessionWindowed(); got != tt.want {
			t.Fatalf("%s.SessionWindowed() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestFallbackKind(t *testing.T) {
	t.Parallel()

	if got := KindWhatsApp.FallbackKind(); got != KindSMS {
		t.Fatalf("whatsapp fallback = %s, want sms", got)
	}
	if got := KindWhatsAppCloud.FallbackKind(); got != KindSMS {
		t.Fatalf("whatsapp_cloud fallback = %s, want sms", got)
	}
	if got := KindSMS.FallbackKind(); got != "" {
		t.Fatalf("sms fallback = %q, want none", got)
	}
	if got := KindMessenger.FallbackKind(); got != "" {
		t.Fatalf("messenger fallback = %q, want none", got)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Kind
		ok   bool
	}{
		{"sms", KindSMS, true},
		{" WhatsApp ", KindWhatsApp, true},
		{"whatsapp_cloud", KindWhatsAppCloud, true},
		{"messenger", KindMessenger, true},
		{"telegram", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseKind(%q) = (%s, %v), want (%s, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
