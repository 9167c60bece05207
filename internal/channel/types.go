// Package channel defines the normalized message types shared by every
// messaging channel, and the transport registry used for outbound delivery.
// Webhook adapters produce InboundMessage values; the rest of the pipeline
// never sees provider-specific payload fields.
package channel

import (
	"strings"
	"time"
)

// Kind identifies a messaging channel (e.g. "sms", "whatsapp").
type Kind string

const (
	KindSMS           Kind = "sms"
	KindWhatsApp      Kind = "whatsapp"
	KindWhatsAppCloud Kind = "whatsapp_cloud"
	KindMessenger     Kind = "messenger"
)

// String returns the channel kind as a plain string.
func (k Kind) String() string {
	return string(k)
}

// SessionWindowed reports whether the channel enforces a provider session
// window after which free-form outbound messages are rejected.
func (k Kind) SessionWindowed() bool {
	switch k {
	case KindWhatsApp, KindWhatsAppCloud:
		return true
	default:
		return false
	}
}

// FallbackKind returns the transport used when the primary channel rejects
// delivery for an expired session, or "" when no fallback applies.
func (k Kind) FallbackKind() Kind {
	switch k {
	case KindWhatsApp, KindWhatsAppCloud:
		return KindSMS
	default:
		return ""
	}
}

// ParseKind normalizes a raw channel kind string.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSMS:
		return KindSMS, true
	case KindWhatsApp:
		return KindWhatsApp, true
	case KindWhatsAppCloud:
		return KindWhatsAppCloud, true
	case KindMessenger:
		return KindMessenger, true
	default:
		return "", false
	}
}

// InboundMessage is a message received from an external channel, normalized
// by the channel's webhook adapter. It is ephemeral and never persisted as-is.
type InboundMessage struct {
	Kind Kind
	// RoutingHint is the provider-side destination identifier (the "to"
	// number, page id, or sub-account SID) used to resolve the owning
	// channel account.
	RoutingHint string
	// SenderID is the channel-specific identifier of the human sender.
	SenderID string
	// SenderName is the provider-supplied display name, when available.
	SenderName string
	Text       string
	// ProviderMessageID deduplicates provider redeliveries of the same event.
	ProviderMessageID string
	ReceivedAt        time.Time
}

// OutboundMessage pairs a delivery destination with reply text. Source is
// the sending identity the provider API requires (from-number, business
// phone number id, or page id), taken from the channel account that owns the
// conversation.
type OutboundMessage struct {
	Kind        Kind
	Source      string
	Destination string
	Body        string
	Attempt     int
}

// SendResult reports the provider outcome of a single send attempt.
type SendResult struct {
	Success bool
	// ProviderErrorCode carries the provider's machine-readable failure code
	// (e.g. a session-expired rejection) when Success is false.
	ProviderErrorCode string
	ProviderMessageID string
}

// DeliveryStatus classifies the final outcome of a delivery.
type DeliveryStatus string

const (
	DeliverySent         DeliveryStatus = "sent"
	DeliverySentFallback DeliveryStatus = "sent_fallback"
	DeliveryFailed       DeliveryStatus = "failed"
)
