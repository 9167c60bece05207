// Package delivery sends replies through the channel-appropriate transport,
// enforcing the provider session window and falling back to SMS when a
// session-based channel rejects delivery.
package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
	"github.com/comptoirhq/comptoir/internal/contact"
)

// Provider rejection codes treated as a closed session window. 63016 is the
// telephony gateway's out-of-window code, 131047 is the WhatsApp Cloud
// re-engagement code.
var sessionExpiredCodes = map[string]struct{}{
	"63016":           {},
	"131047":          {},
	"session_expired": {},
}

const (
	renewalNotice = "\n\n(Notre fenêtre de conversation arrive à expiration : répondez à ce message pour la prolonger.)"
	reopenNotice  = " Répondez sur WhatsApp pour rouvrir la conversation."
	truncateAt    = 140
)

// InboundClock reports the contact's last inbound message time per channel.
// The session window keys off inbound traffic, not dialogue activity.
type InboundClock interface {
	LastInboundAt(ctx context.Context, contactID string, kind channel.Kind) (time.Time, error)
}

// Recorder is the delivery audit surface (see Log).
type Recorder interface {
	Create(ctx context.Context, contactID string, kind channel.Kind, destination, body string) string
	MarkResult(ctx context.Context, id string, status channel.DeliveryStatus, attempts int, providerError string)
}

// Service is the outbound delivery layer.
type Service struct {
	registry    *channel.Registry
	clock       InboundClock
	recorder    Recorder
	logger      *slog.Logger
	window      time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewService creates the delivery layer. window is the provider session
// window (24h default); maxAttempts caps total attempts including the
// fallback (2 default).
func NewService(log *slog.Logger, registry *channel.Registry, clock InboundClock, recorder Recorder, window time.Duration, maxAttempts int) *Service {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &Service{
		registry:    registry,
		clock:       clock,
		recorder:    recorder,
		logger:      log.With(slog.String("service", "delivery")),
		window:      window,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Deliver sends the outbound message to the contact. For session-windowed
// channels, a message outside the window is still attempted best-effort with
// a renewal notice; an explicit session-expired rejection triggers one
// fallback attempt over SMS with a truncated body. Attempts never exceed the
// configured cap: redelivery loops against the provider are worse than a
// dropped notification.
func (s *Service) Deliver(ctx context.Context, out channel.OutboundMessage, recipient contact.Contact) (channel.DeliveryStatus, error) {
	var logID string
	if s.recorder != nil {
		logID = s.recorder.Create(ctx, recipient.ID, out.Kind, out.Destination, out.Body)
	}

	body := out.Body
	if out.Kind.SessionWindowed() && !s.windowOpen(ctx, recipient.ID, out.Kind) {
		body += renewalNotice
	}

	attempts := 1
	out.Attempt = attempts
	result, err := s.registry.Send(ctx, channel.OutboundMessage{
		Kind:        out.Kind,
		Source:      out.Source,
		Destination: out.Destination,
		Body:        body,
		Attempt:     attempts,
	})
	if err == nil && result.Success {
		if s.recorder != nil {
			s.recorder.MarkResult(ctx, logID, channel.DeliverySent, attempts, "")
		}
		return channel.DeliverySent, nil
	}

	providerCode := result.ProviderErrorCode
	s.logger.Warn("primary delivery failed",
		slog.String("channel", out.Kind.String()),
		slog.String("destination", out.Destination),
		slog.String("provider_code", providerCode),
		slog.Any("error", err))

	fallbackKind := out.Kind.FallbackKind()
	if fallbackKind == "" || attempts >= s.maxAttempts || !isSessionExpired(providerCode) {
		if s.recorder != nil {
			s.recorder.MarkResult(ctx, logID, channel.DeliveryFailed, attempts, providerCode)
		}
		return channel.DeliveryFailed, err
	}

	// One fallback attempt over SMS, truncated, telling the customer how to
	// reopen the session.
	attempts++
	fallbackBody := truncate(out.Body, truncateAt) + reopenNotice
	destination := recipient.Phone
	if strings.TrimSpace(destination) == "" {
		destination = out.Destination
	}
	fallbackResult, fallbackErr := s.registry.Send(ctx, channel.OutboundMessage{
		Kind:        fallbackKind,
		Source:      out.Source,
		Destination: destination,
		Body:        fallbackBody,
		Attempt:     attempts,
	})
	if fallbackErr == nil && fallbackResult.Success {
		if s.recorder != nil {
			s.recorder.MarkResult(ctx, logID, channel.DeliverySentFallback, attempts, providerCode)
		}
		return channel.DeliverySentFallback, nil
	}

	s.logger.Error("fallback delivery failed",
		slog.String("channel", fallbackKind.String()),
		slog.String("destination", destination),
		slog.String("provider_code", fallbackResult.ProviderErrorCode),
		slog.Any("error", fallbackErr))
	if s.recorder != nil {
		s.recorder.MarkResult(ctx, logID, channel.DeliveryFailed, attempts, fallbackResult.ProviderErrorCode)
	}
	return channel.DeliveryFailed, fallbackErr
}

// windowOpen reports whether the contact wrote on this channel within the
// session window. A missing timestamp counts as closed.
func (s *Service) windowOpen(ctx context.Context, contactID string, kind channel.Kind) bool {
	if s.clock == nil {
		return true
	}
	last, err := s.clock.LastInboundAt(ctx, contactID, kind)
	if err != nil {
		s.logger.Warn("last inbound lookup failed", slog.Any("error", err))
		return true
	}
	if last.IsZero() {
		return false
	}
	return s.now().Sub(last) <= s.window
}

func isSessionExpired(code string) bool {
	_, ok := sessionExpiredCodes[strings.TrimSpace(strings.ToLower(code))]
	return ok
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
