// Package pipeline orchestrates inbound message processing: dedup, tenant
// and contact resolution, conversation state, classification, response
// generation, and outbound delivery. Webhook handlers hand it a normalized
// InboundMessage and acknowledge the provider immediately; the rest runs
// asynchronously, serialized per (contact, channel).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
	"github.com/comptoirhq/comptoir/internal/contact"
	"github.com/comptoirhq/comptoir/internal/conversation"
	"github.com/comptoirhq/comptoir/internal/intent"
	"github.com/comptoirhq/comptoir/internal/respond"
	"github.com/comptoirhq/comptoir/internal/tenant"
)

// TenantResolver maps (kind, routing hint) to the owning tenant and account.
type TenantResolver interface {
	Resolve(kind channel.Kind, routingHint string) (tenant.Resolution, error)
}

// ContactResolver resolves sender identifiers to durable contacts.
type ContactResolver interface {
	ResolveOrCreate(ctx context.Context, tenantID string, kind channel.Kind, senderID, senderName string) (contact.Contact, error)
}

// ConversationStore loads and persists dialogue contexts.
type ConversationStore interface {
	Load(ctx context.Context, contactID string, kind channel.Kind) (conversation.Context, error)
	Persist(ctx context.Context, c conversation.Context) error
	TouchInbound(ctx context.Context, contactID string, kind channel.Kind, at time.Time) error
}

// Classifier turns raw text into a typed intent.
type Classifier interface {
	Classify(text string) intent.Result
}

// Responder produces the reply text for a turn.
type Responder interface {
	Respond(ctx context.Context, res tenant.Resolution, sender contact.Contact, convo *conversation.Context, classified intent.Result, rawText string) respond.Result
}

// Deliverer sends the reply through the channel-appropriate transport.
type Deliverer interface {
	Deliver(ctx context.Context, out channel.OutboundMessage, recipient contact.Contact) (channel.DeliveryStatus, error)
}

// Deduper filters provider redeliveries by message id.
type Deduper interface {
	Seen(ctx context.Context, kind channel.Kind, providerMessageID string) (bool, error)
}

// Service is the inbound processing pipeline.
type Service struct {
	tenants       TenantResolver
	contacts      ContactResolver
	conversations ConversationStore
	classifier    Classifier
	responder     Responder
	deliverer     Deliverer
	dedupe        Deduper
	logger        *slog.Logger
	serial        *serializer
	base          context.Context
	ackBudget     time.Duration
}

// NewService creates the pipeline. base is the long-lived context governing
// asynchronous processing (typically the process lifecycle context).
// ackBudget bounds the synchronous portion of Accept; zero disables the cap.
func NewService(
	log *slog.Logger,
	base context.Context,
	tenants TenantResolver,
	contacts ContactResolver,
	conversations ConversationStore,
	classifier Classifier,
	responder Responder,
	deliverer Deliverer,
	dedupe Deduper,
	ackBudget time.Duration,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if base == nil {
		base = context.Background()
	}
	return &Service{
		tenants:       tenants,
		contacts:      contacts,
		conversations: conversations,
		classifier:    classifier,
		responder:     responder,
		deliverer:     deliverer,
		dedupe:        dedupe,
		logger:        log.With(slog.String("service", "pipeline")),
		serial:        newSerializer(),
		base:          base,
		ackBudget:     ackBudget,
	}
}

// Accept takes a normalized inbound message for processing. It performs only
// the cheap synchronous steps (dedup, tenant resolution) so the webhook can
// acknowledge within the provider's budget, then continues asynchronously in
// the per-conversation queue. It never returns an error for internal
// processing failures; those are logged and absorbed.
func (s *Service) Accept(ctx context.Context, msg channel.InboundMessage) {
	if strings.TrimSpace(msg.Text) == "" {
		s.logger.Debug("dropping empty inbound message", slog.String("channel", msg.Kind.String()))
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	if s.ackBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ackBudget)
		defer cancel()
	}

	duplicate, err := s.dedupe.Seen(ctx, msg.Kind, msg.ProviderMessageID)
	if err != nil {
		// Receipt store trouble must not drop customer messages; the worst
		// case is answering a redelivery twice.
		s.logger.Warn("dedup check failed, processing anyway", slog.Any("error", err))
	}
	if duplicate {
		s.logger.Debug("dropping provider redelivery",
			slog.String("channel", msg.Kind.String()),
			slog.String("provider_message_id", msg.ProviderMessageID))
		return
	}

	res, err := s.tenants.Resolve(msg.Kind, msg.RoutingHint)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			s.logger.Error("unresolved tenant, dropping message",
				slog.String("channel", msg.Kind.String()),
				slog.String("routing_hint", msg.RoutingHint))
			return
		}
		s.logger.Error("tenant resolution failed", slog.Any("error", err))
		return
	}
	if res.Degraded {
		s.logger.Warn("routed to degraded default account",
			slog.String("channel", msg.Kind.String()),
			slog.String("routing_hint", msg.RoutingHint),
			slog.String("tenant_id", res.Tenant.ID))
	}

	key := conversationKey(res.Tenant.ID, msg.Kind, msg.SenderID)
	s.serial.enqueue(s.base, key, func(jobCtx context.Context) {
		if err := s.process(jobCtx, res, msg); err != nil {
			s.logger.Error("inbound processing failed",
				slog.String("channel", msg.Kind.String()),
				slog.String("sender", msg.SenderID),
				slog.Any("error", err))
		}
	})
}

// Wait blocks until all in-flight work completes. Called on shutdown.
func (s *Service) Wait() {
	s.serial.wait()
}

// process runs the full pipeline for one message under the conversation lock.
func (s *Service) process(ctx context.Context, res tenant.Resolution, msg channel.InboundMessage) error {
	sender, err := s.contacts.ResolveOrCreate(ctx, res.Tenant.ID, msg.Kind, msg.SenderID, msg.SenderName)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	if err := s.conversations.TouchInbound(ctx, sender.ID, msg.Kind, msg.ReceivedAt); err != nil {
		s.logger.Warn("touch inbound failed", slog.Any("error", err))
	}

	convo, err := s.conversations.Load(ctx, sender.ID, msg.Kind)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	convo.LastInboundAt = msg.ReceivedAt

	classified := s.classifier.Classify(msg.Text)

	if !res.Account.AutoReply {
		// Receive-only account: record state but stay silent.
		convo.Status = conversation.StatusActive
		if err := s.conversations.Persist(ctx, convo); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
		s.logger.Debug("auto-reply disabled, message recorded without reply",
			slog.String("account_id", res.Account.ID))
		return nil
	}

	result := s.responder.Respond(ctx, res, sender, &convo, classified, msg.Text)

	convo.Status = conversation.StatusActive
	if err := s.conversations.Persist(ctx, convo); err != nil {
		// The reply is still worth sending; state will self-heal on the next
		// turn at the cost of one repeated question.
		s.logger.Error("persist conversation failed", slog.Any("error", err))
	}

	if strings.TrimSpace(result.ReplyText) == "" {
		return fmt.Errorf("empty reply for intent %s", classified.Kind)
	}

	status, err := s.deliverer.Deliver(ctx, channel.OutboundMessage{
		Kind:        msg.Kind,
		Source:      res.Account.RoutingKey,
		Destination: msg.SenderID,
		Body:        result.ReplyText,
	}, sender)
	if err != nil || status == channel.DeliveryFailed {
		return fmt.Errorf("deliver reply (status=%s): %w", status, err)
	}
	s.logger.Info("reply delivered",
		slog.String("channel", msg.Kind.String()),
		slog.String("contact_id", sender.ID),
		slog.String("intent", string(classified.Kind)),
		slog.Bool("delegated", result.UsedDelegated),
		slog.String("status", string(status)))
	return nil
}

func conversationKey(tenantID string, kind channel.Kind, senderID string) string {
	return tenantID + ":" + kind.String() + ":" + senderID
}
