// Package respond decides, per channel-account configuration, whether a
// reply comes from the delegated generator or from the rule-based dialogue
// engine, with automatic fallback to the rule engine on any delegated
// failure.
package respond

import (
	"context"
	"log/slog"
	"strings"

	"github.com/comptoirhq/comptoir/internal/contact"
	"github.com/comptoirhq/comptoir/internal/conversation"
	"github.com/comptoirhq/comptoir/internal/delegated"
	"github.com/comptoirhq/comptoir/internal/history"
	"github.com/comptoirhq/comptoir/internal/intent"
	"github.com/comptoirhq/comptoir/internal/tenant"
)

// Generator is the delegated response generator surface the coordinator uses.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, req delegated.Request) (delegated.Response, error)
}

// RuleEngine produces a reply from the dialogue state machine.
type RuleEngine interface {
	Respond(ctx context.Context, tenantID, contactID, contactName string, convo *conversation.Context, res intent.Result, rawText string) string
}

// HistorySink records each exchange with its originating mode.
type HistorySink interface {
	Append(ctx context.Context, entry history.Entry)
}

// Result is the coordinator's outcome.
type Result struct {
	ReplyText     string
	UsedDelegated bool
	Confidence    float64
}

// Coordinator selects the response source. A delegated-mode failure is an
// internal fallback decision; callers never observe it as an error.
type Coordinator struct {
	generator Generator
	engine    RuleEngine
	sink      HistorySink
	logger    *slog.Logger
}

// NewCoordinator creates the coordinator.
func NewCoordinator(log *slog.Logger, generator Generator, engine RuleEngine, sink HistorySink) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		generator: generator,
		engine:    engine,
		sink:      sink,
		logger:    log.With(slog.String("service", "respond")),
	}
}

// Respond produces the reply for one inbound turn. Delegated mode is
// attempted only when the account enables both the delegated and auto-reply
// flags; everything else (and every delegated failure) goes through the rule
// engine synchronously in the same request.
func (c *Coordinator) Respond(ctx context.Context, res tenant.Resolution, sender contact.Contact, convo *conversation.Context, classified intent.Result, rawText string) Result {
	account := res.Account
	if account.DelegatedMode && account.AutoReply && c.generator != nil && c.generator.Configured() {
		generated, err := c.generator.Generate(ctx, delegated.Request{
			ContactID: sender.ID,
			Text:      rawText,
			Metadata: map[string]string{
				"tenant_id": res.Tenant.ID,
				"channel":   convo.Kind.String(),
				"intent":    string(classified.Kind),
			},
		})
		if err == nil && strings.TrimSpace(generated.ReplyText) != "" {
			c.record(ctx, sender, convo, rawText, generated.ReplyText, history.ModeDelegated, generated.Confidence)
			return Result{ReplyText: generated.ReplyText, UsedDelegated: true, Confidence: generated.Confidence}
		}
		c.logger.Warn("delegated generator failed, falling back to rule engine",
			slog.String("tenant_id", res.Tenant.ID),
			slog.String("contact_id", sender.ID),
			slog.Any("error", err))
	}

	reply := c.engine.Respond(ctx, res.Tenant.ID, sender.ID, sender.DisplayName, convo, classified, rawText)
	c.record(ctx, sender, convo, rawText, reply, history.ModeRule, classified.Confidence)
	return Result{ReplyText: reply, UsedDelegated: false, Confidence: classified.Confidence}
}

func (c *Coordinator) record(ctx context.Context, sender contact.Contact, convo *conversation.Context, inbound, reply string, mode history.Mode, confidence float64) {
	if c.sink == nil {
		return
	}
	c.sink.Append(ctx, history.Entry{
		ContactID:   sender.ID,
		Kind:        convo.Kind,
		InboundText: inbound,
		ReplyText:   reply,
		Mode:        mode,
		Confidence:  confidence,
	})
}
