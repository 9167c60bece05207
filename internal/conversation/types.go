// Package conversation holds the bounded-lifetime dialogue context kept per
// (contact, channel) and its persistence rules.
package conversation

import (
	"strings"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Step is the current position of a conversation in the order flow.
type Step string

const (
	StepWelcome              Step = "welcome"
	StepAwaitingProduct      Step = "awaiting_product"
	StepAwaitingQuantity     Step = "awaiting_quantity"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	StepIdle                 Step = "idle"
)

// ParseStep normalizes a stored step value, defaulting to welcome.
func ParseStep(raw string) Step {
	switch Step(strings.ToLower(strings.TrimSpace(raw))) {
	case StepAwaitingProduct:
		return StepAwaitingProduct
	case StepAwaitingQuantity:
		return StepAwaitingQuantity
	case StepAwaitingConfirmation:
		return StepAwaitingConfirmation
	case StepIdle:
		return StepIdle
	default:
		return StepWelcome
	}
}

// Status marks whether a stored context is still usable for dialogue.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// OrderDraft is the typed step data accumulated across order-creation turns.
// Fields fill in as the flow advances; invalid step/data combinations are
// unrepresentable because only the engine mutates it.
type OrderDraft struct {
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
}

// Empty reports whether no order fields have been collected yet.
func (d OrderDraft) Empty() bool {
	return d.ProductID == "" && d.ProductName == "" && d.Quantity == 0
}

// Context is the per-(contact, channel) dialogue state. Expiry applies to
// dialogue freshness only; the provider delivery window is computed from
// LastInboundAt and must never be conflated with it.
type Context struct {
	ID             string
	ContactID      string
	Kind           channel.Kind
	Step           Step
	Draft          OrderDraft
	Status         Status
	LastActivityAt time.Time
	// LastInboundAt is the timestamp of the contact's most recent inbound
	// message on this channel, feeding the session-window check.
	LastInboundAt time.Time
}

// ExpiredAt reports whether the context is stale for dialogue purposes at
// the given instant.
func (c Context) ExpiredAt(now time.Time, window time.Duration) bool {
	if c.LastActivityAt.IsZero() {
		return false
	}
	return now.Sub(c.LastActivityAt) > window
}
