package conversation

import (
	"testing"
	"time"
)

func TestExpiredAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{name: "fresh", last: now.Add(-1 * time.Hour), want: false},
		{name: "at boundary", last: now.Add(-window), want: false},
		{name: "past boundary", last: now.Add(-window - time.Minute), want: true},
		{name: "zero never expires", last: time.Time{}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Context{LastActivityAt: tt.last}
			if got := c.ExpiredAt(now, window); got != tt.want {
				t.Fatalf("ExpiredAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want Step
	}{
		{"awaiting_quantity", StepAwaitingQuantity},
		{" AWAITING_PRODUCT ", StepAwaitingProduct},
		{"awaiting_confirmation", StepAwaitingConfirmation},
		{"idle", StepIdle},
		{"welcome", StepWelcome},
		{"garbage", StepWelcome},
		{"", StepWelcome},
	}
	for _, tt := range tests {
		if got := ParseStep(tt.raw); got != tt.want {
			t.Fatalf("ParseStep(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestOrderDraftEmpty(t *testing.T) {
	t.Parallel()

	if !(OrderDraft{}).Empty() {
		t.Fatal("zero draft should be empty")
	}
	if (OrderDraft{ProductName: "doliprane"}).Empty() {
		t.Fatal("draft with product should not be empty")
	}
}
