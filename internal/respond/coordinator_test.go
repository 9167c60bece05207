package respond

import (
	"context"
	"errors"
	"testing"

	"github.com/comptoirhq/comptoir/internal/contact"
	"github.com/comptoirhq/comptoir/internal/conversation"
	"github.com/comptoirhq/comptoir/internal/delegated"
	"github.com/comptoirhq/comptoir/internal/history"
	"github.com/comptoirhq/comptoir/internal/intent"
	"github.com/comptoirhq/comptoir/internal/tenant"
)

type fakeGenerator struct {
	configured bool
	reply      string
	err        error
	calls      int
}

func (f *fakeGenerator) Configured() bool { return f.configured }

func (f *fakeGenerator) Generate(_ context.Context, _ delegated.Request) (delegated.Response, error) {
	f.calls++
	if f.err != nil {
		return delegated.Response{}, f.err
	}
	return delegated.Response{Success: true, ReplyText: f.reply, Confidence: 0.9}, nil
}

type fakeEngine struct {
	reply string
	calls int
}

func (f *fakeEngine) Respond(_ context.Context, _, _, _ string, _ *conversation.Context, _ intent.Result, _ string) string {
	f.calls++
	return f.reply
}

type fakeSink struct {
	entries []history.Entry
}

func (f *fakeSink) Append(_ context.Context, entry history.Entry) {
	f.entries = append(f.entries, entry)
}

func resolution(delegatedMode, autoReply bool) tenant.Resolution {
	return tenant.Resolution{
		Tenant:  tenant.Tenant{ID: "t-1"},
		Account: tenant.ChannelAccount{ID: "a-1", DelegatedMode: delegatedMode, AutoReply: autoReply},
	}
}

func TestRespondDelegatedMode(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{configured: true, reply: "généré"}
	engine := &fakeEngine{reply: "règle"}
	sink := &fakeSink{}
	c := NewCoordinator(nil, generator, engine, sink)

	result := c.Respond(context.Background(), resolution(true, true), contact.Contact{ID: "c-1"},
		&conversation.Context{}, intent.Result{Kind: intent.Unknown}, "bonjour")

	if !result.UsedDelegated || result.ReplyText != "généré" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if engine.calls != 0 {
		t.Fatal("rule engine must not run when delegation succeeds")
	}
	if len(sink.entries) != 1 || sink.entries[0].Mode != history.ModeDelegated {
		t.Fatalf("unexpected history entries: %+v", sink.entries)
	}
}

func TestRespondFallsBackOnGeneratorError(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{configured: true, err: errors.New("timeout")}
	engine := &fakeEngine{reply: "règle"}
	sink := &fakeSink{}
	c := NewCoordinator(nil, generator, engine, sink)

	result := c.Respond(context.Background(), resolution(true, true), contact.Contact{ID: "c-1"},
		&conversation.Context{}, intent.Result{Kind: intent.Help, Confidence: 0.9}, "aide")

	if result.UsedDelegated || result.ReplyText != "règle" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if engine.calls != 1 {
		t.Fatalf("rule engine calls = %d, want 1", engine.calls)
	}
	if len(sink.entries) != 1 || sink.entries[0].Mode != history.ModeRule {
		t.Fatalf("unexpected history entries: %+v", sink.entries)
	}
}

func TestRespondFallsBackOnEmptyReply(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{configured: true, reply: "   "}
	engine := &fakeEngine{reply: "règle"}
	c := NewCoordinator(nil, generator, engine, nil)

	result := c.Respond(context.Background(), resolution(true, true), contact.Contact{ID: "c-1"},
		&conversation.Context{}, intent.Result{Kind: intent.Unknown}, "??")

	if result.UsedDelegated || result.ReplyText != "règle" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRespondRuleModeWhenFlagsOff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		delegated bool
		autoReply bool
	}{
		{name: "delegated off", delegated: false, autoReply: true},
		{name: "auto reply off", delegated: true, autoReply: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			generator := &fakeGenerator{configured: true, reply: "généré"}
			engine := &fakeEngine{reply: "règle"}
			c := NewCoordinator(nil, generator, engine, nil)

			result := c.Respond(context.Background(), resolution(tt.delegated, tt.autoReply),
				contact.Contact{ID: "c-1"}, &conversation.Context{}, intent.Result{Kind: intent.Unknown}, "texte")

			if result.UsedDelegated {
				t.Fatal("delegation requires both flags")
			}
			if generator.calls != 0 {
				t.Fatalf("generator calls = %d, want 0", generator.calls)
			}
			if result.ReplyText != "règle" {
				t.Fatalf("reply = %q", result.ReplyText)
			}
		})
	}
}

func TestRespondRuleModeWhenGeneratorUnconfigured(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{configured: false, reply: "généré"}
	engine := &fakeEngine{reply: "règle"}
	c := NewCoordinator(nil, generator, engine, nil)

	result := c.Respond(context.Background(), resolution(true, true), contact.Contact{ID: "c-1"},
		&conversation.Context{}, intent.Result{Kind: intent.Unknown}, "texte")

	if result.UsedDelegated || generator.calls != 0 {
		t.Fatalf("unconfigured generator must be skipped: %+v", result)
	}
}
