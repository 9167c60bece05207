package conversation

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
	"github.com/comptoirhq/comptoir/internal/db"
)

func setupStoreIntegrationTest(t *testing.T) (*Store, *pgxpool.Pool, string, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	if err := db.Migrate(dsn); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}

	tenantID := uuid.NewString()
	contactID := uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $2)`, tenantID, "test pharmacy"); err != nil {
		pool.Close()
		t.Fatalf("seed tenant: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO contacts (id, tenant_id, display_name, phone) VALUES ($1, $2, $3, $4)`,
		contactID, tenantID, "Alice", "+33612345678"); err != nil {
		pool.Close()
		t.Fatalf("seed contact: %v", err)
	}

	cleanup := func() {
		pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
		pool.Close()
	}
	return NewStore(nil, pool, 24*time.Hour), pool, contactID, cleanup
}

func TestStorePersistAndLoadIntegration(t *testing.T) {
	store, _, contactID, cleanup := setupStoreIntegrationTest(t)
	defer cleanup()
	ctx := context.Background()

	loaded, err := store.Load(ctx, contactID, channel.KindWhatsApp)
	if err != nil {
		t.Fatalf("load fresh: %v", err)
	}
	if loaded.Step != StepWelcome || loaded.ID != "" {
		t.Fatalf("expected a fresh context, got %+v", loaded)
	}

	loaded.Step = StepAwaitingQuantity
	loaded.Draft = OrderDraft{ProductName: "Doliprane"}
	if err := store.Persist(ctx, loaded); err != nil {
		t.Fatalf("persist: %v", err)
	}

	reloaded, err := store.Load(ctx, contactID, channel.KindWhatsApp)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ID == "" {
		t.Fatal("persisted context must carry its row id")
	}
	if reloaded.Step != StepAwaitingQuantity || reloaded.Draft.ProductName != "Doliprane" {
		t.Fatalf("unexpected reloaded context: %+v", reloaded)
	}

	// A second persist must update in place, not violate the
	// (contact, channel) uniqueness.
	reloaded.Step = StepIdle
	reloaded.Draft = OrderDraft{}
	if err := store.Persist(ctx, reloaded); err != nil {
		t.Fatalf("persist update: %v", err)
	}
	final, err := store.Load(ctx, contactID, channel.KindWhatsApp)
	if err != nil {
		t.Fatalf("final load: %v", err)
	}
	if final.Step != StepIdle || !final.Draft.Empty() {
		t.Fatalf("unexpected final context: %+v", final)
	}
}

func TestStoreExpiryResetsDialogueIntegration(t *testing.T) {
	store, _, contactID, cleanup := setupStoreIntegrationTest(t)
	defer cleanup()
	ctx := context.Background()

	stale := Context{
		ContactID:     contactID,
		Kind:          channel.KindSMS,
		Step:          StepAwaitingQuantity,
		Status:        StatusActive,
		Draft:         OrderDraft{ProductName: "Smecta"},
		LastInboundAt: time.Now().Add(-30 * time.Hour),
	}
	if err := store.Persist(ctx, stale); err != nil {
		t.Fatalf("persist: %v", err)
	}
	// Persist stamps LastActivityAt with the store clock; rewind it so
	// the row looks idle for longer than the window.
	if _, err := store.pool.Exec(ctx, `
		UPDATE conversations SET last_activity_at = NOW() - INTERVAL '30 hours',
			last_inbound_at = NOW() - INTERVAL '30 hours'
		WHERE contact_id = $1 AND channel_kind = $2`,
		contactID, channel.KindSMS.String()); err != nil {
		t.Fatalf("age row: %v", err)
	}

	loaded, err := store.Load(ctx, contactID, channel.KindSMS)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Step != StepWelcome || !loaded.Draft.Empty() {
		t.Fatalf("expired dialogue must reset, got %+v", loaded)
	}
	if loaded.LastInboundAt.IsZero() {
		t.Fatal("expiry must keep the stored inbound timestamp")
	}

	at, err := store.LastInboundAt(ctx, contactID, channel.KindSMS)
	if err != nil {
		t.Fatalf("last inbound at: %v", err)
	}
	if at.IsZero() {
		t.Fatal("expected a stored inbound timestamp")
	}
}

func TestStoreTouchInboundIntegration(t *testing.T) {
	store, _, contactID, cleanup := setupStoreIntegrationTest(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Now().Truncate(time.Millisecond)
	if err := store.TouchInbound(ctx, contactID, channel.KindMessenger, at); err != nil {
		t.Fatalf("touch inbound (insert path): %v", err)
	}
	got, err := store.LastInboundAt(ctx, contactID, channel.KindMessenger)
	if err != nil {
		t.Fatalf("last inbound at: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("last inbound = %v, want %v", got, at)
	}

	later := at.Add(time.Minute)
	if err := store.TouchInbound(ctx, contactID, channel.KindMessenger, later); err != nil {
		t.Fatalf("touch inbound (update path): %v", err)
	}
	got, err = store.LastInboundAt(ctx, contactID, channel.KindMessenger)
	if err != nil {
		t.Fatalf("last inbound at: %v", err)
	}
	if !got.Equal(later) {
		t.Fatalf("last inbound = %v, want %v", got, later)
	}
}
