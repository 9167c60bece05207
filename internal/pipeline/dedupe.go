package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Dedupe tracks provider message ids so that provider redeliveries of the
// same inbound event are dropped instead of reprocessed. Receipts older than
// the retention window are pruned opportunistically.
type Dedupe struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	retention time.Duration
}

// NewDedupe creates the receipt tracker.
func NewDedupe(log *slog.Logger, pool *pgxpool.Pool, retention time.Duration) *Dedupe {
	if log == nil {
		log = slog.Default()
	}
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &Dedupe{
		pool:      pool,
		logger:    log.With(slog.String("service", "dedupe")),
		retention: retention,
	}
}

// Seen records the provider message id and reports whether it was already
// known. An empty id is never deduplicated. The insert races safely: the
// primary key makes exactly one caller the first.
func (d *Dedupe) Seen(ctx context.Context, kind channel.Kind, providerMessageID string) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO inbound_receipts (channel_kind, provider_message_id, received_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (channel_kind, provider_message_id) DO NOTHING`,
		kind.String(), providerMessageID)
	if err != nil {
		return false, fmt.Errorf("record inbound receipt: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

// Prune deletes receipts past the retention window.
func (d *Dedupe) Prune(ctx context.Context) error {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM inbound_receipts WHERE received_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(d.retention.Seconds())))
	if err != nil {
		return fmt.Errorf("prune inbound receipts: %w", err)
	}
	if rows := tag.RowsAffected(); rows > 0 {
		d.logger.Debug("pruned inbound receipts", slog.Int64("rows", rows))
	}
	return nil
}
