package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Log records every outbound delivery attempt for internal monitoring.
// Failures here are logged and swallowed: the audit trail must not block
// delivery itself.
type Log struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLog creates the delivery log.
func NewLog(log *slog.Logger, pool *pgxpool.Pool) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{
		pool:   pool,
		logger: log.With(slog.String("service", "delivery_log")),
	}
}

// Create records a pending delivery and returns its id.
func (l *Log) Create(ctx context.Context, contactID string, kind channel.Kind, destination, body string) string {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO delivery_log (id, contact_id, channel_kind, destination, body, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, NOW(), NOW())`,
		id, contactID, kind.String(), destination, body)
	if err != nil {
		l.logger.Warn("delivery log create failed", slog.Any("error", fmt.Errorf("insert delivery log: %w", err)))
		return ""
	}
	return id
}

// MarkResult finalizes a delivery record.
func (l *Log) MarkResult(ctx context.Context, id string, status channel.DeliveryStatus, attempts int, providerError string) {
	if id == "" {
		return
	}
	_, err := l.pool.Exec(ctx, `
		UPDATE delivery_log
		SET status = $2, attempts = $3, provider_error = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1`,
		id, string(status), attempts, providerError)
	if err != nil {
		l.logger.Warn("delivery log update failed", slog.Any("error", fmt.Errorf("update delivery log: %w", err)))
	}
}
