// Package history is the append-only conversation-history sink used for
// analytics. Writes are best-effort: a sink failure never blocks a reply.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Mode tags which source produced a reply.
type Mode string

const (
	ModeRule      Mode = "rule"
	ModeDelegated Mode = "delegated"
)

// Entry is one recorded exchange.
type Entry struct {
	ContactID   string
	Kind        channel.Kind
	InboundText string
	ReplyText   string
	Mode        Mode
	Confidence  float64
	CreatedAt   time.Time
}

// Service appends history entries.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the history sink.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "history")),
	}
}

// Append records one exchange. Failures are logged, not returned: analytics
// must never interfere with answering the customer.
func (s *Service) Append(ctx context.Context, entry Entry) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_history (id, contact_id, channel_kind, inbound_text, reply_text, mode, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), entry.ContactID, entry.Kind.String(),
		entry.InboundText, entry.ReplyText, string(entry.Mode), entry.Confidence, createdAt)
	if err != nil {
		s.logger.Warn("history append failed",
			slog.String("contact_id", entry.ContactID),
			slog.Any("error", fmt.Errorf("insert history: %w", err)))
	}
}
