package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Store persists conversation contexts. One row exists per (contact,
// channel); expired rows are reset in place rather than deleted so that
// LastInboundAt survives dialogue expiry.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

// NewStore creates the conversation store. window is the dialogue expiry
// window (24h by default upstream).
func NewStore(log *slog.Logger, pool *pgxpool.Pool, window time.Duration) *Store {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
		window: window,
		now:    time.Now,
	}
}

// Load returns the active context for (contactID, kind). A missing or
// expired row yields a fresh welcome context; the stored row (and its
// LastInboundAt) is kept.
func (s *Store) Load(ctx context.Context, contactID string, kind channel.Kind) (Context, error) {
	stored, err := s.get(ctx, contactID, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.fresh(contactID, kind, time.Time{}), nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("load conversation: %w", err)
	}
	if stored.ExpiredAt(s.now(), s.window) {
		// Dialogue restarts, but the delivery window still keys off the
		// stored last inbound timestamp.
		fresh := s.fresh(contactID, kind, stored.LastInboundAt)
		fresh.ID = stored.ID
		return fresh, nil
	}
	stored.Status = StatusActive
	return stored, nil
}

// Persist upserts the context and stamps LastActivityAt.
func (s *Store) Persist(ctx context.Context, c Context) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	draft, err := json.Marshal(c.Draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	now := s.now()
	lastInbound := c.LastInboundAt
	if lastInbound.IsZero() {
		lastInbound = now
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, contact_id, channel_kind, step, data, status, last_activity_at, last_inbound_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (contact_id, channel_kind) DO UPDATE SET
			step = EXCLUDED.step,
			data = EXCLUDED.data,
			status = EXCLUDED.status,
			last_activity_at = EXCLUDED.last_activity_at,
			last_inbound_at = EXCLUDED.last_inbound_at`,
		c.ID, c.ContactID, c.Kind.String(), string(c.Step), draft, string(c.Status), now, lastInbound)
	if err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}

// TouchInbound records the arrival time of an inbound message for the
// session-window check, without advancing dialogue state.
func (s *Store) TouchInbound(ctx context.Context, contactID string, kind channel.Kind, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET last_inbound_at = $3
		WHERE contact_id = $1 AND channel_kind = $2`,
		contactID, kind.String(), at)
	if err != nil {
		return fmt.Errorf("touch inbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO conversations (id, contact_id, channel_kind, step, data, status, last_activity_at, last_inbound_at)
			VALUES ($1, $2, $3, $4, '{}', $5, $6, $6)
			ON CONFLICT (contact_id, channel_kind) DO UPDATE SET last_inbound_at = EXCLUDED.last_inbound_at`,
			uuid.NewString(), contactID, kind.String(), string(StepWelcome), string(StatusActive), at)
		if err != nil {
			return fmt.Errorf("touch inbound insert: %w", err)
		}
	}
	return nil
}

// LastInboundAt returns the most recent inbound timestamp for (contact,
// channel), or the zero time when the contact never wrote on this channel.
func (s *Store) LastInboundAt(ctx context.Context, contactID string, kind channel.Kind) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_inbound_at FROM conversations
		WHERE contact_id = $1 AND channel_kind = $2`,
		contactID, kind.String()).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last inbound at: %w", err)
	}
	return at, nil
}

func (s *Store) get(ctx context.Context, contactID string, kind channel.Kind) (Context, error) {
	var (
		c        Context
		rawStep  string
		rawData  []byte
		status   string
		inbound  *time.Time
		activity time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, contact_id, step, data, status, last_activity_at, last_inbound_at
		FROM conversations WHERE contact_id = $1 AND channel_kind = $2`,
		contactID, kind.String()).
		Scan(&c.ID, &c.ContactID, &rawStep, &rawData, &status, &activity, &inbound)
	if err != nil {
		return Context{}, err
	}
	c.Kind = kind
	c.Step = ParseStep(rawStep)
	c.Status = Status(status)
	c.LastActivityAt = activity
	if inbound != nil {
		c.LastInboundAt = *inbound
	}
	if len(rawData) > 0 {
		if err := json.Unmarshal(rawData, &c.Draft); err != nil {
			s.logger.Warn("discarding malformed conversation draft",
				slog.String("contact_id", contactID),
				slog.Any("error", err))
			c.Draft = OrderDraft{}
		}
	}
	return c, nil
}

func (s *Store) fresh(contactID string, kind channel.Kind, lastInbound time.Time) Context {
	return Context{
		ContactID:     contactID,
		Kind:          kind,
		Step:          StepWelcome,
		Status:        StatusActive,
		LastInboundAt: lastInbound,
	}
}
