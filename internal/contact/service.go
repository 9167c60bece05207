package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Service resolves channel sender identifiers to durable contacts within a
// tenant partition, creating placeholder contacts on first sight.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the contact resolver.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "contact")),
	}
}

// ResolveOrCreate returns the contact owning senderID on the given channel,
// creating a placeholder when none exists. Creation is insert-or-fetch: the
// insert relies on the (tenant, identifier) unique constraint so two
// concurrent first messages from the same sender cannot produce duplicates.
func (s *Service) ResolveOrCreate(ctx context.Context, tenantID string, kind channel.Kind, senderID, senderName string) (Contact, error) {
	identifier := strings.TrimSpace(senderID)
	if identifier == "" {
		return Contact{}, fmt.Errorf("sender identifier is required")
	}
	field := IdentifierField(kind)

	found, err := s.findByIdentifier(ctx, tenantID, field, identifier)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, fmt.Errorf("lookup contact: %w", err)
	}

	displayName := strings.TrimSpace(senderName)
	if displayName == "" {
		displayName = placeholderName(kind, identifier)
	}

	query := fmt.Sprintf(`
		INSERT INTO contacts (id, tenant_id, display_name, %s, channel_sourced, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (tenant_id, %s) DO NOTHING`, field, field)
	if _, err := s.pool.Exec(ctx, query, uuid.NewString(), tenantID, displayName, identifier); err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}

	// Re-fetch after the insert: on conflict the concurrent winner's row is
	// the one we must return.
	created, err := s.findByIdentifier(ctx, tenantID, field, identifier)
	if err != nil {
		return Contact{}, fmt.Errorf("fetch contact after insert: %w", err)
	}
	s.logger.Debug("contact resolved",
		slog.String("tenant_id", tenantID),
		slog.String("channel", kind.String()),
		slog.String("contact_id", created.ID))
	return created, nil
}

// Get loads a contact by id.
func (s *Service) Get(ctx context.Context, id string) (Contact, error) {
	var c Contact
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, display_name, COALESCE(phone, ''),
		       COALESCE(messenger_id, ''), channel_sourced, created_at
		FROM contacts WHERE id = $1`, id).
		Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.Phone, &c.MessengerID, &c.ChannelSourced, &c.CreatedAt)
	if err != nil {
		return Contact{}, fmt.Errorf("get contact %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) findByIdentifier(ctx context.Context, tenantID, field, identifier string) (Contact, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, display_name, COALESCE(phone, ''),
		       COALESCE(messenger_id, ''), channel_sourced, created_at
		FROM contacts WHERE tenant_id = $1 AND %s = $2`, field)
	var c Contact
	err := s.pool.QueryRow(ctx, query, tenantID, identifier).
		Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.Phone, &c.MessengerID, &c.ChannelSourced, &c.CreatedAt)
	return c, err
}

func placeholderName(kind channel.Kind, identifier string) string {
	suffix := identifier
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(kind.String()), suffix)
}
