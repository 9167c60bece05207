package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/channel"
	"github.com/comptoirhq/comptoir/internal/db"
)

// kindPriority orders channel kinds when a routing key serves several kinds.
// Session-based channels win over plain SMS for ambiguous phone numbers.
var kindPriority = map[channel.Kind]int{
	channel.KindWhatsAppCloud: 4,
	channel.KindWhatsApp:      3,
	channel.KindMessenger:     2,
	channel.KindSMS:           1,
}

type indexEntry struct {
	key        string
	normalized string
	kind       channel.Kind
	account    ChannelAccount
	tenant     Tenant
}

// Service resolves inbound routing hints to (tenant, channel account) pairs
// through a periodically rebuilt in-memory index, avoiding a cross-tenant
// store scan per inbound message.
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	fallback *Resolution

	mu      sync.RWMutex
	entries []indexEntry
}

// NewService creates the tenant resolver. The index is empty until the first
// Rebuild.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "tenant")),
	}
}

// SetFallback configures the degraded default resolution used when no
// routing key matches. IDs refer to an existing tenant and channel account.
func (s *Service) SetFallback(ctx context.Context, tenantID, accountID string) error {
	t, err := s.getTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load fallback tenant: %w", err)
	}
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load fallback account: %w", err)
	}
	s.mu.Lock()
	s.fallback = &Resolution{Tenant: t, Account: account, Degraded: true}
	s.mu.Unlock()
	return nil
}

// Rebuild reloads the routing index from the channel account store. Inactive
// accounts are excluded.
func (s *Service) Rebuild(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT ca.id, ca.tenant_id, ca.channel_kind, ca.routing_key,
		       ca.delegated_mode, ca.auto_reply, ca.active, ca.credentials_ref,
		       t.name, t.created_at
		FROM channel_accounts ca
		JOIN tenants t ON t.id = ca.tenant_id
		WHERE ca.active`)
	if err != nil {
		return fmt.Errorf("query channel accounts: %w", err)
	}
	defer rows.Close()

	var entries []indexEntry
	for rows.Next() {
		var (
			account ChannelAccount
			tnt     Tenant
			rawKind string
		)
		if err := rows.Scan(&account.ID, &account.TenantID, &rawKind, &account.RoutingKey,
			&account.DelegatedMode, &account.AutoReply, &account.Active, &account.CredentialsRef,
			&tnt.Name, &tnt.CreatedAt); err != nil {
			return fmt.Errorf("scan channel account: %w", err)
		}
		kind, ok := channel.ParseKind(rawKind)
		if !ok {
			s.logger.Warn("skipping account with unknown channel kind",
				slog.String("account_id", account.ID),
				slog.String("kind", rawKind))
			continue
		}
		account.Kind = kind
		tnt.ID = account.TenantID
		entries = append(entries, indexEntry{
			key:        account.RoutingKey,
			normalized: NormalizeRoutingKey(account.RoutingKey),
			kind:       kind,
			account:    account,
			tenant:     tnt,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate channel accounts: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.logger.Debug("routing index rebuilt", slog.Int("entries", len(entries)))
	return nil
}

// Resolve maps an inbound (kind, routing hint) to the owning tenant and
// channel account. Matching tries exact, then normalized, then suffix
// containment, tie-breaking by shortest routing key and then channel-kind
// priority. When nothing matches, the degraded default is returned if
// configured, otherwise ErrNotFound.
func (s *Service) Resolve(kind channel.Kind, routingHint string) (Resolution, error) {
	hint := strings.TrimSpace(routingHint)
	if hint == "" {
		return s.fallbackOr(ErrNotFound)
	}

	s.mu.RLock()
	entries := s.entries
	fallback := s.fallback
	s.mu.RUnlock()

	if match, ok := bestMatch(entries, kind, hint); ok {
		return Resolution{Tenant: match.tenant, Account: match.account}, nil
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Resolution{}, fmt.Errorf("%w: kind=%s hint=%s", ErrNotFound, kind, hint)
}

func (s *Service) fallbackOr(err error) (Resolution, error) {
	s.mu.RLock()
	fallback := s.fallback
	s.mu.RUnlock()
	if fallback != nil {
		return *fallback, nil
	}
	return Resolution{}, err
}

func bestMatch(entries []indexEntry, kind channel.Kind, hint string) (indexEntry, bool) {
	normalizedHint := NormalizeRoutingKey(hint)

	type scored struct {
		entry indexEntry
		tier  int
	}
	var candidates []scored
	for _, e := range entries {
		tier, ok := matchTier(e, kind, hint, normalizedHint)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{entry: e, tier: tier})
	}
	if len(candidates) == 0 {
		return indexEntry{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		// Shortest routing key is the most specific under suffix matching.
		if len(a.entry.key) != len(b.entry.key) {
			return len(a.entry.key) < len(b.entry.key)
		}
		return kindPriority[a.entry.kind] > kindPriority[b.entry.kind]
	})
	return candidates[0].entry, true
}

// matchTier classifies how an index entry matches the hint. Lower is better:
// 0 exact, 1 normalized, 2 suffix containment. Entries for a different
// channel kind only participate when both kinds address phone numbers
// (an SMS and a WhatsApp account may share one number).
func matchTier(e indexEntry, kind channel.Kind, hint, normalizedHint string) (int, bool) {
	if e.kind != kind && !sharesNumbering(e.kind, kind) {
		return 0, false
	}
	penalty := 0
	if e.kind != kind {
		penalty = 3
	}
	switch {
	case e.key == hint:
		return penalty + 0, true
	case e.normalized != "" && e.normalized == normalizedHint:
		return penalty + 1, true
	case suffixOverlap(e.normalized, normalizedHint):
		return penalty + 2, true
	default:
		return 0, false
	}
}

func sharesNumbering(a, b channel.Kind) bool {
	phone := func(k channel.Kind) bool {
		return k == channel.KindSMS || k == channel.KindWhatsApp || k == channel.KindWhatsAppCloud
	}
	return phone(a) && phone(b)
}

// suffixOverlap tolerates provider formatting differences such as a missing
// or replaced country code: the two normalized numbers must share at least 7
// trailing digits, enough to rule out accidental matches on short codes.
func suffixOverlap(a, b string) bool {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n >= 7
}

// NormalizeRoutingKey strips channel prefixes (e.g. "whatsapp:") and all
// non-digit characters from a phone-shaped routing key. Keys without digits
// (page ids, account SIDs) are lowercased verbatim.
func NormalizeRoutingKey(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"whatsapp:", "sms:", "tel:", "messenger:"} {
		value = strings.TrimPrefix(value, prefix)
	}
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return value
	}
	return digits.String()
}

func (s *Service) getTenant(ctx context.Context, id string) (Tenant, error) {
	if _, err := db.ParseUUID(id); err != nil {
		return Tenant{}, err
	}
	var t Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return t, nil
}

func (s *Service) getAccount(ctx context.Context, id string) (ChannelAccount, error) {
	if _, err := db.ParseUUID(id); err != nil {
		return ChannelAccount{}, err
	}
	var (
		account ChannelAccount
		rawKind string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, channel_kind, routing_key, delegated_mode,
		       auto_reply, active, credentials_ref
		FROM channel_accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.TenantID, &rawKind, &account.RoutingKey,
			&account.DelegatedMode, &account.AutoReply, &account.Active, &account.CredentialsRef)
	if err != nil {
		return ChannelAccount{}, fmt.Errorf("get channel account %s: %w", id, err)
	}
	kind, ok := channel.ParseKind(rawKind)
	if !ok {
		return ChannelAccount{}, fmt.Errorf("channel account %s has unknown kind %q", id, rawKind)
	}
	account.Kind = kind
	return account, nil
}
