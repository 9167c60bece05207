// Package catalog reads the tenant product store: fuzzy name lookup for the
// dialogue engine and catalog suggestions for unresolvable names.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service provides product lookups scoped to a tenant partition.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the catalog service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "catalog")),
	}
}

// FindFuzzy resolves a spoken product name to a catalog product. Exact
// case-insensitive match wins; otherwise the shortest product name containing
// (or contained in) the query is chosen.
func (s *Service) FindFuzzy(ctx context.Context, tenantID, name string) (Product, error) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return Product{}, ErrProductNotFound
	}

	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, stock
		FROM products WHERE tenant_id = $1 AND LOWER(name) = $2`,
		tenantID, query).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.Stock)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("find product: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, stock
		FROM products
		WHERE tenant_id = $1
		  AND (LOWER(name) LIKE '%' || $2 || '%' OR $2 LIKE '%' || LOWER(name) || '%')
		ORDER BY LENGTH(name) ASC
		LIMIT 1`,
		tenantID, query).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("find product fuzzy: %w", err)
	}
	return p, nil
}

// Suggest returns up to limit catalog names for a guiding reply when a name
// could not be resolved.
func (s *Service) Suggest(ctx context.Context, tenantID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT name FROM products
		WHERE tenant_id = $1 AND stock > 0
		ORDER BY name ASC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest products: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan product name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// List returns the tenant catalog for the list-products intent.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, unit_price_cents, stock
		FROM products WHERE tenant_id = $1
		ORDER BY name ASC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.UnitPriceCents, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
