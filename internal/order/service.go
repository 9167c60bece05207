// Package order creates and queries orders. Order creation and the matching
// stock decrement run in one transaction: a partially created order with no
// stock movement (or the reverse) must be impossible.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptoirhq/comptoir/internal/catalog"
	"github.com/comptoirhq/comptoir/internal/db"
)

// Service provides transactional order creation and contact-scoped queries.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the order service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "order")),
	}
}

// Create places an order for quantity units of product, decrementing stock
// atomically. The product row is locked for the duration of the transaction;
// insufficient stock aborts with an InsufficientStockError carrying the
// available quantity.
func (s *Service) Create(ctx context.Context, tenantID, contactID string, product catalog.Product, quantity int) (Order, error) {
	if quantity <= 0 {
		return Order{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var created Order
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var stock int
		err := tx.QueryRow(ctx,
			`SELECT stock FROM products WHERE id = $1 FOR UPDATE`,
			product.ID).Scan(&stock)
		if err != nil {
			return fmt.Errorf("lock product %s: %w", product.ID, err)
		}
		if stock < quantity {
			return &InsufficientStockError{
				ProductName: product.Name,
				Requested:   quantity,
				Available:   stock,
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1`,
			product.ID, quantity); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

		created = Order{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			ContactID:  contactID,
			Status:     StatusCreated,
			TotalCents: int64(quantity) * product.UnitPriceCents,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO orders (id, tenant_id, contact_id, status, total_cents, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING number, created_at`,
			created.ID, tenantID, contactID, created.Status, created.TotalCents).
			Scan(&created.Number, &created.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4)`,
			created.ID, product.ID, quantity, product.UnitPriceCents); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order created",
		slog.String("tenant_id", tenantID),
		slog.String("contact_id", contactID),
		slog.Int64("number", created.Number),
		slog.Int64("total_cents", created.TotalCents))
	return created, nil
}

// GetByNumber finds an order by its customer-facing number within a tenant.
func (s *Service) GetByNumber(ctx context.Context, tenantID string, number int64) (Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, contact_id, number, status, total_cents, created_at
		FROM orders WHERE tenant_id = $1 AND number = $2`,
		tenantID, number).
		Scan(&o.ID, &o.TenantID, &o.ContactID, &o.Number, &o.Status, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %d: %w", number, err)
	}
	return o, nil
}

// MostRecent returns the contact's latest order.
func (s *Service) MostRecent(ctx context.Context, contactID string) (Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, contact_id, number, status, total_cents, created_at
		FROM orders WHERE contact_id = $1
		ORDER BY created_at DESC LIMIT 1`,
		contactID).
		Scan(&o.ID, &o.TenantID, &o.ContactID, &o.Number, &o.Status, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("most recent order: %w", err)
	}
	return o, nil
}

// Summarize aggregates the contact's history for the greeting reply.
func (s *Service) Summarize(ctx context.Context, contactID string) (Summary, error) {
	var summary Summary
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE contact_id = $1`, contactID).
		Scan(&summary.Count)
	if err != nil {
		return Summary{}, fmt.Errorf("count orders: %w", err)
	}
	if summary.Count == 0 {
		return summary, nil
	}
	last, err := s.MostRecent(ctx, contactID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return summary, nil
		}
		return Summary{}, err
	}
	summary.LastNumber = last.Number
	summary.LastStatus = last.Status
	return summary, nil
}
