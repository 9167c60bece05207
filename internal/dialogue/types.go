package dialogue

import (
	"context"

	"github.com/comptoirhq/comptoir/internal/catalog"
	"github.com/comptoirhq/comptoir/internal/order"
)

// CatalogReader is the slice of the product store the engine consumes.
type CatalogReader interface {
	FindFuzzy(ctx context.Context, tenantID, name string) (catalog.Product, error)
	Suggest(ctx context.Context, tenantID string, limit int) ([]string, error)
	List(ctx context.Context, tenantID string, limit int) ([]catalog.Product, error)
}

// OrderStore is the slice of the order store the engine consumes. Create is
// transactional: order insert and stock decrement succeed or fail together.
type OrderStore interface {
	Create(ctx context.Context, tenantID, contactID string, product catalog.Product, quantity int) (order.Order, error)
	GetByNumber(ctx context.Context, tenantID string, number int64) (order.Order, error)
	MostRecent(ctx context.Context, contactID string) (order.Order, error)
	Summarize(ctx context.Context, contactID string) (order.Summary, error)
}

// DocumentRequester asks the external document collaborator for a quote or
// invoice PDF. Requests are fire-and-forget; the result arrives out of band.
type DocumentRequester interface {
	RequestQuote(ctx context.Context, tenantID, orderID string)
	RequestInvoice(ctx context.Context, tenantID, orderID string)
}
