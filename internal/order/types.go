package order

import (
	"errors"
	"fmt"
	"time"
)

// ErrOrderNotFound is returned when no order matches a lookup.
var ErrOrderNotFound = errors.New("order not found")

// InsufficientStockError reports a rejected order with the quantity that
// remains available, so the reply can guide the customer.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// Status values an order moves through. Only created/confirmed are produced
// by this pipeline; the rest come from the fulfilment side.
const (
	StatusCreated   = "created"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Order is a placed order. Number is the short sequential reference quoted
// to customers ("commande 42"); Reference is its display form.
type Order struct {
	ID         string
	TenantID   string
	ContactID  string
	Number     int64
	Status     string
	TotalCents int64
	CreatedAt  time.Time
}

// Reference renders the customer-facing order reference.
func (o Order) Reference() string {
	return fmt.Sprintf("CMD-%d", o.Number)
}

// Line is one product line within an order.
type Line struct {
	OrderID        string
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

// Summary aggregates a contact's order history for greeting personalization.
type Summary struct {
	Count      int
	LastNumber int64
	LastStatus string
}
