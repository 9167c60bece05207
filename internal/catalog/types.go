package catalog

import "errors"

// ErrProductNotFound is returned when no product name is close enough to the
// requested one.
var ErrProductNotFound = errors.New("product not found")

// Product is one sellable item in a tenant's catalog.
type Product struct {
	ID             string
	TenantID       string
	Name           string
	UnitPriceCents int64
	Stock          int
}
