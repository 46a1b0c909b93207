package product

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "product not found")
	// ErrSizeNotFound is returned when the product has no such size.
	ErrSizeNotFound = apperr.New(apperr.ErrNotFound, "product size not found")
)

// Product is a catalog item with its pricing and per-size stock.
type Product struct {
	ID              string
	Name            string
	Title           string
	Category        string
	Image           string
	MRP             decimal.Decimal
	DiscountPercent decimal.Decimal
	SellingPrice    decimal.Decimal
	Tags            []string
	Sizes           []Size
}

// Size is a sellable size of a product and the quantity in stock.
type Size struct {
	Name      string
	Available int
}

// Size returns the size called name.
func (p *Product) Size(name string) (Size, bool) {
	for _, s := range p.Sizes {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Size{}, false
}

// Catalog is the read-only view of products used by the cart and checkout.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
