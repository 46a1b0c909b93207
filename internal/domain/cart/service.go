package cart

import (
	"context"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// AddRequest holds the input for adding a product to the cart.
type AddRequest struct {
	UserID    string
	ProductID string
	Size      string
	Variant   string
	Quantity  int
}

// Service encapsulates cart operations.
type Service struct {
	repo    Repository
	catalog product.Catalog
	pricing *pricing.Engine
	maxQty  int
}

// NewService creates a cart Service. maxQty is the per-line quantity limit.
func NewService(repo Repository, catalog product.Catalog, engine *pricing.Engine, maxQty int) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		pricing: engine,
		maxQty:  maxQty,
	}
}

// Add puts quantity units of a product size into the cart, merging with an
// existing line for the same key.
func (s *Service) Add(ctx context.Context, req AddRequest) (*Line, error) {
	if req.UserID == "" || req.ProductID == "" || strings.TrimSpace(req.Size) == "" {
		return nil, apperr.New(apperr.ErrValidation, "product_id and size are required")
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.Quantity > s.maxQty {
		return nil, ErrLimitExceeded
	}

	p, err := s.catalog.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, apperr.Storage(err, "load product")
	}
	if _, ok := p.Size(req.Size); !ok {
		return nil, product.ErrSizeNotFound
	}

	line, err := s.repo.Upsert(ctx, Line{
		Key: Key{
			UserID:    req.UserID,
			ProductID: req.ProductID,
			Size:      req.Size,
			Variant:   req.Variant,
		},
		Quantity:  req.Quantity,
		UnitPrice: p.SellingPrice,
		Available: true,
	}, s.maxQty)
	if err != nil {
		return nil, apperr.Storage(err, "add to cart")
	}

	zctx.From(ctx).Info("Cart line added",
		zap.String("user_id", req.UserID),
		zap.String("product_id", req.ProductID),
		zap.Int("quantity", line.Quantity),
	)
	return line, nil
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, key Key, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > s.maxQty {
		return ErrLimitExceeded
	}
	if err := s.repo.SetQuantity(ctx, key, qty); err != nil {
		return apperr.Storage(err, "update cart quantity")
	}
	return nil
}

// Remove deletes a line from the cart and from the user's checkout snapshot.
func (s *Service) Remove(ctx context.Context, key Key) error {
	if err := s.repo.Remove(ctx, key); err != nil {
		return apperr.Storage(err, "remove from cart")
	}
	return nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return apperr.Storage(err, "clear cart")
	}
	return nil
}

// Reconcile recomputes every line's availability against live stock,
// persists the flags that changed, and returns the cart split into available
// and sold-out lines. Running it twice in a row writes nothing the second
// time.
func (s *Service) Reconcile(ctx context.Context, userID string) (*View, error) {
	lines, err := s.repo.ListWithStock(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "load cart")
	}

	var changes []AvailabilityChange
	for i := range lines {
		available := IsAvailable(lines[i])
		if available != lines[i].Available {
			changes = append(changes, AvailabilityChange{LineID: lines[i].ID, Available: available})
		}
		lines[i].Available = available
	}
	if len(changes) > 0 {
		if err := s.repo.SetAvailability(ctx, changes); err != nil {
			return nil, apperr.Storage(err, "persist cart availability")
		}
		zctx.From(ctx).Debug("Cart availability refreshed",
			zap.String("user_id", userID),
			zap.Int("changed", len(changes)),
		)
	}

	view := &View{
		Items:      make([]Line, 0, len(lines)),
		SoldOut:    make([]Line, 0),
		GrandTotal: decimal.Zero,
	}
	for _, l := range lines {
		if l.Available {
			view.Items = append(view.Items, l)
		} else {
			view.SoldOut = append(view.SoldOut, l)
		}
	}

	q, err := s.pricing.Quote(PricingLines(view.Items), nil, false)
	if err != nil {
		return nil, err
	}
	view.GrandTotal = q.GrandTotal
	return view, nil
}

// IsAvailable reports whether the line's size still exists and has enough
// stock for the requested quantity.
func IsAvailable(l Line) bool {
	return l.SizeExists && l.Stock >= l.Quantity
}

// PricingLines converts cart lines to pricing engine input.
func PricingLines(lines []Line) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		out[i] = pricing.Line{
			ProductID:       l.ProductID,
			Size:            l.Size,
			MRP:             l.MRP,
			DiscountPercent: l.DiscountPercent,
			Quantity:        l.Quantity,
		}
	}
	return out
}
