package order

import (
	"context"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// List returns orders for administration, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Newf(apperr.ErrValidation, "unknown status %q", f.Status)
	}
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err, "list orders")
	}
	return out, nil
}

// Lookup returns any order by its public id.
func (s *Service) Lookup(ctx context.Context, publicID string) (*Order, error) {
	o, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, apperr.Storage(err, "load order")
	}
	return o, nil
}

// Ship records tracking for the order and marks every unflagged line shipped.
func (s *Service) Ship(ctx context.Context, publicID, trackingID, trackingLink string) (*Order, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, apperr.New(apperr.ErrValidation, "tracking id is required")
	}
	o, err := s.Lookup(ctx, publicID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.MarkShipped(ctx, o.ID, trackingID, trackingLink)
	if err != nil {
		return nil, apperr.Storage(err, "mark order shipped")
	}

	zctx.From(ctx).Info("Order shipped",
		zap.String("order_id", o.PublicID),
		zap.String("tracking_id", trackingID),
		zap.Int64("lines", n),
	)
	s.notifyOrder(ctx, o, EventShipped, StatusShipped)
	return s.Lookup(ctx, publicID)
}

// Deliver marks every unflagged line delivered and clears its tracking.
func (s *Service) Deliver(ctx context.Context, publicID string) (*Order, error) {
	o, err := s.Lookup(ctx, publicID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.MarkDelivered(ctx, o.ID, s.now())
	if err != nil {
		return nil, apperr.Storage(err, "mark order delivered")
	}

	zctx.From(ctx).Info("Order delivered",
		zap.String("order_id", o.PublicID),
		zap.Int64("lines", n),
	)
	s.notifyOrder(ctx, o, EventDelivered, StatusDelivered)
	return s.Lookup(ctx, publicID)
}

// UpdateStatus overwrites the order status and the product status of every
// unflagged line.
func (s *Service) UpdateStatus(ctx context.Context, publicID, orderStatus string, productStatus ProductStatus) (*Order, error) {
	if strings.TrimSpace(orderStatus) == "" {
		return nil, apperr.New(apperr.ErrValidation, "order status is required")
	}
	if !productStatus.Valid() {
		return nil, apperr.Newf(apperr.ErrValidation, "unknown product status %q", productStatus)
	}
	o, err := s.Lookup(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.SetStatus(ctx, o.ID, orderStatus, productStatus); err != nil {
		return nil, apperr.Storage(err, "update order status")
	}
	zctx.From(ctx).Info("Order status overwritten",
		zap.String("order_id", o.PublicID),
		zap.String("order_status", orderStatus),
		zap.String("product_status", string(productStatus)),
	)
	return s.Lookup(ctx, publicID)
}

func (s *Service) notifyOrder(ctx context.Context, o *Order, t EventType, status ProductStatus) {
	s.notifier.Notify(ctx, Event{
		Type:    t,
		OrderID: o.PublicID,
		UserID:  o.UserID,
		Status:  string(status),
		Amount:  o.Amount,
		At:      s.now(),
	})
}
