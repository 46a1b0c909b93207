// Package shipping hands orders over to the delivery partner.
package shipping

import (
	"context"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
)

// ErrNothingToShip is returned when no line of the order can be shipped.
var ErrNothingToShip = apperr.New(apperr.ErrNotEligible, "no items in this order can be shipped")

// PayModePrepaid marks shipments that were paid online.
const PayModePrepaid = "PREPAID"

// Item is one line handed to the carrier.
type Item struct {
	ProductID string
	Name      string
	SKU       string
	Price     decimal.Decimal
	Size      string
	Quantity  int
}

// Shipment is a forward order for the carrier.
type Shipment struct {
	ClientOrderNo    string
	CustomerName     string
	CustomerEmail    string
	Address          string
	Landmark         string
	State            string
	City             string
	Pincode          string
	Contact          string
	SecondaryContact string
	Items            []Item
	WeightKg         decimal.Decimal
	PayMode          string
	TotalAmount      decimal.Decimal
}

// Result is the carrier's acknowledgement of a shipment.
type Result struct {
	AWB          string
	TrackingLink string
}

// Carrier creates forward shipments at the delivery partner.
type Carrier interface {
	CreateShipment(ctx context.Context, s Shipment) (*Result, error)
}

// Orders is the part of the order lifecycle shipping needs.
type Orders interface {
	Lookup(ctx context.Context, publicID string) (*order.Order, error)
	Ship(ctx context.Context, publicID, trackingID, trackingLink string) (*order.Order, error)
}

// HandoffRequest holds address details the order itself does not carry.
type HandoffRequest struct {
	OrderID          string
	CustomerEmail    string
	Landmark         string
	State            string
	City             string
	SecondaryContact string
}

// Service hands orders to the carrier.
type Service struct {
	carrier    Carrier
	orders     Orders
	unitWeight decimal.Decimal
}

// NewService creates a shipping Service. unitWeightKg is the weight assumed
// for one unit of any product.
func NewService(carrier Carrier, orders Orders, unitWeightKg decimal.Decimal) *Service {
	return &Service{
		carrier:    carrier,
		orders:     orders,
		unitWeight: unitWeightKg,
	}
}

// Handoff books a shipment for the confirmed, unflagged lines of the order
// and marks them shipped with the carrier's AWB as tracking id.
func (s *Service) Handoff(ctx context.Context, req HandoffRequest) (*order.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, apperr.New(apperr.ErrValidation, "order id is required")
	}
	o, err := s.orders.Lookup(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	shipment := s.build(o, req)
	if len(shipment.Items) == 0 {
		return nil, ErrNothingToShip
	}

	res, err := s.carrier.CreateShipment(ctx, shipment)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternal, err, "failed to place the shipment")
	}

	zctx.From(ctx).Info("Shipment booked",
		zap.String("order_id", o.PublicID),
		zap.String("awb", res.AWB),
		zap.Int("items", len(shipment.Items)),
		zap.String("weight", shipment.WeightKg.StringFixed(2)),
	)
	return s.orders.Ship(ctx, o.PublicID, res.AWB, res.TrackingLink)
}

func (s *Service) build(o *order.Order, req HandoffRequest) Shipment {
	sh := Shipment{
		ClientOrderNo:    o.PublicID,
		CustomerName:     o.RecipientName,
		CustomerEmail:    req.CustomerEmail,
		Address:          o.DeliveryAddress,
		Landmark:         req.Landmark,
		State:            req.State,
		City:             req.City,
		Pincode:          o.DeliveryPin,
		Contact:          o.RecipientContact,
		SecondaryContact: req.SecondaryContact,
		WeightKg:         decimal.Zero,
		PayMode:          PayModePrepaid,
		TotalAmount:      o.Amount,
	}
	for _, d := range o.Details {
		if d.Flagged() || d.ProductStatus != order.StatusConfirmed {
			continue
		}
		sh.Items = append(sh.Items, Item{
			ProductID: d.ProductID,
			Name:      d.Name,
			SKU:       d.ProductID + "-" + d.Size,
			Price:     d.Price,
			Size:      d.Size,
			Quantity:  d.Quantity,
		})
		sh.WeightKg = sh.WeightKg.Add(s.unitWeight.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	return sh
}
