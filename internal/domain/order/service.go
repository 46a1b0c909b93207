package order

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

// Config holds order lifecycle policy.
type Config struct {
	// ReturnWindowDays is how many calendar days after placement a line may
	// still be cancelled, returned or exchanged.
	ReturnWindowDays int
	// EstimateDeliveryDays is added to the placement date for the delivery
	// estimate.
	EstimateDeliveryDays int
	// PaymentMethod is recorded on refunds.
	PaymentMethod string
}

// CheckoutReader returns the user's current checkout.
type CheckoutReader interface {
	Get(ctx context.Context, userID string) (*checkout.Checkout, error)
}

// PlaceRequest holds the payment confirmation and delivery details.
type PlaceRequest struct {
	UserID           string
	Payment          payment.Confirmation
	DeliveryAddress  string
	DeliveryPin      string
	RecipientName    string
	RecipientContact string
}

// Service encapsulates the order lifecycle.
type Service struct {
	repo      Repository
	verifier  payment.Verifier
	checkouts CheckoutReader
	notifier  Notifier
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// NewService creates an order Service.
func NewService(
	repo Repository,
	verifier payment.Verifier,
	checkouts CheckoutReader,
	notifier Notifier,
	cfg Config,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:      repo,
		verifier:  verifier,
		checkouts: checkouts,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
}

// Place verifies the payment and materializes the user's checkout into an
// order. The gateway order must be one opened for this user at the current
// checkout total. Payment, order, lines and status rows are written and the
// checkout and cart cleared in one transaction.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Order, error) {
	if err := validatePlace(req); err != nil {
		return nil, err
	}
	if !s.verifier.Verify(req.Payment) {
		zctx.From(ctx).Warn("Payment signature mismatch",
			zap.String("user_id", req.UserID),
			zap.String("gateway_order_id", req.Payment.GatewayOrderID),
		)
		return nil, payment.ErrInvalidSignature
	}

	co, err := s.checkouts.Get(ctx, req.UserID)
	if err != nil {
		return nil, apperr.Storage(err, "load checkout")
	}
	if len(co.Details) == 0 {
		return nil, checkout.ErrNoCheckoutItems
	}
	if co.Stale() {
		return nil, checkout.ErrStale
	}

	now := s.now()
	o := &Order{
		PublicID:         s.newID(),
		UserID:           req.UserID,
		GatewayOrderID:   req.Payment.GatewayOrderID,
		Amount:           co.TotalPaymentAmount,
		CouponCode:       co.CouponCode,
		CouponDiscount:   co.CouponDiscount,
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryPin:      req.DeliveryPin,
		RecipientName:    req.RecipientName,
		RecipientContact: req.RecipientContact,
		CreatedAt:        now,
		Details:          make([]Detail, 0, len(co.Details)),
	}
	estimate := now.AddDate(0, 0, s.cfg.EstimateDeliveryDays)
	for _, d := range co.Details {
		o.Details = append(o.Details, Detail{
			ProductID:     d.ProductID,
			Name:          d.Name,
			Size:          d.Size,
			Quantity:      d.Quantity,
			Price:         d.FinalPrice,
			Title:         d.Title,
			Image:         d.Image,
			ProductStatus: StatusConfirmed,
			Status: LineStatus{
				OrderStatus:      string(StatusConfirmed),
				OrderType:        TypePurchase,
				EstimateDelivery: estimate,
				Date:             now,
			},
		})
	}

	pay := &payment.Payment{
		UserID:           req.UserID,
		GatewayOrderID:   req.Payment.GatewayOrderID,
		GatewayPaymentID: req.Payment.GatewayPaymentID,
		Signature:        req.Payment.Signature,
		Amount:           co.TotalPaymentAmount,
		Mode:             payment.ModeOnline,
		Status:           payment.StatusCaptured,
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		in, err := tx.PaymentIntent(ctx, req.Payment.GatewayOrderID)
		if err != nil {
			return err
		}
		if in.UserID != req.UserID {
			return payment.ErrUnknownIntent
		}
		if !in.Amount.Equal(co.TotalPaymentAmount) {
			zctx.From(ctx).Warn("Payment amount differs from checkout",
				zap.String("user_id", req.UserID),
				zap.String("gateway_order_id", in.GatewayOrderID),
				zap.String("intent_amount", in.Amount.StringFixed(2)),
				zap.String("checkout_amount", co.TotalPaymentAmount.StringFixed(2)),
			)
			return payment.ErrAmountMismatch
		}
		if err := tx.CreatePayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.ClearCheckout(ctx, req.UserID)
	})
	if err != nil {
		return nil, apperr.Storage(err, "place order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.PublicID),
		zap.String("user_id", o.UserID),
		zap.Int("lines", len(o.Details)),
		zap.String("amount", o.Amount.StringFixed(2)),
	)
	s.notifier.Notify(ctx, Event{
		Type:    EventPlaced,
		OrderID: o.PublicID,
		UserID:  o.UserID,
		Status:  string(StatusConfirmed),
		Amount:  o.Amount,
		At:      now,
	})
	return o, nil
}

func validatePlace(req PlaceRequest) error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("razorpay_order_id", req.Payment.GatewayOrderID)
	check("razorpay_payment_id", req.Payment.GatewayPaymentID)
	check("razorpay_signature", req.Payment.Signature)
	check("delivery_address", req.DeliveryAddress)
	check("delivery_pin_code", req.DeliveryPin)
	check("recipient_name", req.RecipientName)
	check("recipient_contact", req.RecipientContact)
	if len(missing) > 0 {
		return apperr.Newf(apperr.ErrValidation, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// lineAction is a shopper-initiated transition of a single line.
type lineAction struct {
	to        ProductStatus
	flag      Flag
	orderType string
	message   string
	event     EventType
	// record writes the return or exchange request row, if any.
	record func(ctx context.Context, tx Tx, o *Order, d *Detail) error
}

var cancelAction = lineAction{
	to:        StatusCanceled,
	flag:      FlagCancelled,
	orderType: TypeCancel,
	message:   refund.MessageCancelInitiated,
	event:     EventItemCanceled,
}

// CancelItem cancels one confirmed line and records its refund.
func (s *Service) CancelItem(ctx context.Context, userID, publicID string, detailID int64, reason string) (*Detail, error) {
	if err := requireReason(reason, "cancel reason"); err != nil {
		return nil, err
	}
	return s.transitionLine(ctx, userID, publicID, detailID, reason, cancelAction)
}

// RequestReturn opens a return for one delivered line and records its refund.
func (s *Service) RequestReturn(ctx context.Context, userID, publicID string, detailID int64, reason string) (*Detail, error) {
	if err := requireReason(reason, "return reason"); err != nil {
		return nil, err
	}
	return s.transitionLine(ctx, userID, publicID, detailID, reason, lineAction{
		to:        StatusReturnRequested,
		flag:      FlagReturned,
		orderType: TypeReturn,
		message:   refund.MessageReturnInitiated,
		event:     EventReturnRequested,
		record: func(ctx context.Context, tx Tx, o *Order, d *Detail) error {
			return tx.CreateReturn(ctx, &refund.ReturnRequest{
				OrderID:  o.ID,
				DetailID: d.ID,
				UserID:   o.UserID,
				Reason:   reason,
				Status:   refund.RequestRequested,
			})
		},
	})
}

// RequestExchange opens an exchange of one delivered line for another size
// and records its refund.
func (s *Service) RequestExchange(ctx context.Context, userID, publicID string, detailID int64, reason, size string) (*Detail, error) {
	if err := requireReason(reason, "exchange reason"); err != nil {
		return nil, err
	}
	size = strings.TrimSpace(size)
	if size == "" {
		return nil, apperr.New(apperr.ErrValidation, "exchange size is required")
	}
	return s.transitionLine(ctx, userID, publicID, detailID, reason, lineAction{
		to:        StatusExchangeRequested,
		flag:      FlagExchanged,
		orderType: TypeExchange,
		message:   refund.MessageExchangeInitiated,
		event:     EventExchangeRequested,
		record: func(ctx context.Context, tx Tx, o *Order, d *Detail) error {
			return tx.CreateExchange(ctx, &refund.ExchangeRequest{
				OrderID:  o.ID,
				DetailID: d.ID,
				UserID:   o.UserID,
				Reason:   reason,
				Size:     size,
				Status:   refund.RequestRequested,
			})
		},
	})
}

// CancelOrder cancels every confirmed line of the order. Lines in any other
// state are left untouched.
func (s *Service) CancelOrder(ctx context.Context, userID, publicID, reason string) ([]Detail, error) {
	if err := requireReason(reason, "cancel reason"); err != nil {
		return nil, err
	}
	o, err := s.ownedOrder(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(o.CreatedAt); err != nil {
		return nil, err
	}

	var canceled []Detail
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		pay, err := tx.PaymentForOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		lines, err := tx.LockDetails(ctx, o.ID)
		if err != nil {
			return err
		}
		for i := range lines {
			d := &lines[i]
			if d.Flagged() || !d.ProductStatus.CanTransition(cancelAction.to) {
				continue
			}
			if err := s.applyLine(ctx, tx, o, d, pay, reason, cancelAction); err != nil {
				return err
			}
			canceled = append(canceled, *d)
		}
		if len(canceled) == 0 {
			return ErrNothingToCancel
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err, "cancel order")
	}

	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", o.PublicID),
		zap.Int("lines", len(canceled)),
	)
	for _, d := range canceled {
		s.notifyLine(ctx, o, &d, cancelAction.event)
	}
	return canceled, nil
}

func (s *Service) transitionLine(
	ctx context.Context,
	userID, publicID string,
	detailID int64,
	reason string,
	a lineAction,
) (*Detail, error) {
	o, err := s.ownedOrder(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(o.CreatedAt); err != nil {
		return nil, err
	}

	var line *Detail
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		pay, err := tx.PaymentForOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		d, err := tx.LockDetail(ctx, o.ID, detailID)
		if err != nil {
			return err
		}
		if d.Flagged() || !d.ProductStatus.CanTransition(a.to) {
			return apperr.Newf(apperr.ErrNotEligible,
				"item cannot be moved to %s from %s", a.to, d.ProductStatus)
		}
		if err := s.applyLine(ctx, tx, o, d, pay, reason, a); err != nil {
			return err
		}
		line = d
		return nil
	})
	if err != nil {
		return nil, apperr.Storage(err, "update order item")
	}

	zctx.From(ctx).Info("Order item updated",
		zap.String("order_id", o.PublicID),
		zap.Int64("detail_id", line.ID),
		zap.String("status", string(line.ProductStatus)),
	)
	s.notifyLine(ctx, o, line, a.event)
	return line, nil
}

// applyLine performs the writes of a guarded transition: state and flag,
// status row, request row and refund.
func (s *Service) applyLine(ctx context.Context, tx Tx, o *Order, d *Detail, pay *payment.Payment, reason string, a lineAction) error {
	if err := tx.SetDetailState(ctx, d.ID, a.to, a.flag); err != nil {
		return err
	}
	if err := tx.SetLineStatus(ctx, d.ID, string(a.to), a.orderType); err != nil {
		return err
	}
	if a.record != nil {
		if err := a.record(ctx, tx, o, d); err != nil {
			return err
		}
	}
	if err := tx.CreateRefund(ctx, &refund.Refund{
		OrderID:       o.ID,
		DetailID:      d.ID,
		UserID:        o.UserID,
		Status:        refund.StatusInitiated,
		Amount:        d.Price,
		PaymentID:     pay.GatewayPaymentID,
		PaymentMethod: s.cfg.PaymentMethod,
		Reason:        reason,
		Message:       a.message,
	}); err != nil {
		return err
	}

	d.ProductStatus = a.to
	switch a.flag {
	case FlagCancelled:
		d.IsCancelled = true
	case FlagReturned:
		d.IsReturned = true
	case FlagExchanged:
		d.IsExchanged = true
	}
	d.Status.OrderStatus = string(a.to)
	d.Status.OrderType = a.orderType
	return nil
}

func (s *Service) notifyLine(ctx context.Context, o *Order, d *Detail, t EventType) {
	s.notifier.Notify(ctx, Event{
		Type:     t,
		OrderID:  o.PublicID,
		UserID:   o.UserID,
		DetailID: d.ID,
		Status:   string(d.ProductStatus),
		Amount:   d.Price,
		At:       s.now(),
	})
}

// checkWindow rejects orders older than the configured window, counting
// started days.
func (s *Service) checkWindow(created time.Time) error {
	days := math.Ceil(s.now().Sub(created).Hours() / 24)
	if days > float64(s.cfg.ReturnWindowDays) {
		return ErrWindowExpired
	}
	return nil
}

func (s *Service) ownedOrder(ctx context.Context, userID, publicID string) (*Order, error) {
	o, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		return nil, apperr.Storage(err, "load order")
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func requireReason(reason, field string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.Newf(apperr.ErrValidation, "%s is required", field)
	}
	return nil
}

// Get returns one of the user's orders.
func (s *Service) Get(ctx context.Context, userID, publicID string) (*Order, error) {
	return s.ownedOrder(ctx, userID, publicID)
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "list orders")
	}
	return out, nil
}
