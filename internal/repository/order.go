package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

const (
	orderColumns = `o.id, o.public_id, o.user_id, o.gateway_order_id, o.amount, o.coupon_code,
		o.coupon_discount, o.delivery_address, o.delivery_pin, o.recipient_name, o.recipient_contact,
		o.created_at`

	detailColumns = `d.id, d.order_id, d.product_id, d.name, d.size, d.quantity, d.price, d.title, d.image,
		d.product_status, d.is_cancelled, d.is_exchanged, d.is_returned, d.tracking_id, d.tracking_link,
		s.order_status, s.order_type, s.estimate_delivery, s.delivered_date, s.date`

	unflagged = `NOT (d.is_cancelled OR d.is_exchanged OR d.is_returned)`
)

const (
	getOrderByPublicIDSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.public_id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE ($1 = '' OR o.user_id = $1)
			AND ($2 = '' OR EXISTS (
				SELECT 1 FROM order_details d WHERE d.order_id = o.id AND d.product_status = $2
			))
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT NULLIF($3::int, 0) OFFSET $4`

	listOrderDetailsSQL = `SELECT ` + detailColumns + `
		FROM order_details d JOIN order_statuses s ON s.detail_id = d.id
		WHERE d.order_id = ANY($1) ORDER BY d.order_id, d.id`

	markShippedSQL = `WITH updated AS (
			UPDATE order_details d SET product_status = 'shipped', tracking_id = $2, tracking_link = $3
			WHERE d.order_id = $1 AND ` + unflagged + `
			RETURNING d.id
		)
		UPDATE order_statuses SET order_status = 'shipped', date = NOW()
		WHERE detail_id IN (SELECT id FROM updated)`

	markDeliveredSQL = `WITH updated AS (
			UPDATE order_details d SET product_status = 'delivered', tracking_id = '', tracking_link = ''
			WHERE d.order_id = $1 AND ` + unflagged + `
			RETURNING d.id
		)
		UPDATE order_statuses SET order_status = 'delivered', delivered_date = $2, date = $2
		WHERE detail_id IN (SELECT id FROM updated)`

	setOrderStatusSQL = `UPDATE order_statuses SET order_status = $2, date = NOW()
		WHERE detail_id IN (SELECT id FROM order_details WHERE order_id = $1)`

	setProductStatusSQL = `UPDATE order_details d SET product_status = $2
		WHERE d.order_id = $1 AND ` + unflagged
)

const (
	createPaymentSQL = `INSERT INTO payments (user_id, gateway_order_id, gateway_payment_id, signature, amount, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	createOrderSQL = `INSERT INTO orders (public_id, user_id, gateway_order_id, amount, coupon_code, coupon_discount,
			delivery_address, delivery_pin, recipient_name, recipient_contact, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	createOrderDetailSQL = `INSERT INTO order_details (order_id, product_id, name, size, quantity, price, title, image, product_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	createOrderStatusSQL = `INSERT INTO order_statuses (detail_id, order_status, order_type, estimate_delivery, date)
		VALUES ($1, $2, $3, $4, $5)`

	clearCheckoutSQL = `DELETE FROM checkouts WHERE user_id = $1`

	paymentIntentSQL = `SELECT id, user_id, gateway_order_id, amount, currency, receipt, created_at
		FROM payment_intents WHERE gateway_order_id = $1`

	paymentForOrderSQL = `SELECT p.id, p.user_id, p.gateway_order_id, p.gateway_payment_id, p.signature,
			p.amount, p.mode, p.status, p.created_at
		FROM payments p JOIN orders o ON o.gateway_order_id = p.gateway_order_id
		WHERE o.id = $1 ORDER BY p.id LIMIT 1`

	lockDetailSQL = `SELECT ` + detailColumns + `
		FROM order_details d JOIN order_statuses s ON s.detail_id = d.id
		WHERE d.order_id = $1 AND d.id = $2
		FOR UPDATE OF d`

	lockDetailsSQL = `SELECT ` + detailColumns + `
		FROM order_details d JOIN order_statuses s ON s.detail_id = d.id
		WHERE d.order_id = $1 ORDER BY d.id
		FOR UPDATE OF d`

	setDetailStateSQL = `UPDATE order_details SET product_status = $2,
			is_cancelled = is_cancelled OR $3,
			is_returned = is_returned OR $4,
			is_exchanged = is_exchanged OR $5
		WHERE id = $1`

	setLineStatusSQL = `UPDATE order_statuses SET order_status = $2, order_type = $3, date = NOW()
		WHERE detail_id = $1`

	createRefundSQL = `INSERT INTO refunds (order_id, detail_id, user_id, refund_status, refund_amount, payment_id,
			payment_method, refund_reason, return_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	createReturnSQL = `INSERT INTO return_requests (order_id, detail_id, user_id, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	createExchangeSQL = `INSERT INTO exchange_requests (order_id, detail_id, user_id, reason, size, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Tx         = (*orderTx)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// WithinTx runs fn inside a transaction.
func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

// GetByPublicID returns an order with its details.
func (r *OrderRepository) GetByPublicID(ctx context.Context, publicID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByPublicIDSQL, publicID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", publicID, err)
	}
	o, err := exactlyOne(rows, scanOrder, order.ErrNotFound, "getting order %q", publicID)
	if err != nil {
		return nil, err
	}
	list := []order.Order{*o}
	if err := r.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID)
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL, f.UserID, string(f.Status), f.Limit, f.Offset)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachDetails(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *OrderRepository) attachDetails(ctx context.Context, list []order.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	byID := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		byID[o.ID] = i
	}
	rows, err := r.pool.Query(ctx, listOrderDetailsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order details: %w", err)
	}
	details, err := pgx.CollectRows(rows, scanDetail)
	if err != nil {
		return fmt.Errorf("listing order details: %w", err)
	}
	for _, d := range details {
		i := byID[d.OrderID]
		list[i].Details = append(list[i].Details, d)
	}
	return nil
}

// MarkShipped sets tracking and the shipped status on unflagged lines.
func (r *OrderRepository) MarkShipped(ctx context.Context, orderID int64, trackingID, trackingLink string) (int64, error) {
	tag, err := r.pool.Exec(ctx, markShippedSQL, orderID, trackingID, trackingLink)
	if err != nil {
		return 0, fmt.Errorf("shipping order %d: %w", orderID, err)
	}
	return tag.RowsAffected(), nil
}

// MarkDelivered sets the delivered status and date on unflagged lines.
func (r *OrderRepository) MarkDelivered(ctx context.Context, orderID int64, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, markDeliveredSQL, orderID, at)
	if err != nil {
		return 0, fmt.Errorf("delivering order %d: %w", orderID, err)
	}
	return tag.RowsAffected(), nil
}

// SetStatus overwrites the order status of every line and the product status
// of unflagged lines.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID int64, orderStatus string, productStatus order.ProductStatus) (int64, error) {
	var n int64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setOrderStatusSQL, orderID, orderStatus); err != nil {
			return fmt.Errorf("setting order status of %d: %w", orderID, err)
		}
		tag, err := tx.Exec(ctx, setProductStatusSQL, orderID, string(productStatus))
		if err != nil {
			return fmt.Errorf("setting product status of %d: %w", orderID, err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	err := t.tx.QueryRow(ctx, createPaymentSQL,
		p.UserID, p.GatewayOrderID, p.GatewayPaymentID, p.Signature, p.Amount, p.Mode, p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrDuplicate
		}
		return fmt.Errorf("creating payment %q: %w", p.GatewayPaymentID, err)
	}
	return nil
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, createOrderSQL,
		o.PublicID, o.UserID, o.GatewayOrderID, o.Amount, o.CouponCode, o.CouponDiscount,
		o.DeliveryAddress, o.DeliveryPin, o.RecipientName, o.RecipientContact, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.PublicID, err)
	}

	for i := range o.Details {
		d := &o.Details[i]
		d.OrderID = o.ID
		err := t.tx.QueryRow(ctx, createOrderDetailSQL,
			o.ID, d.ProductID, d.Name, d.Size, d.Quantity, d.Price, d.Title, d.Image, string(d.ProductStatus),
		).Scan(&d.ID)
		if err != nil {
			return fmt.Errorf("creating order detail %q: %w", d.ProductID, err)
		}
		if _, err := t.tx.Exec(ctx, createOrderStatusSQL,
			d.ID, d.Status.OrderStatus, d.Status.OrderType, d.Status.EstimateDelivery, d.Status.Date,
		); err != nil {
			return fmt.Errorf("creating status of detail %d: %w", d.ID, err)
		}
	}
	return nil
}

func (t *orderTx) ClearCheckout(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, clearCheckoutSQL, userID); err != nil {
		return fmt.Errorf("clearing checkout of %q: %w", userID, err)
	}
	if _, err := t.tx.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func (t *orderTx) PaymentIntent(ctx context.Context, gatewayOrderID string) (*payment.Intent, error) {
	var in payment.Intent
	err := t.tx.QueryRow(ctx, paymentIntentSQL, gatewayOrderID).Scan(
		&in.ID, &in.UserID, &in.GatewayOrderID, &in.Amount, &in.Currency, &in.Receipt, &in.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrUnknownIntent
		}
		return nil, fmt.Errorf("getting payment intent %q: %w", gatewayOrderID, err)
	}
	return &in, nil
}

func (t *orderTx) PaymentForOrder(ctx context.Context, orderID int64) (*payment.Payment, error) {
	var p payment.Payment
	err := t.tx.QueryRow(ctx, paymentForOrderSQL, orderID).Scan(
		&p.ID, &p.UserID, &p.GatewayOrderID, &p.GatewayPaymentID, &p.Signature,
		&p.Amount, &p.Mode, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment of order %d: %w", orderID, err)
	}
	return &p, nil
}

func (t *orderTx) LockDetail(ctx context.Context, orderID, detailID int64) (*order.Detail, error) {
	rows, err := t.tx.Query(ctx, lockDetailSQL, orderID, detailID)
	if err != nil {
		return nil, fmt.Errorf("locking detail %d: %w", detailID, err)
	}
	return exactlyOne(rows, scanDetail, order.ErrDetailNotFound, "locking detail %d", detailID)
}

func (t *orderTx) LockDetails(ctx context.Context, orderID int64) ([]order.Detail, error) {
	rows, err := t.tx.Query(ctx, lockDetailsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("locking details of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanDetail)
}

func (t *orderTx) SetDetailState(ctx context.Context, detailID int64, status order.ProductStatus, flag order.Flag) error {
	_, err := t.tx.Exec(ctx, setDetailStateSQL, detailID, string(status),
		flag == order.FlagCancelled, flag == order.FlagReturned, flag == order.FlagExchanged,
	)
	if err != nil {
		return fmt.Errorf("updating detail %d: %w", detailID, err)
	}
	return nil
}

func (t *orderTx) SetLineStatus(ctx context.Context, detailID int64, orderStatus, orderType string) error {
	if _, err := t.tx.Exec(ctx, setLineStatusSQL, detailID, orderStatus, orderType); err != nil {
		return fmt.Errorf("updating status of detail %d: %w", detailID, err)
	}
	return nil
}

func (t *orderTx) CreateRefund(ctx context.Context, rf *refund.Refund) error {
	err := t.tx.QueryRow(ctx, createRefundSQL,
		rf.OrderID, rf.DetailID, rf.UserID, string(rf.Status), rf.Amount, rf.PaymentID,
		rf.PaymentMethod, rf.Reason, rf.Message,
	).Scan(&rf.ID, &rf.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return refund.ErrDuplicate
		}
		return fmt.Errorf("creating refund for detail %d: %w", rf.DetailID, err)
	}
	return nil
}

func (t *orderTx) CreateReturn(ctx context.Context, rr *refund.ReturnRequest) error {
	err := t.tx.QueryRow(ctx, createReturnSQL,
		rr.OrderID, rr.DetailID, rr.UserID, rr.Reason, string(rr.Status),
	).Scan(&rr.ID, &rr.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating return request for detail %d: %w", rr.DetailID, err)
	}
	return nil
}

func (t *orderTx) CreateExchange(ctx context.Context, er *refund.ExchangeRequest) error {
	err := t.tx.QueryRow(ctx, createExchangeSQL,
		er.OrderID, er.DetailID, er.UserID, er.Reason, er.Size, string(er.Status),
	).Scan(&er.ID, &er.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating exchange request for detail %d: %w", er.DetailID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.PublicID, &o.UserID, &o.GatewayOrderID, &o.Amount, &o.CouponCode,
		&o.CouponDiscount, &o.DeliveryAddress, &o.DeliveryPin, &o.RecipientName, &o.RecipientContact,
		&o.CreatedAt,
	)
	return o, err
}

func scanDetail(row pgx.CollectableRow) (order.Detail, error) {
	var (
		d      order.Detail
		status string
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.ProductID, &d.Name, &d.Size, &d.Quantity, &d.Price, &d.Title, &d.Image,
		&status, &d.IsCancelled, &d.IsExchanged, &d.IsReturned, &d.TrackingID, &d.TrackingLink,
		&d.Status.OrderStatus, &d.Status.OrderType, &d.Status.EstimateDelivery, &d.Status.DeliveredDate, &d.Status.Date,
	)
	d.ProductStatus = order.ProductStatus(status)
	return d, err
}
