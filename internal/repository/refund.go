package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/refund"
)

const (
	refundColumns = `id, order_id, detail_id, user_id, refund_status, refund_amount, payment_id,
		payment_method, refund_reason, return_message, refund_date, created_at`
	returnColumns   = `id, order_id, detail_id, user_id, reason, status, created_at`
	exchangeColumns = `id, order_id, detail_id, user_id, reason, size, status, created_at`
)

const (
	setRefundStatusSQL = `UPDATE refunds SET refund_status = $2, return_message = $3,
			refund_date = COALESCE($4, refund_date)
		WHERE id = $1 RETURNING ` + refundColumns

	setReturnStatusSQL = `UPDATE return_requests SET status = $2
		WHERE id = $1 RETURNING ` + returnColumns

	setExchangeStatusSQL = `UPDATE exchange_requests SET status = $2
		WHERE id = $1 RETURNING ` + exchangeColumns

	listRefundsSQL = `SELECT ` + refundColumns + ` FROM refunds
		WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC, id DESC LIMIT NULLIF($2::int, 0)`

	listReturnsSQL = `SELECT ` + returnColumns + ` FROM return_requests
		WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC, id DESC LIMIT NULLIF($2::int, 0)`

	listExchangesSQL = `SELECT ` + exchangeColumns + ` FROM exchange_requests
		WHERE ($1 = '' OR user_id = $1) ORDER BY created_at DESC, id DESC LIMIT NULLIF($2::int, 0)`
)

var _ refund.Repository = (*RefundRepository)(nil)

// RefundRepository implements refund.Repository backed by PostgreSQL.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository returns a RefundRepository that uses the given pool.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

// SetRefundStatus updates a refund's status and message.
func (r *RefundRepository) SetRefundStatus(ctx context.Context, id int64, status refund.Status, message string, refundDate *time.Time) (*refund.Refund, error) {
	rows, err := r.pool.Query(ctx, setRefundStatusSQL, id, string(status), message, refundDate)
	if err != nil {
		return nil, fmt.Errorf("updating refund %d: %w", id, err)
	}
	return exactlyOne(rows, scanRefund, refund.ErrNotFound, "updating refund %d", id)
}

// SetReturnStatus updates a return request's status.
func (r *RefundRepository) SetReturnStatus(ctx context.Context, id int64, status refund.RequestStatus) (*refund.ReturnRequest, error) {
	rows, err := r.pool.Query(ctx, setReturnStatusSQL, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("updating return request %d: %w", id, err)
	}
	return exactlyOne(rows, scanReturn, refund.ErrReturnNotFound, "updating return request %d", id)
}

// SetExchangeStatus updates an exchange request's status.
func (r *RefundRepository) SetExchangeStatus(ctx context.Context, id int64, status refund.RequestStatus) (*refund.ExchangeRequest, error) {
	rows, err := r.pool.Query(ctx, setExchangeStatusSQL, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("updating exchange request %d: %w", id, err)
	}
	return exactlyOne(rows, scanExchange, refund.ErrExchangeNotFound, "updating exchange request %d", id)
}

// ListRefunds returns refunds, newest first.
func (r *RefundRepository) ListRefunds(ctx context.Context, f refund.Filter) ([]refund.Refund, error) {
	rows, err := r.pool.Query(ctx, listRefundsSQL, f.UserID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing refunds: %w", err)
	}
	return pgx.CollectRows(rows, scanRefund)
}

// ListReturns returns return requests, newest first.
func (r *RefundRepository) ListReturns(ctx context.Context, f refund.Filter) ([]refund.ReturnRequest, error) {
	rows, err := r.pool.Query(ctx, listReturnsSQL, f.UserID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing return requests: %w", err)
	}
	return pgx.CollectRows(rows, scanReturn)
}

// ListExchanges returns exchange requests, newest first.
func (r *RefundRepository) ListExchanges(ctx context.Context, f refund.Filter) ([]refund.ExchangeRequest, error) {
	rows, err := r.pool.Query(ctx, listExchangesSQL, f.UserID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing exchange requests: %w", err)
	}
	return pgx.CollectRows(rows, scanExchange)
}

// exactlyOne collects a single row, mapping pgx.ErrNoRows to notFound.
func exactlyOne[T any](rows pgx.Rows, scan pgx.RowToFunc[T], notFound error, format string, args ...any) (*T, error) {
	v, err := pgx.CollectExactlyOneRow(rows, scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf(format+": %w", append(args, err)...)
	}
	return &v, nil
}

func scanRefund(row pgx.CollectableRow) (refund.Refund, error) {
	var (
		rf     refund.Refund
		status string
	)
	err := row.Scan(
		&rf.ID, &rf.OrderID, &rf.DetailID, &rf.UserID, &status, &rf.Amount, &rf.PaymentID,
		&rf.PaymentMethod, &rf.Reason, &rf.Message, &rf.RefundDate, &rf.CreatedAt,
	)
	rf.Status = refund.Status(status)
	return rf, err
}

func scanReturn(row pgx.CollectableRow) (refund.ReturnRequest, error) {
	var (
		rr     refund.ReturnRequest
		status string
	)
	err := row.Scan(&rr.ID, &rr.OrderID, &rr.DetailID, &rr.UserID, &rr.Reason, &status, &rr.CreatedAt)
	rr.Status = refund.RequestStatus(status)
	return rr, err
}

func scanExchange(row pgx.CollectableRow) (refund.ExchangeRequest, error) {
	var (
		er     refund.ExchangeRequest
		status string
	)
	err := row.Scan(&er.ID, &er.OrderID, &er.DetailID, &er.UserID, &er.Reason, &er.Size, &status, &er.CreatedAt)
	er.Status = refund.RequestStatus(status)
	return er, err
}
