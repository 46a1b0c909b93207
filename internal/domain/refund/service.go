package refund

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Service implements back-office transitions of the refund ledger. Every
// transition is a plain overwrite of the current status.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a refund Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Process marks the refund as paid back to the original payment source.
func (s *Service) Process(ctx context.Context, id int64) (*Refund, error) {
	now := s.now()
	return s.setRefund(ctx, id, StatusProcessed, MessageProcessed, &now)
}

// Accept marks a returned item as received and pending refund.
func (s *Service) Accept(ctx context.Context, id int64) (*Refund, error) {
	return s.setRefund(ctx, id, StatusAccepted, MessageAccepted, nil)
}

// Decline fails the refund with message, or a default message when empty.
func (s *Service) Decline(ctx context.Context, id int64, message string) (*Refund, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = MessageDeclined
	}
	return s.setRefund(ctx, id, StatusFailed, message, nil)
}

// ApproveReturn overwrites the return request status with approved.
func (s *Service) ApproveReturn(ctx context.Context, id int64) (*ReturnRequest, error) {
	return s.setReturn(ctx, id, RequestApproved)
}

func (s *Service) ProcessReturn(ctx context.Context, id int64) (*ReturnRequest, error) {
	return s.setReturn(ctx, id, RequestProcessed)
}

func (s *Service) RejectReturn(ctx context.Context, id int64) (*ReturnRequest, error) {
	return s.setReturn(ctx, id, RequestRejected)
}

func (s *Service) ApproveExchange(ctx context.Context, id int64) (*ExchangeRequest, error) {
	return s.setExchange(ctx, id, RequestApproved)
}

func (s *Service) ProcessExchange(ctx context.Context, id int64) (*ExchangeRequest, error) {
	return s.setExchange(ctx, id, RequestProcessed)
}

func (s *Service) RejectExchange(ctx context.Context, id int64) (*ExchangeRequest, error) {
	return s.setExchange(ctx, id, RequestRejected)
}

// Refunds lists refunds, newest first.
func (s *Service) Refunds(ctx context.Context, f Filter) ([]Refund, error) {
	out, err := s.repo.ListRefunds(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err, "list refunds")
	}
	return out, nil
}

// Returns lists return requests, newest first.
func (s *Service) Returns(ctx context.Context, f Filter) ([]ReturnRequest, error) {
	out, err := s.repo.ListReturns(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err, "list return requests")
	}
	return out, nil
}

// Exchanges lists exchange requests, newest first.
func (s *Service) Exchanges(ctx context.Context, f Filter) ([]ExchangeRequest, error) {
	out, err := s.repo.ListExchanges(ctx, f)
	if err != nil {
		return nil, apperr.Storage(err, "list exchange requests")
	}
	return out, nil
}

func (s *Service) setRefund(ctx context.Context, id int64, status Status, message string, date *time.Time) (*Refund, error) {
	r, err := s.repo.SetRefundStatus(ctx, id, status, message, date)
	if err != nil {
		return nil, apperr.Storage(err, "update refund")
	}
	zctx.From(ctx).Info("Refund status updated",
		zap.Int64("refund_id", id),
		zap.String("status", string(status)),
	)
	return r, nil
}

func (s *Service) setReturn(ctx context.Context, id int64, status RequestStatus) (*ReturnRequest, error) {
	r, err := s.repo.SetReturnStatus(ctx, id, status)
	if err != nil {
		return nil, apperr.Storage(err, "update return request")
	}
	zctx.From(ctx).Info("Return request updated",
		zap.Int64("return_id", id),
		zap.String("status", string(status)),
	)
	return r, nil
}

func (s *Service) setExchange(ctx context.Context, id int64, status RequestStatus) (*ExchangeRequest, error) {
	r, err := s.repo.SetExchangeStatus(ctx, id, status)
	if err != nil {
		return nil, apperr.Storage(err, "update exchange request")
	}
	zctx.From(ctx).Info("Exchange request updated",
		zap.Int64("exchange_id", id),
		zap.String("status", string(status)),
	)
	return r, nil
}
