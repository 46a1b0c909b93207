package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/refund"
	"github.com/xenking/storefront/internal/domain/shipping"
)

type createCouponRequest struct {
	Code         string              `json:"code"`
	Description  string              `json:"description"`
	DiscountType string              `json:"discount_type"`
	Value        decimal.Decimal     `json:"value"`
	MaxValue     decimal.NullDecimal `json:"max_value"`
	StartDate    *time.Time          `json:"start_date"`
	EndDate      *time.Time          `json:"end_date"`
	UsageLimit   int                 `json:"usage_limit"`
	Active       *bool               `json:"active"`
	Conditions   []conditionDTO      `json:"conditions"`
}

// GET /api/v1/admin/coupons
func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toCouponDTO))
}

// POST /api/v1/admin/coupons creates a coupon and attaches the listed
// conditions. Coupons are active unless the body says otherwise.
func (h *Handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	c, err := h.Coupons.Create(r.Context(), coupon.CreateRequest{
		Code:         req.Code,
		Description:  req.Description,
		DiscountType: pricing.DiscountType(req.DiscountType),
		Value:        req.Value,
		MaxValue:     req.MaxValue,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		UsageLimit:   req.UsageLimit,
		Active:       active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, cond := range req.Conditions {
		added, err := h.Coupons.AddCondition(r.Context(), c.Code, coupon.Condition{
			Type:  coupon.ConditionType(cond.Type),
			Value: cond.Value,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		c.Conditions = append(c.Conditions, *added)
	}
	writeJSON(w, http.StatusCreated, toCouponDTO(*c))
}

// DELETE /api/v1/admin/coupons/{code}
func (h *Handler) adminRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.Remove(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/coupons/{code}/toggle
func (h *Handler) adminToggleCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Coupons.Toggle(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTO(*c))
}

// POST /api/v1/admin/coupons/{code}/conditions
func (h *Handler) adminAddCondition(w http.ResponseWriter, r *http.Request) {
	var req conditionDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cond, err := h.Coupons.AddCondition(r.Context(), chi.URLParam(r, "code"), coupon.Condition{
		Type:  coupon.ConditionType(req.Type),
		Value: req.Value,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConditionDTO(*cond))
}

// GET /api/v1/admin/orders?user_id=&status=&limit=&offset=
func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := h.Orders.List(r.Context(), order.Filter{
		UserID: q.Get("user_id"),
		Status: order.ProductStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toOrderDTO))
}

// POST /api/v1/admin/orders/{order}/ship
func (h *Handler) adminShipOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingID   string `json:"tracking_id"`
		TrackingLink string `json:"tracking_link"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Ship(r.Context(), chi.URLParam(r, "order"), req.TrackingID, req.TrackingLink)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// POST /api/v1/admin/orders/{order}/deliver
func (h *Handler) adminDeliverOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Deliver(r.Context(), chi.URLParam(r, "order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// PATCH /api/v1/admin/orders/{order}/status
func (h *Handler) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderStatus   string `json:"order_status"`
		ProductStatus string `json:"product_status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "order"), req.OrderStatus, order.ProductStatus(req.ProductStatus))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

// POST /api/v1/admin/orders/{order}/shipments books the order with the
// delivery partner.
func (h *Handler) adminHandoff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerEmail    string `json:"customer_email"`
		Landmark         string `json:"landmark"`
		State            string `json:"state"`
		City             string `json:"city"`
		SecondaryContact string `json:"secondary_contact"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Shipping.Handoff(r.Context(), shipping.HandoffRequest{
		OrderID:          chi.URLParam(r, "order"),
		CustomerEmail:    req.CustomerEmail,
		Landmark:         req.Landmark,
		State:            req.State,
		City:             req.City,
		SecondaryContact: req.SecondaryContact,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

func refundFilter(r *http.Request) (refund.Filter, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return refund.Filter{}, err
	}
	return refund.Filter{UserID: r.URL.Query().Get("user_id"), Limit: limit}, nil
}

// GET /api/v1/admin/refunds
func (h *Handler) adminListRefunds(w http.ResponseWriter, r *http.Request) {
	f, err := refundFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Refunds.Refunds(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toRefundDTO))
}

// GET /api/v1/admin/returns
func (h *Handler) adminListReturns(w http.ResponseWriter, r *http.Request) {
	f, err := refundFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Refunds.Returns(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toReturnDTO))
}

// GET /api/v1/admin/exchanges
func (h *Handler) adminListExchanges(w http.ResponseWriter, r *http.Request) {
	f, err := refundFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Refunds.Exchanges(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toExchangeDTO))
}

// adminRefundAction serves POST /api/v1/admin/refunds/{id}/process|accept.
func (h *Handler) adminRefundAction(do func(RefundService, context.Context, int64) (*refund.Refund, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		rf, err := do(h.Refunds, r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRefundDTO(*rf))
	}
}

// POST /api/v1/admin/refunds/{id}/decline
func (h *Handler) adminDeclineRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rf, err := h.Refunds.Decline(r.Context(), id, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundDTO(*rf))
}

// adminRequestAction serves the approve|process|reject transitions of
// return and exchange requests.
func adminRequestAction[T any](
	h *Handler,
	do func(RefundService, context.Context, int64) (*T, error),
	dto func(T) requestDTO,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		v, err := do(h.Refunds, r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dto(*v))
	}
}
