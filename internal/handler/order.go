package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
	DeliveryAddress  string `json:"delivery_address"`
	DeliveryPin      string `json:"delivery_pin"`
	RecipientName    string `json:"recipient_name"`
	RecipientContact string `json:"recipient_contact"`
}

// POST /api/v1/payment/verify-payment places the order for a paid checkout.
func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Place(r.Context(), order.PlaceRequest{
		UserID: userID(r),
		Payment: payment.Confirmation{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
		},
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryPin:      req.DeliveryPin,
		RecipientName:    req.RecipientName,
		RecipientContact: req.RecipientContact,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(*o))
}

// GET /api/v1/orders
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toOrderDTO))
}

// GET /api/v1/orders/{order}
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), userID(r), chi.URLParam(r, "order"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(*o))
}

type lineActionRequest struct {
	Reason string `json:"reason"`
	Size   string `json:"size"`
}

// POST /api/v1/orders/{order}/cancel cancels every cancellable line.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req lineActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	details, err := h.Orders.CancelOrder(r.Context(), userID(r), chi.URLParam(r, "order"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(details, toOrderDetailDTO))
}

// POST /api/v1/orders/{order}/details/{detail}/cancel
func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, func(req lineActionRequest, publicID string, detailID int64) (*order.Detail, error) {
		return h.Orders.CancelItem(r.Context(), userID(r), publicID, detailID, req.Reason)
	})
}

// POST /api/v1/orders/{order}/details/{detail}/return
func (h *Handler) returnItem(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, func(req lineActionRequest, publicID string, detailID int64) (*order.Detail, error) {
		return h.Orders.RequestReturn(r.Context(), userID(r), publicID, detailID, req.Reason)
	})
}

// POST /api/v1/orders/{order}/details/{detail}/exchange
func (h *Handler) exchangeItem(w http.ResponseWriter, r *http.Request) {
	h.lineAction(w, r, func(req lineActionRequest, publicID string, detailID int64) (*order.Detail, error) {
		return h.Orders.RequestExchange(r.Context(), userID(r), publicID, detailID, req.Reason, req.Size)
	})
}

func (h *Handler) lineAction(
	w http.ResponseWriter,
	r *http.Request,
	do func(req lineActionRequest, publicID string, detailID int64) (*order.Detail, error),
) {
	detailID, err := pathInt(r, "detail")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req lineActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := do(req, chi.URLParam(r, "order"), detailID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailDTO(*d))
}

// GET /api/v1/refunds
func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.Refunds.Refunds(r.Context(), refund.Filter{UserID: userID(r)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toRefundDTO))
}
