package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
}

func (req cartItemRequest) key(userID string) cart.Key {
	return cart.Key{UserID: userID, ProductID: req.ProductID, Size: req.Size, Variant: req.Variant}
}

// GET /api/v1/cart
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Carts.Reconcile(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartDTO(v))
}

// POST /api/v1/cart
func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	line, err := h.Carts.Add(r.Context(), cart.AddRequest{
		UserID:    userID(r),
		ProductID: req.ProductID,
		Size:      req.Size,
		Variant:   req.Variant,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartLineDTO(*line))
}

// PATCH /api/v1/cart sets the quantity of a line.
func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Carts.UpdateQuantity(r.Context(), req.key(userID(r)), req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.getCart(w, r)
}

// DELETE /api/v1/cart removes one line, or the whole cart when the body
// names no product.
func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var err error
	if req.ProductID == "" {
		err = h.Carts.Clear(r.Context(), userID(r))
	} else {
		err = h.Carts.Remove(r.Context(), req.key(userID(r)))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/coupons/available
func (h *Handler) availableCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coupons.ListAvailable(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toCouponDTO))
}

// GET /api/v1/checkout
func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	c, err := h.Checkouts.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// POST /api/v1/checkout
func (h *Handler) snapshotCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GiftWrap bool `json:"gift_wrap"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Checkouts.Snapshot(r.Context(), userID(r), req.GiftWrap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// POST /api/v1/checkout/apply-coupon
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, badRequest("code is required"))
		return
	}
	c, err := h.Checkouts.ApplyCoupon(r.Context(), userID(r), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// DELETE /api/v1/checkout/coupon
func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.Checkouts.RemoveCoupon(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// POST /api/v1/checkout/finalize
func (h *Handler) finalizeCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		GiftWrap *bool  `json:"gift_wrap"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Checkouts.Finalize(r.Context(), userID(r), req.Code, req.GiftWrap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(c))
}

// POST /api/v1/payment/initiate
func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	in, err := h.Payments.Initiate(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntentDTO(in))
}
