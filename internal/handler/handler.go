// Package handler exposes the storefront services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/refund"
	"github.com/xenking/storefront/internal/domain/shipping"
)

// ProductService is implemented by *repository.ProductRepository.
type ProductService interface {
	List(ctx context.Context) ([]product.Product, error)
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// CartService is implemented by *cart.Service.
type CartService interface {
	Reconcile(ctx context.Context, userID string) (*cart.View, error)
	Add(ctx context.Context, req cart.AddRequest) (*cart.Line, error)
	UpdateQuantity(ctx context.Context, key cart.Key, qty int) error
	Remove(ctx context.Context, key cart.Key) error
	Clear(ctx context.Context, userID string) error
}

// CouponService is implemented by *coupon.Service.
type CouponService interface {
	ListAvailable(ctx context.Context, userID string) ([]coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, req coupon.CreateRequest) (*coupon.Coupon, error)
	AddCondition(ctx context.Context, code string, cond coupon.Condition) (*coupon.Condition, error)
	Remove(ctx context.Context, code string) error
	Toggle(ctx context.Context, code string) (*coupon.Coupon, error)
}

// CheckoutService is implemented by *checkout.Service.
type CheckoutService interface {
	Get(ctx context.Context, userID string) (*checkout.Checkout, error)
	Snapshot(ctx context.Context, userID string, giftWrap bool) (*checkout.Checkout, error)
	ApplyCoupon(ctx context.Context, userID, code string) (*checkout.Checkout, error)
	RemoveCoupon(ctx context.Context, userID string) (*checkout.Checkout, error)
	Finalize(ctx context.Context, userID, code string, giftWrap *bool) (*checkout.Checkout, error)
}

// PaymentService is implemented by *payment.Service.
type PaymentService interface {
	Initiate(ctx context.Context, userID string) (*payment.Intent, error)
}

// OrderService is implemented by *order.Service.
type OrderService interface {
	Place(ctx context.Context, req order.PlaceRequest) (*order.Order, error)
	Get(ctx context.Context, userID, publicID string) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	CancelOrder(ctx context.Context, userID, publicID, reason string) ([]order.Detail, error)
	CancelItem(ctx context.Context, userID, publicID string, detailID int64, reason string) (*order.Detail, error)
	RequestReturn(ctx context.Context, userID, publicID string, detailID int64, reason string) (*order.Detail, error)
	RequestExchange(ctx context.Context, userID, publicID string, detailID int64, reason, size string) (*order.Detail, error)

	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	Ship(ctx context.Context, publicID, trackingID, trackingLink string) (*order.Order, error)
	Deliver(ctx context.Context, publicID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, publicID, orderStatus string, productStatus order.ProductStatus) (*order.Order, error)
}

// RefundService is implemented by *refund.Service.
type RefundService interface {
	Refunds(ctx context.Context, f refund.Filter) ([]refund.Refund, error)
	Returns(ctx context.Context, f refund.Filter) ([]refund.ReturnRequest, error)
	Exchanges(ctx context.Context, f refund.Filter) ([]refund.ExchangeRequest, error)

	Process(ctx context.Context, id int64) (*refund.Refund, error)
	Accept(ctx context.Context, id int64) (*refund.Refund, error)
	Decline(ctx context.Context, id int64, message string) (*refund.Refund, error)

	ApproveReturn(ctx context.Context, id int64) (*refund.ReturnRequest, error)
	ProcessReturn(ctx context.Context, id int64) (*refund.ReturnRequest, error)
	RejectReturn(ctx context.Context, id int64) (*refund.ReturnRequest, error)

	ApproveExchange(ctx context.Context, id int64) (*refund.ExchangeRequest, error)
	ProcessExchange(ctx context.Context, id int64) (*refund.ExchangeRequest, error)
	RejectExchange(ctx context.Context, id int64) (*refund.ExchangeRequest, error)
}

// ShippingService is implemented by *shipping.Service.
type ShippingService interface {
	Handoff(ctx context.Context, req shipping.HandoffRequest) (*order.Order, error)
}

// Services groups the domain services served by the Handler.
type Services struct {
	Products  ProductService
	Carts     CartService
	Coupons   CouponService
	Checkouts CheckoutService
	Payments  PaymentService
	Orders    OrderService
	Refunds   RefundService
	Shipping  ShippingService
}

// Handler serves the storefront API.
type Handler struct {
	Services
	auth *Authenticator
}

// NewHandler constructs a Handler.
func NewHandler(svc Services, auth *Authenticator) *Handler {
	return &Handler{Services: svc, auth: auth}
}

// Routes returns the API router, mounted under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.auth.Authenticate)

		r.Get("/products", h.listProducts)
		r.Get("/products/{product}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/cart", h.getCart)
			r.Post("/cart", h.addToCart)
			r.Patch("/cart", h.updateCart)
			r.Delete("/cart", h.removeFromCart)

			r.Get("/coupons/available", h.availableCoupons)

			r.Get("/checkout", h.getCheckout)
			r.Post("/checkout", h.snapshotCheckout)
			r.Post("/checkout/apply-coupon", h.applyCoupon)
			r.Delete("/checkout/coupon", h.removeCoupon)
			r.Post("/checkout/finalize", h.finalizeCheckout)

			r.Post("/payment/initiate", h.initiatePayment)
			r.Post("/payment/verify-payment", h.verifyPayment)

			r.Get("/orders", h.listOrders)
			r.Route("/orders/{order}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Post("/cancel", h.cancelOrder)
				r.Post("/details/{detail}/cancel", h.cancelItem)
				r.Post("/details/{detail}/return", h.returnItem)
				r.Post("/details/{detail}/exchange", h.exchangeItem)
			})

			r.Get("/refunds", h.listRefunds)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/coupons", h.adminListCoupons)
			r.Post("/coupons", h.adminCreateCoupon)
			r.Delete("/coupons/{code}", h.adminRemoveCoupon)
			r.Post("/coupons/{code}/toggle", h.adminToggleCoupon)
			r.Post("/coupons/{code}/conditions", h.adminAddCondition)

			r.Get("/orders", h.adminListOrders)
			r.Post("/orders/{order}/ship", h.adminShipOrder)
			r.Post("/orders/{order}/deliver", h.adminDeliverOrder)
			r.Patch("/orders/{order}/status", h.adminUpdateOrderStatus)
			r.Post("/orders/{order}/shipments", h.adminHandoff)

			r.Get("/refunds", h.adminListRefunds)
			r.Post("/refunds/{id}/process", h.adminRefundAction(RefundService.Process))
			r.Post("/refunds/{id}/accept", h.adminRefundAction(RefundService.Accept))
			r.Post("/refunds/{id}/decline", h.adminDeclineRefund)

			r.Get("/returns", h.adminListReturns)
			r.Post("/returns/{id}/approve", adminRequestAction(h, RefundService.ApproveReturn, toReturnDTO))
			r.Post("/returns/{id}/process", adminRequestAction(h, RefundService.ProcessReturn, toReturnDTO))
			r.Post("/returns/{id}/reject", adminRequestAction(h, RefundService.RejectReturn, toReturnDTO))

			r.Get("/exchanges", h.adminListExchanges)
			r.Post("/exchanges/{id}/approve", adminRequestAction(h, RefundService.ApproveExchange, toExchangeDTO))
			r.Post("/exchanges/{id}/process", adminRequestAction(h, RefundService.ProcessExchange, toExchangeDTO))
			r.Post("/exchanges/{id}/reject", adminRequestAction(h, RefundService.RejectExchange, toExchangeDTO))
		})
	})
	return r
}
