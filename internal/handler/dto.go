package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/refund"
)

type cartLineDTO struct {
	ID              int64           `json:"id"`
	ProductID       string          `json:"product_id"`
	Size            string          `json:"size"`
	Variant         string          `json:"variant,omitempty"`
	Quantity        int             `json:"quantity"`
	Name            string          `json:"name"`
	Title           string          `json:"title"`
	Image           string          `json:"image"`
	Category        string          `json:"category"`
	MRP             decimal.Decimal `json:"mrp"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
	Stock           int             `json:"stock"`
	Available       bool            `json:"available"`
}

type cartDTO struct {
	Items      []cartLineDTO   `json:"items"`
	SoldOut    []cartLineDTO   `json:"added_but_soldout"`
	GrandTotal decimal.Decimal `json:"grand_total_price"`
}

func toCartLineDTO(l cart.Line) cartLineDTO {
	return cartLineDTO{
		ID:              l.ID,
		ProductID:       l.ProductID,
		Size:            l.Size,
		Variant:         l.Variant,
		Quantity:        l.Quantity,
		Name:            l.Name,
		Title:           l.Title,
		Image:           l.Image,
		Category:        l.Category,
		MRP:             l.MRP,
		DiscountPercent: l.DiscountPercent,
		SellingPrice:    l.SellingPrice,
		Stock:           l.Stock,
		Available:       l.Available,
	}
}

func toCartDTO(v *cart.View) cartDTO {
	return cartDTO{
		Items:      mapSlice(v.Items, toCartLineDTO),
		SoldOut:    mapSlice(v.SoldOut, toCartLineDTO),
		GrandTotal: v.GrandTotal,
	}
}

type conditionDTO struct {
	ID    int64  `json:"id,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type couponDTO struct {
	Code         string              `json:"code"`
	Description  string              `json:"description"`
	DiscountType string              `json:"discount_type"`
	Value        decimal.Decimal     `json:"value"`
	MaxValue     decimal.NullDecimal `json:"max_value"`
	StartDate    *time.Time          `json:"start_date,omitempty"`
	EndDate      *time.Time          `json:"end_date,omitempty"`
	UsageLimit   int                 `json:"usage_limit"`
	TimesUsed    int                 `json:"times_used"`
	Active       bool                `json:"active"`
	Conditions   []conditionDTO      `json:"conditions"`
}

func toConditionDTO(c coupon.Condition) conditionDTO {
	return conditionDTO{ID: c.ID, Type: string(c.Type), Value: c.Value}
}

func toCouponDTO(c coupon.Coupon) couponDTO {
	return couponDTO{
		Code:         c.Code,
		Description:  c.Description,
		DiscountType: string(c.DiscountType),
		Value:        c.Value,
		MaxValue:     c.MaxValue,
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		UsageLimit:   c.UsageLimit,
		TimesUsed:    c.TimesUsed,
		Active:       c.Active,
		Conditions:   mapSlice(c.Conditions, toConditionDTO),
	}
}

type checkoutDetailDTO struct {
	ProductID       string          `json:"product_id"`
	Size            string          `json:"size"`
	Quantity        int             `json:"quantity"`
	Name            string          `json:"name"`
	Title           string          `json:"title"`
	Image           string          `json:"image"`
	MRP             decimal.Decimal `json:"mrp"`
	ProductDiscount decimal.Decimal `json:"product_discount"`
	CouponDiscount  decimal.Decimal `json:"coupon_discount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
}

type checkoutDTO struct {
	GiftWrap             bool                `json:"gift_wrap"`
	WrappingCost         decimal.Decimal     `json:"wrapping_cost"`
	TotalBeforeCoupon    decimal.Decimal     `json:"total_before_coupon"`
	TotalProductDiscount decimal.Decimal     `json:"total_product_discount"`
	CouponCode           string              `json:"coupon_code,omitempty"`
	CouponDiscount       decimal.Decimal     `json:"coupon_discount"`
	TotalPaymentAmount   decimal.Decimal     `json:"total_payment_amount"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Details              []checkoutDetailDTO `json:"details"`
}

func toCheckoutDTO(c *checkout.Checkout) checkoutDTO {
	return checkoutDTO{
		GiftWrap:             c.GiftWrap,
		WrappingCost:         c.WrappingCost,
		TotalBeforeCoupon:    c.TotalBeforeCoupon,
		TotalProductDiscount: c.TotalProductDiscount,
		CouponCode:           c.CouponCode,
		CouponDiscount:       c.CouponDiscount,
		TotalPaymentAmount:   c.TotalPaymentAmount,
		UpdatedAt:            c.UpdatedAt,
		Details: mapSlice(c.Details, func(d checkout.Detail) checkoutDetailDTO {
			return checkoutDetailDTO{
				ProductID:       d.ProductID,
				Size:            d.Size,
				Quantity:        d.Quantity,
				Name:            d.Name,
				Title:           d.Title,
				Image:           d.Image,
				MRP:             d.MRP,
				ProductDiscount: d.ProductDiscount,
				CouponDiscount:  d.CouponDiscount,
				FinalPrice:      d.FinalPrice,
			}
		}),
	}
}

type intentDTO struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Receipt        string          `json:"receipt"`
}

func toIntentDTO(in *payment.Intent) intentDTO {
	return intentDTO{
		GatewayOrderID: in.GatewayOrderID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Receipt:        in.Receipt,
	}
}

type orderDetailDTO struct {
	ID               int64           `json:"id"`
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	Title            string          `json:"title"`
	Image            string          `json:"image"`
	Size             string          `json:"size"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	ProductStatus    string          `json:"product_status"`
	IsCancelled      bool            `json:"is_cancelled"`
	IsExchanged      bool            `json:"is_exchanged"`
	IsReturned       bool            `json:"is_returned"`
	TrackingID       string          `json:"tracking_id,omitempty"`
	TrackingLink     string          `json:"tracking_link,omitempty"`
	OrderStatus      string          `json:"order_status"`
	OrderType        string          `json:"order_type"`
	EstimateDelivery time.Time       `json:"estimate_delivery"`
	DeliveredDate    *time.Time      `json:"delivered_date,omitempty"`
}

func toOrderDetailDTO(d order.Detail) orderDetailDTO {
	return orderDetailDTO{
		ID:               d.ID,
		ProductID:        d.ProductID,
		Name:             d.Name,
		Title:            d.Title,
		Image:            d.Image,
		Size:             d.Size,
		Quantity:         d.Quantity,
		Price:            d.Price,
		ProductStatus:    string(d.ProductStatus),
		IsCancelled:      d.IsCancelled,
		IsExchanged:      d.IsExchanged,
		IsReturned:       d.IsReturned,
		TrackingID:       d.TrackingID,
		TrackingLink:     d.TrackingLink,
		OrderStatus:      d.Status.OrderStatus,
		OrderType:        d.Status.OrderType,
		EstimateDelivery: d.Status.EstimateDelivery,
		DeliveredDate:    d.Status.DeliveredDate,
	}
}

type orderDTO struct {
	OrderID          string           `json:"order_id"`
	UserID           string           `json:"user_id,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	CouponCode       string           `json:"coupon_code,omitempty"`
	CouponDiscount   decimal.Decimal  `json:"coupon_discount"`
	DeliveryAddress  string           `json:"delivery_address"`
	DeliveryPin      string           `json:"delivery_pin"`
	RecipientName    string           `json:"recipient_name"`
	RecipientContact string           `json:"recipient_contact"`
	CreatedAt        time.Time        `json:"created_at"`
	Details          []orderDetailDTO `json:"details"`
}

func toOrderDTO(o order.Order) orderDTO {
	return orderDTO{
		OrderID:          o.PublicID,
		UserID:           o.UserID,
		Amount:           o.Amount,
		CouponCode:       o.CouponCode,
		CouponDiscount:   o.CouponDiscount,
		DeliveryAddress:  o.DeliveryAddress,
		DeliveryPin:      o.DeliveryPin,
		RecipientName:    o.RecipientName,
		RecipientContact: o.RecipientContact,
		CreatedAt:        o.CreatedAt,
		Details:          mapSlice(o.Details, toOrderDetailDTO),
	}
}

type refundDTO struct {
	ID            int64           `json:"id"`
	DetailID      int64           `json:"detail_id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentID     string          `json:"payment_id"`
	PaymentMethod string          `json:"payment_method"`
	Reason        string          `json:"reason"`
	Message       string          `json:"message"`
	RefundDate    *time.Time      `json:"refund_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toRefundDTO(r refund.Refund) refundDTO {
	return refundDTO{
		ID:            r.ID,
		DetailID:      r.DetailID,
		UserID:        r.UserID,
		Status:        string(r.Status),
		Amount:        r.Amount,
		PaymentID:     r.PaymentID,
		PaymentMethod: r.PaymentMethod,
		Reason:        r.Reason,
		Message:       r.Message,
		RefundDate:    r.RefundDate,
		CreatedAt:     r.CreatedAt,
	}
}

type requestDTO struct {
	ID        int64     `json:"id"`
	DetailID  int64     `json:"detail_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Size      string    `json:"size,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toReturnDTO(r refund.ReturnRequest) requestDTO {
	return requestDTO{
		ID:        r.ID,
		DetailID:  r.DetailID,
		UserID:    r.UserID,
		Reason:    r.Reason,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

func toExchangeDTO(r refund.ExchangeRequest) requestDTO {
	return requestDTO{
		ID:        r.ID,
		DetailID:  r.DetailID,
		UserID:    r.UserID,
		Reason:    r.Reason,
		Size:      r.Size,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

// mapSlice converts every element and never returns nil, so empty lists
// encode as [].
func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
