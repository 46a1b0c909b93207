package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order notification.
type EventType string

const (
	EventPlaced            EventType = "order.placed"
	EventItemCanceled      EventType = "order.item_canceled"
	EventReturnRequested   EventType = "order.return_requested"
	EventExchangeRequested EventType = "order.exchange_requested"
	EventShipped           EventType = "order.shipped"
	EventDelivered         EventType = "order.delivered"
)

// Event describes something that happened to an order. DetailID is zero for
// order-wide events.
type Event struct {
	Type     EventType
	OrderID  string
	UserID   string
	DetailID int64
	Status   string
	Amount   decimal.Decimal
	At       time.Time
}

// Notifier delivers events on a best-effort basis. Implementations must not
// block the caller on delivery and report no errors.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) {}
