// Package events publishes order lifecycle events to Kafka and live subscribers.
package events

import (
	"context"
	"time"

	"ordergate/internal/orders"
	"ordergate/internal/reqctx"
)

const (
	TypeOrderConfirmed     = "order.confirmed"
	TypeOrderStockFailed   = "order.stock_failed"
	TypeOrderPaymentFailed = "order.payment_failed"
)

// OrderEvent describes a saga outcome.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id,omitempty"`
	Status        string    `json:"status"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher delivers order events.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// NewOrderEvent builds the event for order's current status. ok is false when
// the status has no event.
func NewOrderEvent(ctx context.Context, order *orders.Order, at time.Time) (OrderEvent, bool) {
	var typ string
	switch order.Status {
	case orders.StatusConfirmed:
		typ = TypeOrderConfirmed
	case orders.StatusStockFailed:
		typ = TypeOrderStockFailed
	case orders.StatusPaymentFailed:
		typ = TypeOrderPaymentFailed
	default:
		return OrderEvent{}, false
	}
	return OrderEvent{
		Type:          typ,
		OrderID:       order.ID,
		Status:        string(order.Status),
		AmountCents:   order.AmountCents,
		Currency:      order.Currency,
		TransactionID: order.TransactionID,
		RequestID:     reqctx.RequestID(ctx),
		At:            at.UTC(),
	}, true
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, OrderEvent) error { return nil }
