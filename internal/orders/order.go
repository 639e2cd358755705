package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyOrder indicates an order without items.
	ErrEmptyOrder = errors.New("order has no items")
	// ErrInsufficientStock indicates the inventory dependency refused the reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentFailed indicates the payments dependency declined or failed the charge.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrNotFound indicates an unknown order id.
	ErrNotFound = errors.New("order not found")
)

// Code maps a domain error to its stable detail code, or "" when err is not
// a domain error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEmptyOrder):
		return "EMPTY_ORDER"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrPaymentFailed):
		return "PAYMENT_FAILED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return ""
	}
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusStockReserved Status = "STOCK_RESERVED"
	StatusStockFailed   Status = "STOCK_FAILED"
	StatusPaid          Status = "PAID"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusConfirmed     Status = "CONFIRMED"
	StatusCancelled     Status = "CANCELLED"
)

// Terminal reports whether no further saga step can follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusStockFailed, StatusPaymentFailed, StatusCancelled:
		return true
	}
	return false
}

// Item is one order line.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Order is the aggregate driven through the saga and persisted afterwards.
// IdempotencyKey is the client key the order was placed under, if any.
type Order struct {
	ID             string
	Items          []Item
	Status         Status
	AmountCents    int64
	Currency       string
	TransactionID  string
	IdempotencyKey string
	CreatedAt      time.Time
}

// NewOrder constructs an order in CREATED state. The items slice is copied.
func NewOrder(items []Item, amountCents int64, currency string) *Order {
	return &Order{
		Items:       append([]Item(nil), items...),
		Status:      StatusCreated,
		AmountCents: amountCents,
		Currency:    currency,
	}
}

// ChargeResult is the payments dependency's answer to a charge.
type ChargeResult struct {
	Paid          bool
	TransactionID string
}

// InventoryPort reserves stock for a set of items.
type InventoryPort interface {
	Reserve(ctx context.Context, items []Item) (bool, error)
}

// PaymentsPort charges an amount in minor units.
type PaymentsPort interface {
	Charge(ctx context.Context, amountCents int64, currency string) (ChargeResult, error)
}

// OrderService runs the reserve-then-charge saga.
type OrderService struct {
	inventory InventoryPort
	payments  PaymentsPort
}

// NewOrderService constructs an OrderService.
func NewOrderService(inventory InventoryPort, payments PaymentsPort) *OrderService {
	return &OrderService{
		inventory: inventory,
		payments:  payments,
	}
}

// PlaceOrder reserves stock, then charges payment, advancing order.Status at
// each step. The order is mutated in place and returned.
//
// A reservation error leaves the order in CREATED and is returned unchanged.
// A charge error moves the order to PAYMENT_FAILED and is returned wrapped
// together with ErrPaymentFailed. Stock reserved before a failed charge is not
// released.
func (s *OrderService) PlaceOrder(ctx context.Context, order *Order) (*Order, error) {
	if order == nil || len(order.Items) == 0 {
		return order, ErrEmptyOrder
	}

	reserved, err := s.inventory.Reserve(ctx, order.Items)
	if err != nil {
		return order, fmt.Errorf("reserve stock: %w", err)
	}
	if !reserved {
		order.Status = StatusStockFailed
		return order, ErrInsufficientStock
	}
	order.Status = StatusStockReserved

	result, err := s.payments.Charge(ctx, order.AmountCents, order.Currency)
	if err != nil {
		order.Status = StatusPaymentFailed
		return order, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	if !result.Paid {
		order.Status = StatusPaymentFailed
		return order, ErrPaymentFailed
	}
	order.TransactionID = result.TransactionID
	order.Status = StatusPaid

	order.Status = StatusConfirmed
	return order, nil
}
