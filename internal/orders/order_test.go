package orders

import (
	"context"
	"errors"
	"testing"
)

var callSeq int

type spyInventory struct {
	called    bool
	reserved  bool
	err       error
	callOrder int
}

func (s *spyInventory) Reserve(ctx context.Context, items []Item) (bool, error) {
	s.called = true
	s.callOrder = callSeq
	callSeq++
	return s.reserved, s.err
}

type spyPayments struct {
	calls     int
	result    ChargeResult
	err       error
	amount    int64
	currency  string
	callOrder int
}

func (s *spyPayments) Charge(ctx context.Context, amountCents int64, currency string) (ChargeResult, error) {
	s.calls++
	s.amount = amountCents
	s.currency = currency
	s.callOrder = callSeq
	callSeq++
	return s.result, s.err
}

func sampleOrder() *Order {
	return NewOrder([]Item{{SKU: "SKU1", Quantity: 2}}, 1500, "EUR")
}

func TestPlaceOrder_Success(t *testing.T) {
	callSeq = 0
	inventory := &spyInventory{reserved: true}
	payments := &spyPayments{result: ChargeResult{Paid: true, TransactionID: "tx-1"}}
	service := NewOrderService(inventory, payments)

	order, err := service.PlaceOrder(context.Background(), sampleOrder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", order.Status)
	}
	if order.TransactionID != "tx-1" {
		t.Fatalf("expected transaction id tx-1, got %q", order.TransactionID)
	}
	if payments.amount != 1500 || payments.currency != "EUR" {
		t.Fatalf("unexpected charge: %d %s", payments.amount, payments.currency)
	}
	if inventory.callOrder >= payments.callOrder {
		t.Fatalf("expected Reserve before Charge; got reserve=%d charge=%d", inventory.callOrder, payments.callOrder)
	}
}

func TestPlaceOrder_EmptyOrder(t *testing.T) {
	inventory := &spyInventory{reserved: true}
	payments := &spyPayments{}
	service := NewOrderService(inventory, payments)

	order := NewOrder(nil, 1500, "EUR")
	_, err := service.PlaceOrder(context.Background(), order)
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	if order.Status != StatusCreated {
		t.Fatalf("expected status unchanged, got %s", order.Status)
	}
	if inventory.called || payments.calls != 0 {
		t.Fatalf("expected no port calls")
	}
	if Code(err) != "EMPTY_ORDER" {
		t.Fatalf("expected EMPTY_ORDER, got %q", Code(err))
	}
}

func TestPlaceOrder_InsufficientStockSkipsCharge(t *testing.T) {
	inventory := &spyInventory{reserved: false}
	payments := &spyPayments{}
	service := NewOrderService(inventory, payments)

	order, err := service.PlaceOrder(context.Background(), sampleOrder())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if order.Status != StatusStockFailed {
		t.Fatalf("expected STOCK_FAILED, got %s", order.Status)
	}
	if payments.calls != 0 {
		t.Fatalf("expected no charge, got %d calls", payments.calls)
	}
}

func TestPlaceOrder_PaymentDeclined(t *testing.T) {
	inventory := &spyInventory{reserved: true}
	payments := &spyPayments{result: ChargeResult{Paid: false}}
	service := NewOrderService(inventory, payments)

	order, err := service.PlaceOrder(context.Background(), sampleOrder())
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if order.Status != StatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %s", order.Status)
	}
	if order.TransactionID != "" {
		t.Fatalf("expected no transaction id, got %q", order.TransactionID)
	}
}

func TestPlaceOrder_ChargeErrorKeepsCause(t *testing.T) {
	cause := errors.New("payments unreachable")
	inventory := &spyInventory{reserved: true}
	payments := &spyPayments{err: cause}
	service := NewOrderService(inventory, payments)

	order, err := service.PlaceOrder(context.Background(), sampleOrder())
	if !errors.Is(err, ErrPaymentFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected payment failure wrapping cause, got %v", err)
	}
	if order.Status != StatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %s", order.Status)
	}
}

func TestPlaceOrder_ReserveErrorLeavesCreated(t *testing.T) {
	cause := errors.New("inventory unreachable")
	inventory := &spyInventory{err: cause}
	payments := &spyPayments{}
	service := NewOrderService(inventory, payments)

	order, err := service.PlaceOrder(context.Background(), sampleOrder())
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
	if Code(err) != "" {
		t.Fatalf("expected no domain code, got %q", Code(err))
	}
	if order.Status != StatusCreated {
		t.Fatalf("expected CREATED, got %s", order.Status)
	}
	if payments.calls != 0 {
		t.Fatalf("expected no charge")
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusConfirmed, StatusStockFailed, StatusPaymentFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusStockReserved, StatusPaid} {
		if s.Terminal() {
			t.Fatalf("expected %s non-terminal", s)
		}
	}
}
