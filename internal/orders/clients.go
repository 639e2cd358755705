package orders

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MaxStubQuantity is the largest per-line quantity InventoryStub approves.
const MaxStubQuantity = 10

// InventoryStub is a deterministic in-process inventory: it approves a
// reservation when every quantity lies in [1, MaxStubQuantity].
type InventoryStub struct{}

func (InventoryStub) Reserve(ctx context.Context, items []Item) (bool, error) {
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > MaxStubQuantity {
			return false, nil
		}
	}
	return true, nil
}

// PaymentsStub is a deterministic in-process payments service: it approves any
// positive amount and issues a fresh transaction id.
type PaymentsStub struct {
	NewID func() string
}

func (p PaymentsStub) Charge(ctx context.Context, amountCents int64, currency string) (ChargeResult, error) {
	if amountCents <= 0 {
		return ChargeResult{}, nil
	}
	newID := p.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return ChargeResult{Paid: true, TransactionID: newID()}, nil
}

// StaticInventory returns a fixed answer and counts calls.
type StaticInventory struct {
	mu     sync.Mutex
	answer bool
	err    error
	calls  int
	last   []Item
}

// NewStaticInventory constructs an inventory that always answers reserved.
func NewStaticInventory(reserved bool, err error) *StaticInventory {
	return &StaticInventory{answer: reserved, err: err}
}

func (s *StaticInventory) Reserve(ctx context.Context, items []Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = append([]Item(nil), items...)
	return s.answer, s.err
}

// Calls returns how many reservations were requested.
func (s *StaticInventory) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastItems returns the items of the most recent reservation.
func (s *StaticInventory) LastItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.last...)
}

// StaticPayments returns a fixed answer and counts calls.
type StaticPayments struct {
	mu     sync.Mutex
	result ChargeResult
	err    error
	calls  int
}

// NewStaticPayments constructs a payments port that always returns result.
func NewStaticPayments(result ChargeResult, err error) *StaticPayments {
	return &StaticPayments{result: result, err: err}
}

func (s *StaticPayments) Charge(ctx context.Context, amountCents int64, currency string) (ChargeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

// Calls returns how many charges were requested.
func (s *StaticPayments) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
