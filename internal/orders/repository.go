package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists finalized orders.
type Repository interface {
	// Create stores order, assigns its ID and CreatedAt, and returns the ID.
	Create(ctx context.Context, order *Order) (string, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*Order, error)
	// List returns one page (1-based) of orders, newest first, and the total count.
	List(ctx context.Context, page, pageSize int) ([]*Order, int, error)
	Ping(ctx context.Context) error
}

// MemoryRepository is a process-local Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
	seq    map[string]int
	next   int
	now    func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]*Order),
		seq:    make(map[string]int),
		now:    time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, order *Order) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order.ID = uuid.NewString()
	order.CreatedAt = r.now().UTC()
	stored := cloneOrder(order)
	r.orders[order.ID] = stored
	r.next++
	r.seq[order.ID] = r.next
	return order.ID, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryRepository) List(ctx context.Context, page, pageSize int) ([]*Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Order, 0, len(r.orders))
	for _, order := range r.orders {
		all = append(all, order)
	}
	sort.Slice(all, func(i, j int) bool {
		return r.seq[all[i].ID] > r.seq[all[j].ID]
	})

	total := len(all)
	start := (page - 1) * pageSize
	if page < 1 || pageSize < 1 || start >= total {
		return []*Order{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	out := make([]*Order, 0, end-start)
	for _, order := range all[start:end] {
		out = append(out, cloneOrder(order))
	}
	return out, total, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneOrder(order *Order) *Order {
	cp := *order
	cp.Items = append([]Item(nil), order.Items...)
	return &cp
}
