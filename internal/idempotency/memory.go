package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, key string, payload any) (Record, bool, error) {
	hash, err := CanonicalHash(payload)
	if err != nil {
		return Record{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if rec.RequestHash != hash {
			return Record{}, true, ErrConflict
		}
		return copyRecord(rec), true, nil
	}
	rec := Record{Key: key, RequestHash: hash, CreatedAt: s.now().UTC()}
	s.records[key] = rec
	return rec, false, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Finalize(ctx context.Context, key string, status int, body []byte, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ErrNotFound
	}
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	rec.OrderID = orderID
	s.records[key] = rec
	return nil
}

func copyRecord(rec Record) Record {
	rec.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	return rec
}
