package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "idempotency:"
	finalizeAttempts   = 3
)

// RedisStore keeps idempotency records as JSON values in Redis. Keys expire
// after ttl.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps records forever.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// GetOrCreate claims key with SETNX and falls back to reading the stored record.
func (s *RedisStore) GetOrCreate(ctx context.Context, key string, payload any) (Record, bool, error) {
	hash, err := CanonicalHash(payload)
	if err != nil {
		return Record{}, false, err
	}

	rec := Record{Key: key, RequestHash: hash, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, false, err
	}

	created, err := s.client.SetNX(ctx, s.redisKey(key), data, s.ttl).Result()
	if err != nil {
		return Record{}, false, err
	}
	if created {
		return rec, false, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return Record{}, false, err
	}
	if existing.RequestHash != hash {
		return Record{}, true, ErrConflict
	}
	return existing, true, nil
}

// Get returns the record stored for key.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode idempotency record %q: %w", key, err)
	}
	return rec, nil
}

// Finalize rewrites the record under WATCH so a concurrent writer forces a retry.
func (s *RedisStore) Finalize(ctx context.Context, key string, status int, body []byte, orderID string) error {
	rkey := s.redisKey(key)
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, rkey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode idempotency record %q: %w", key, err)
		}
		rec.ResponseStatus = status
		rec.ResponseBody = body
		rec.OrderID = orderID
		next, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, next, redis.KeepTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < finalizeAttempts; i++ {
		err = s.client.Watch(ctx, update, rkey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
