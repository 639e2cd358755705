package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps idempotency records in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreWithSchema initializes the schema then returns the store.
func NewPostgresStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	store := NewPostgresStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the idempotency table if it does not exist. The body is
// TEXT so replays return the stored bytes unchanged.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			request_hash CHAR(64) NOT NULL,
			response_status INTEGER NOT NULL DEFAULT 0,
			response_body TEXT,
			order_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// GetOrCreate inserts a pending record for key. When the key already exists
// the row is re-read under FOR UPDATE and its hash compared with payload's.
func (s *PostgresStore) GetOrCreate(ctx context.Context, key string, payload any) (Record, bool, error) {
	hash, err := CanonicalHash(payload)
	if err != nil {
		return Record{}, false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, response_status)
		VALUES ($1, $2, 0)
		ON CONFLICT (key) DO NOTHING`,
		key, hash,
	)
	if err != nil {
		return Record{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, err
	}
	if affected == 1 {
		return Record{Key: key, RequestHash: hash, CreatedAt: time.Now().UTC()}, false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT key, request_hash, response_status, response_body, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1
		FOR UPDATE`,
		key,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, fmt.Errorf("idempotency key %q vanished after conflict", key)
		}
		return Record{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, false, err
	}

	if rec.RequestHash != hash {
		return Record{}, true, ErrConflict
	}
	return rec, true, nil
}

// Get returns the record stored for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		SELECT key, request_hash, response_status, response_body, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1`,
		key,
	))
}

// Finalize stores the terminal response for key.
func (s *PostgresStore) Finalize(ctx context.Context, key string, status int, body []byte, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_status = $2, response_body = $3, order_id = $4, updated_at = NOW()
		WHERE key = $1`,
		key, status, string(body), nullString(orderID),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec     Record
		body    sql.NullString
		orderID sql.NullString
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseStatus, &body, &orderID, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if body.Valid {
		rec.ResponseBody = []byte(body.String)
	}
	rec.OrderID = orderID.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
