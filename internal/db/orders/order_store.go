package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ordergate/internal/orders"
)

// OrderStore persists orders and their items in Postgres.
type OrderStore struct {
	db    *sql.DB
	newID func() string
}

var _ orders.Repository = (*OrderStore)(nil)

// NewOrderStore constructs an OrderStore backed by Postgres.
func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db, newID: uuid.NewString}
}

// NewOrderStoreWithSchema initializes the schema then returns the store.
func NewOrderStoreWithSchema(ctx context.Context, db *sql.DB) (*OrderStore, error) {
	store := NewOrderStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates order tables if they do not exist.
func (s *OrderStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			seq BIGSERIAL UNIQUE,
			status TEXT NOT NULL,
			amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
			currency CHAR(3) NOT NULL,
			transaction_id TEXT,
			idempotency_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			sku TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			PRIMARY KEY (order_id, position)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// Create inserts the order and its items in one transaction and assigns the
// order's ID and CreatedAt.
func (s *OrderStore) Create(ctx context.Context, order *orders.Order) (string, error) {
	id := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, status, amount_cents, currency, transaction_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		id, string(order.Status), order.AmountCents, order.Currency,
		nullString(order.TransactionID), nullString(order.IdempotencyKey),
	)
	if err := row.Scan(&order.CreatedAt); err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, sku, quantity)
			VALUES ($1, $2, $3, $4)`,
			id, i, item.SKU, item.Quantity,
		); err != nil {
			return "", fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	order.ID = id
	return id, nil
}

// Get loads one order with its items. Malformed ids are reported as not found.
func (s *OrderStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, orders.ErrNotFound
	}

	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, status, amount_cents, currency, transaction_id, idempotency_key, created_at
		FROM orders
		WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orders.ErrNotFound
		}
		return nil, err
	}

	byOrder, err := s.loadItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = byOrder[order.ID]
	return order, nil
}

// List returns one page of orders, newest first, and the total count.
func (s *OrderStore) List(ctx context.Context, page, pageSize int) ([]*orders.Order, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if page < 1 || pageSize < 1 {
		return []*orders.Order{}, total, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, amount_cents, currency, transaction_id, idempotency_key, created_at
		FROM orders
		ORDER BY seq DESC
		LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*orders.Order{}
	var ids []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	byOrder, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, order := range out {
		order.Items = byOrder[order.ID]
	}
	return out, total, nil
}

// Ping checks database connectivity.
func (s *OrderStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *OrderStore) loadItems(ctx context.Context, ids []string) (map[string][]orders.Item, error) {
	out := make(map[string][]orders.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, sku, quantity
		FROM order_items
		WHERE order_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY order_id, position`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    orders.Item
		)
		if err := rows.Scan(&orderID, &item.SKU, &item.Quantity); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*orders.Order, error) {
	var (
		order          orders.Order
		status         string
		transactionID  sql.NullString
		idempotencyKey sql.NullString
	)
	if err := row.Scan(&order.ID, &status, &order.AmountCents, &order.Currency, &transactionID, &idempotencyKey, &order.CreatedAt); err != nil {
		return nil, err
	}
	order.Status = orders.Status(status)
	order.TransactionID = transactionID.String
	order.IdempotencyKey = idempotencyKey.String
	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
