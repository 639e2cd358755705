package ordersdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"ordergate/internal/orders"
)

const (
	orderID1 = "6f1c1f2a-3b4c-4d5e-8f90-a1b2c3d4e5f6"
	orderID2 = "7a2d2e3b-4c5d-4e6f-9a01-b2c3d4e5f6a7"
)

var orderColumns = []string{"id", "status", "amount_cents", "currency", "transaction_id", "idempotency_key", "created_at"}

func newOrderMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func TestOrderStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS order_items").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	if _, err := NewOrderStoreWithSchema(context.Background(), db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func TestOrderStore_Create(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(orderID1, "CONFIRMED", int64(1500), "EUR", "tx-1", "key-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(orderID1, 0, "SKU1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(orderID1, 1, "SKU2", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	store := NewOrderStore(db)
	store.newID = func() string { return orderID1 }

	order := orders.NewOrder([]orders.Item{{SKU: "SKU1", Quantity: 2}, {SKU: "SKU2", Quantity: 1}}, 1500, "EUR")
	order.Status = orders.StatusConfirmed
	order.TransactionID = "tx-1"
	order.IdempotencyKey = "key-1"

	id, err := store.Create(context.Background(), order)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != orderID1 || order.ID != orderID1 {
		t.Fatalf("unexpected id: %s", id)
	}
	if !order.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created_at: %v", order.CreatedAt)
	}
}

func TestOrderStore_CreateRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(orderID1, "CONFIRMED", int64(100), "EUR", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	mock.ExpectClose()

	store := NewOrderStore(db)
	store.newID = func() string { return orderID1 }

	order := orders.NewOrder([]orders.Item{{SKU: "SKU1", Quantity: 1}}, 100, "EUR")
	order.Status = orders.StatusConfirmed
	if _, err := store.Create(context.Background(), order); err == nil {
		t.Fatalf("expected error")
	}
	if order.ID != "" {
		t.Fatalf("expected no id on failure, got %q", order.ID)
	}
}

func TestOrderStore_Get(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT id, status, amount_cents, currency, transaction_id, idempotency_key, created_at FROM orders WHERE id").
		WithArgs(orderID1).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow(orderID1, "CONFIRMED", int64(1500), "EUR", "tx-1", nil, created))
	mock.ExpectQuery("SELECT order_id, sku, quantity FROM order_items").
		WithArgs(orderID1).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "sku", "quantity"}).
			AddRow(orderID1, "SKU1", 2))
	mock.ExpectClose()

	store := NewOrderStore(db)
	order, err := store.Get(context.Background(), orderID1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if order.Status != orders.StatusConfirmed || order.TransactionID != "tx-1" || order.AmountCents != 1500 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].SKU != "SKU1" || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}
}

func TestOrderStore_GetNotFound(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT id, status").
		WithArgs(orderID1).
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectClose()

	store := NewOrderStore(db)
	if _, err := store.Get(context.Background(), orderID1); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_GetMalformedID(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)
	mock.ExpectClose()

	store := NewOrderStore(db)
	if _, err := store.Get(context.Background(), "not-a-uuid"); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderStore_ListNewestFirst(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT id, status, .* ORDER BY seq DESC LIMIT").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow(orderID2, "CONFIRMED", int64(200), "USD", "tx-2", nil, now).
			AddRow(orderID1, "CONFIRMED", int64(100), "EUR", "tx-1", "key-1", now.Add(-time.Minute)))
	mock.ExpectQuery("SELECT order_id, sku, quantity FROM order_items WHERE order_id IN").
		WithArgs(orderID2, orderID1).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "sku", "quantity"}).
			AddRow(orderID1, "SKU1", 1).
			AddRow(orderID2, "SKU2", 3).
			AddRow(orderID2, "SKU3", 4))
	mock.ExpectClose()

	store := NewOrderStore(db)
	page, total, err := store.List(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(page), total)
	}
	if page[0].ID != orderID2 || len(page[0].Items) != 2 {
		t.Fatalf("unexpected first order: %+v", page[0])
	}
	if page[1].IdempotencyKey != "key-1" || len(page[1].Items) != 1 {
		t.Fatalf("unexpected second order: %+v", page[1])
	}
}

func TestOrderStore_ListEmptyPage(t *testing.T) {
	db, mock, cleanup := newOrderMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, status").
		WithArgs(20, 20).
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectClose()

	store := NewOrderStore(db)
	page, total, err := store.List(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || page == nil || len(page) != 0 {
		t.Fatalf("expected empty non-nil page, got %v (%d)", page, total)
	}
}
