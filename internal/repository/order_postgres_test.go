package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderRowColumns = []string{
	"id", "user_id", "customer_name", "idempotency_key", "total_amount", "status",
	"shipping_name", "shipping_phone", "shipping_address", "items", "created_at", "updated_at",
}

const itemsJSON = `[{"product_id":1,"product_name":"Laptop","image_url":"","unit_price":"100","quantity":2}]`

func setupMockOrders(t *testing.T) (*PostgresOrderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresOrderRepositoryFromDB(db), mock
}

func orderRow(id int64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderRowColumns).AddRow(
		id, "u1", "Alice", "cart-1:2", "200.00", status,
		"Alice", "555", "1 Main St", []byte(itemsJSON), now, now,
	)
}

func TestPostgresOrders_CreateOrder_WritesOrderAndEvent(t *testing.T) {
	repo, mock := setupMockOrders(t)
	order := newTestOrder(t, "u1", "cart-1:2")
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertOrderQuery)).
		WithArgs("u1", "A", "cart-1:2", sqlmock.AnyArg(), "Placed", "A", "1", "addr", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))
	mock.ExpectExec(regexp.QuoteMeta(insertEventQuery)).
		WithArgs("42", domain.EventOrderPlaced, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateOrder(context.Background(), order))
	assert.Equal(t, int64(42), order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_CreateOrder_DuplicateKeyReturnsExisting(t *testing.T) {
	repo, mock := setupMockOrders(t)
	order := newTestOrder(t, "u1", "cart-1:2")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertOrderQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta(selectOrderByKeyQuery)).
		WithArgs("cart-1:2").
		WillReturnRows(orderRow(7, "Placed"))

	err := repo.CreateOrder(context.Background(), order)
	assert.ErrorIs(t, err, ErrDuplicateCheckout)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, "Alice", order.CustomerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_CreateOrder_EventFailureRollsBack(t *testing.T) {
	repo, mock := setupMockOrders(t)
	order := newTestOrder(t, "u1", "cart-1:2")
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(insertOrderQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectExec(regexp.QuoteMeta(insertEventQuery)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.CreateOrder(context.Background(), order)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert outbox event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_GetOrderByID(t *testing.T) {
	repo, mock := setupMockOrders(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectOrderByIDQuery)).
		WithArgs(int64(7)).
		WillReturnRows(orderRow(7, "Shipped"))

	order, err := repo.GetOrderByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, domain.OrderStatusShipped, order.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(order.TotalAmount))
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Laptop", order.Items[0].ProductName)
	assert.Equal(t, "1 Main St", order.Shipping.Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_GetOrderByID_NotFound(t *testing.T) {
	repo, mock := setupMockOrders(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectOrderByIDQuery)).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetOrderByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_ListOrdersByUserID(t *testing.T) {
	repo, mock := setupMockOrders(t)

	now := time.Now()
	rows := sqlmock.NewRows(orderRowColumns).
		AddRow(int64(2), "u1", "Alice", "k2", "10.00", "Placed", "Alice", "555", "x", []byte(itemsJSON), now, now).
		AddRow(int64(1), "u1", "Alice", "k1", "20.00", "Delivered", "Alice", "555", "x", []byte(itemsJSON), now, now)
	mock.ExpectQuery(regexp.QuoteMeta(listUserOrdersQuery)).
		WithArgs("u1").
		WillReturnRows(rows)

	orders, err := repo.ListOrdersByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(2), orders[0].ID)
	assert.Equal(t, domain.OrderStatusDelivered, orders[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_ListOrders_Empty(t *testing.T) {
	repo, mock := setupMockOrders(t)

	mock.ExpectQuery(regexp.QuoteMeta(listAllOrdersQuery)).
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	orders, err := repo.ListOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_UpdateStatus(t *testing.T) {
	repo, mock := setupMockOrders(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOrderQuery)).
		WithArgs(int64(7)).
		WillReturnRows(orderRow(7, "Placed"))
	mock.ExpectQuery(regexp.QuoteMeta(updateStatusQuery)).
		WithArgs("Shipped", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectExec(regexp.QuoteMeta(insertEventQuery)).
		WithArgs("7", domain.EventOrderStatusChanged, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var from domain.OrderStatus
	order, err := repo.UpdateStatus(context.Background(), 7, domain.OrderStatusShipped, func(f domain.OrderStatus) error {
		from = f
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, from)
	assert.Equal(t, domain.OrderStatusShipped, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_UpdateStatus_CheckRejectsRollsBack(t *testing.T) {
	repo, mock := setupMockOrders(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOrderQuery)).
		WithArgs(int64(7)).
		WillReturnRows(orderRow(7, "Delivered"))
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), 7, domain.OrderStatusPlaced, func(from domain.OrderStatus) error {
		return domain.StrictPolicy{}.Check(from, domain.OrderStatusPlaced)
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_UpdateStatus_NotFound(t *testing.T) {
	repo, mock := setupMockOrders(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOrderQuery)).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), 9, domain.OrderStatusShipped, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrders_Outbox(t *testing.T) {
	repo, mock := setupMockOrders(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectEventsQuery)).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "created_at"}).
			AddRow(int64(1), "7", domain.EventOrderPlaced, []byte(`{}`), now))
	mock.ExpectExec(regexp.QuoteMeta(markEventQuery)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	events, err := repo.GetUnprocessedEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].AggregateID)

	require.NoError(t, repo.MarkEventAsProcessed(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
