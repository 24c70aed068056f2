package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/lib/pq"
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

func (c *Credentials) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

const orderColumns = `id, user_id, customer_name, idempotency_key, total_amount, status,
	shipping_name, shipping_phone, shipping_address, items, created_at, updated_at`

const (
	insertOrderQuery = `INSERT INTO orders (user_id, customer_name, idempotency_key, total_amount, status,
	shipping_name, shipping_phone, shipping_address, items)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (idempotency_key) DO NOTHING
	RETURNING id, created_at, updated_at`

	insertEventQuery = `INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`

	selectOrderByIDQuery  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	selectOrderByKeyQuery = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	lockOrderQuery        = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	listUserOrdersQuery   = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	listAllOrdersQuery    = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	updateStatusQuery = `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`

	selectEventsQuery = `SELECT id, aggregate_id, event_type, payload, created_at
	FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`
	markEventQuery = `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`
)

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(cred *Credentials) (*PostgresOrderRepository, error) {
	db, err := sql.Open("postgres", cred.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresOrderRepository{db: db}, nil
}

// NewPostgresOrderRepositoryFromDB wraps an already opened pool.
func NewPostgresOrderRepositoryFromDB(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) RunMigrations() error {
	return runOrderMigrations(r.db)
}

func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, insertOrderQuery,
		order.UserID,
		order.CustomerName,
		order.IdempotencyKey,
		order.TotalAmount,
		string(order.Status),
		order.Shipping.Name,
		order.Shipping.Phone,
		order.Shipping.Address,
		itemsJSON,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// idempotency key already used
		_ = tx.Rollback()
		existing, getErr := r.getOne(ctx, selectOrderByKeyQuery, order.IdempotencyKey)
		if getErr != nil {
			return fmt.Errorf("load existing order: %w", getErr)
		}
		*order = *existing
		return ErrDuplicateCheckout
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", err)
	}

	event, err := domain.NewOrderPlacedEvent(order)
	if err != nil {
		return err
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, selectOrderByIDQuery, id)
}

func (r *PostgresOrderRepository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.list(ctx, listUserOrdersQuery, userID)
}

func (r *PostgresOrderRepository) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, listAllOrdersQuery)
}

func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, check func(from domain.OrderStatus) error) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, lockOrderQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	from := order.Status
	if check != nil {
		if err := check(from); err != nil {
			return nil, err
		}
	}
	if from == status {
		return order, nil
	}

	order.Status = status
	if err := tx.QueryRowContext(ctx, updateStatusQuery, string(status), id).Scan(&order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	event, err := domain.NewStatusChangedEvent(order, from)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, selectEventsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresOrderRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, markEventQuery, id); err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}

func (r *PostgresOrderRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order     domain.Order
		status    string
		itemsJSON []byte
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.CustomerName,
		&order.IdempotencyKey,
		&order.TotalAmount,
		&status,
		&order.Shipping.Name,
		&order.Shipping.Phone,
		&order.Shipping.Address,
		&itemsJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error {
	if _, err := tx.ExecContext(ctx, insertEventQuery, event.AggregateID, event.EventType, event.Payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
