// Package sqlite is a pure Go relational order store for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/TemirB/order-service/internal/domain"
	"github.com/TemirB/order-service/internal/storage"
)

const DriverName = "sqlite"

//go:embed schema.sql
var schemaSQL string

type OrderStore struct {
	db *sql.DB
}

// Open opens the database at path. ":memory:" gives a private in-memory
// database that lives as long as the store.
func Open(path string) (*OrderStore, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// one connection, so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	return &OrderStore{db: db}, nil
}

func (s *OrderStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *OrderStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *OrderStore) Close() error {
	return s.db.Close()
}

// Save inserts the order. A repeated IdempotencyKey returns the row stored
// under that key instead of inserting a new one.
func (s *OrderStore) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	products, err := storage.MarshalProducts(o.Products)
	if err != nil {
		return domain.Order{}, err
	}

	var (
		saved domain.Order
		raw   []byte
	)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO orders (products, total_amount, idempotency_key)
		VALUES (?, ?, NULLIF(?, ''))
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, products, total_amount
	`, products, o.TotalAmount, o.IdempotencyKey).Scan(&saved.ID, &raw, &saved.TotalAmount)
	if errors.Is(err, sql.ErrNoRows) && o.IdempotencyKey != "" {
		return s.findByIdempotencyKey(ctx, o.IdempotencyKey)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if saved.Products, err = storage.UnmarshalProducts(raw); err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (s *OrderStore) findByIdempotencyKey(ctx context.Context, key string) (domain.Order, error) {
	var (
		o   domain.Order
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, products, total_amount FROM orders WHERE idempotency_key = ?
	`, key).Scan(&o.ID, &raw, &o.TotalAmount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order by idempotency key: %w", err)
	}
	if o.Products, err = storage.UnmarshalProducts(raw); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *OrderStore) FindAndCount(ctx context.Context) ([]domain.Order, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, products, total_amount, COUNT(*) OVER ()
		FROM orders
		ORDER BY id
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	count := 0
	for rows.Next() {
		var (
			o   domain.Order
			raw []byte
		)
		if err := rows.Scan(&o.ID, &raw, &o.TotalAmount, &count); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		if o.Products, err = storage.UnmarshalProducts(raw); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, count, nil
}

func (s *OrderStore) FindByID(ctx context.Context, id int64) (domain.Order, error) {
	var (
		o   domain.Order
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, products, total_amount FROM orders WHERE id = ?
	`, id).Scan(&o.ID, &raw, &o.TotalAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %d: %w", id, err)
	}
	if o.Products, err = storage.UnmarshalProducts(raw); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *OrderStore) UpdateByID(ctx context.Context, id int64, patch domain.OrderPatch) error {
	assignments, err := storage.PatchAssignments(patch)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}

	sets := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+1)
	for _, a := range assignments {
		sets = append(sets, a.Column+" = ?")
		args = append(args, a.Value)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE orders SET %s WHERE id = ?`, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	return requireAffected(res)
}

func (s *OrderStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
