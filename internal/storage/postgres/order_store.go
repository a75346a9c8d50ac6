package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemirB/order-service/internal/domain"
	"github.com/TemirB/order-service/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// EnsureSchema creates the orders table when it does not exist yet.
func (s *OrderStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *OrderStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *OrderStore) Close() error {
	s.pool.Close()
	return nil
}

// Save inserts the order. An order carrying an IdempotencyKey that is
// already stored is not inserted again; the stored row is returned instead.
func (s *OrderStore) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	products, err := storage.MarshalProducts(o.Products)
	if err != nil {
		return domain.Order{}, err
	}

	var (
		saved domain.Order
		raw   []byte
	)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO orders (products, total_amount, idempotency_key)
		VALUES ($1::jsonb, $2, NULLIF($3::text, ''))
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, products, total_amount
	`, products, o.TotalAmount, o.IdempotencyKey).Scan(&saved.ID, &raw, &saved.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) && o.IdempotencyKey != "" {
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
	err := s.pool.QueryRow(ctx, `
		SELECT id, products, total_amount FROM orders WHERE idempotency_key = $1
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
	rows, err := s.pool.Query(ctx, `
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
	err := s.pool.QueryRow(ctx, `
		SELECT id, products, total_amount FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &raw, &o.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
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

// UpdateByID replaces the patched columns. An empty patch is a no-op.
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
		args = append(args, a.Value)
		if a.Column == "products" {
			sets = append(sets, fmt.Sprintf("products = $%d::jsonb", len(args)))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, len(args)))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE orders SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *OrderStore) DeleteByID(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
