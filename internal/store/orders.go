package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type orderRepo struct {
	ext sqlx.ExtContext
}

// isUniqueViolation reports a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, status, shipping_address, billing_address, payment_method, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, r.ext, o, query,
		o.UserID, o.TotalAmount, o.Status, o.ShippingAddress, o.BillingAddress, o.PaymentMethod, o.IdempotencyKey)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *orderRepo) GetForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, r.ext, &o,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, r.ext, &o, "SELECT * FROM orders WHERE id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, r.ext, &o,
		"SELECT * FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	res, err := r.ext.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, r.ext, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

func (r *orderRepo) CreateItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return sqlx.GetContext(ctx, r.ext, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

func (r *orderRepo) Items(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, r.ext, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}
