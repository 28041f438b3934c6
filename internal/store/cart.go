package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

type cartRepo struct {
	ext sqlx.ExtContext
}

func (r *cartRepo) GetItem(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, r.ext, &item,
		"SELECT * FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepo) GetItemByID(ctx context.Context, userID, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, r.ext, &item,
		"SELECT * FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert inserts the line or replaces its quantity when the
// (user, product) pair already exists.
func (r *cartRepo) Upsert(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, r.ext, item, query,
		item.UserID, item.ProductID, item.Quantity)
}

func (r *cartRepo) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	res, err := r.ext.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3",
		quantity, itemID, userID)
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

func (r *cartRepo) Delete(ctx context.Context, userID, itemID int64) error {
	res, err := r.ext.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
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

func (r *cartRepo) Lines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	query := `
		SELECT c.id, c.product_id, c.quantity,
		       p.name, p.price, p.sale_price, p.is_sale, p.image_path, p.stock_quantity
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC, c.id DESC`

	lines := []models.CartLine{}
	err := sqlx.SelectContext(ctx, r.ext, &lines, query, userID)
	return lines, err
}

func (r *cartRepo) Count(ctx context.Context, userID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.ext, &count,
		"SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1", userID)
	return count, err
}
