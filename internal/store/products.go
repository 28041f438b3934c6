package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

type productRepo struct {
	ext sqlx.ExtContext
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := sqlx.GetContext(ctx, r.ext, &p, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDForUpdate takes a row lock so concurrent checkouts against the
// same product serialize on its stock.
func (r *productRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := sqlx.GetContext(ctx, r.ext, &p, "SELECT * FROM products WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) List(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	query := "SELECT * FROM products"
	args := []interface{}{}
	where := ""

	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		where = fmt.Sprintf(" WHERE category_id = $%d", len(args))
	}
	if f.OnSale {
		if where == "" {
			where = " WHERE is_sale = TRUE"
		} else {
			where += " AND is_sale = TRUE"
		}
	}
	query += where + " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	products := []models.Product{}
	err := sqlx.SelectContext(ctx, r.ext, &products, query, args...)
	return products, err
}

func (r *productRepo) Categories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := sqlx.SelectContext(ctx, r.ext, &categories, "SELECT * FROM categories ORDER BY name")
	return categories, err
}

// AdjustStock applies a signed delta to stock_quantity. Callers are
// expected to have checked availability under a row lock first; the
// CHECK constraint on the column is the last line of defense.
func (r *productRepo) AdjustStock(ctx context.Context, id int64, delta int) error {
	res, err := r.ext.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1 WHERE id = $2",
		delta, id)
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

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (category_id, name, description, price, sale_price, is_sale, image_path, stock_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, r.ext, p, query,
		p.CategoryID, p.Name, p.Description, p.Price, p.SalePrice, p.IsSale, p.ImagePath, p.StockQuantity)
}
