package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ShippingFee is the flat fee applied to every non-empty order.
const ShippingFee int64 = 500

// CountCache caches per-user cart item counts so the badge query does
// not hit the database on every page load.
type CountCache interface {
	GetCartCount(ctx context.Context, userID int64) (int, bool, error)
	SetCartCount(ctx context.Context, userID int64, count int) error
	InvalidateCartCount(ctx context.Context, userID int64) error
}

// CartService owns per-user cart lines. Stock checks here are advisory:
// they reject obviously impossible quantities at mutation time but do
// not reserve anything. Checkout re-checks under a row lock.
type CartService struct {
	repos  store.UnitOfWork
	cache  CountCache
	logger *zap.Logger
}

// NewCartService creates a new cart service. cache may be nil.
func NewCartService(repos store.UnitOfWork, cache CountCache) *CartService {
	return &CartService{
		repos:  repos,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// AddItem adds quantity of a product to the user's cart. If the product
// is already in the cart the quantities merge by addition; the merged
// quantity must fit current stock or nothing changes.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	product, err := s.repos.Products().GetByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	newQuantity := quantity
	existing, err := s.repos.Cart().GetItem(ctx, userID, productID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load cart line: %w", err)
	}
	if existing != nil {
		newQuantity = existing.Quantity + quantity
	}

	if newQuantity > product.StockQuantity {
		util.CartRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
		return ErrInsufficientStock
	}

	item := &models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  newQuantity,
	}
	if err := s.repos.Cart().Upsert(ctx, item); err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}

	util.CartItemsAddedTotal.Inc()
	s.invalidateCount(ctx, userID)
	s.logger.Debug("Cart line upserted",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", newQuantity))
	return nil
}

// UpdateQuantity replaces the stored quantity exactly (no merge).
func (s *CartService) UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	item, err := s.repos.Cart().GetItemByID(ctx, userID, cartItemID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load cart line: %w", err)
	}

	product, err := s.repos.Products().GetByID(ctx, item.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	if quantity > product.StockQuantity {
		util.CartRejectionsTotal.WithLabelValues("insufficient_stock").Inc()
		return ErrInsufficientStock
	}

	if err := s.repos.Cart().UpdateQuantity(ctx, userID, cartItemID, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update cart line: %w", err)
	}

	s.invalidateCount(ctx, userID)
	return nil
}

// RemoveItem deletes the line. A second removal of the same id reports
// ErrNotFound.
func (s *CartService) RemoveItem(ctx context.Context, userID, cartItemID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	err := s.repos.Cart().Delete(ctx, userID, cartItemID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}

	s.invalidateCount(ctx, userID)
	return nil
}

// List returns the user's cart joined with current product price and
// stock, newest line first. Each call recomputes from the store.
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.List")
	defer span.End()

	lines, err := s.repos.Cart().Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return lines, nil
}

// Count returns the summed quantity over the user's cart lines, served
// from the cache when warm.
func (s *CartService) Count(ctx context.Context, userID int64) (int, error) {
	if s.cache != nil {
		count, ok, err := s.cache.GetCartCount(ctx, userID)
		if err != nil {
			s.logger.Warn("Cart count cache read failed", zap.Error(err))
		} else if ok {
			return count, nil
		}
	}

	count, err := s.repos.Cart().Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart items: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetCartCount(ctx, userID, count); err != nil {
			s.logger.Warn("Cart count cache write failed", zap.Error(err))
		}
	}
	return count, nil
}

func (s *CartService) invalidateCount(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCartCount(ctx, userID); err != nil {
		s.logger.Warn("Cart count cache invalidation failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Totals is the price breakdown for a set of cart lines.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

// CalculateTotals computes subtotal at effective prices, the discount
// granted by active sales, the flat shipping fee (charged only when the
// cart is non-empty) and the grand total. Pure function.
func CalculateTotals(lines []models.CartLine) Totals {
	var t Totals
	for i := range lines {
		line := &lines[i]
		t.Subtotal += line.EffectivePrice() * int64(line.Quantity)
		if line.IsSale && line.SalePrice != nil {
			t.Discount += (line.Price - *line.SalePrice) * int64(line.Quantity)
		}
	}
	if t.Subtotal > 0 {
		t.Shipping = ShippingFee
	}
	t.Total = t.Subtotal + t.Shipping
	return t
}
