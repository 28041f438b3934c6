package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderAdvanced(ctx context.Context, event *models.OrderAdvancedEvent) error
}

// AddressInfo carries one checkout address. Field names in validation
// messages come from the json tags.
type AddressInfo struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
}

// CheckoutRequest is the input to PlaceOrder. A nil Billing address
// means "same as shipping".
type CheckoutRequest struct {
	Shipping       AddressInfo  `json:"shipping"`
	Billing        *AddressInfo `json:"billing,omitempty"`
	PaymentMethod  string       `json:"payment_method"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// CheckoutService converts a cart into an order aggregate. The whole
// conversion runs in one transaction: order row, item snapshots, stock
// decrements and cart deletion commit together or not at all.
type CheckoutService struct {
	repos     store.UnitOfWork
	publisher EventPublisher
	validate  *validator.Validate
	cache     CountCache
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher and
// cache may be nil.
func NewCheckoutService(repos store.UnitOfWork, publisher EventPublisher, cache CountCache) *CheckoutService {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &CheckoutService{
		repos:     repos,
		publisher: publisher,
		validate:  v,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// PlaceOrder places an order from the user's current cart and returns
// the new order id. Stock is re-read under row locks at this point, not
// trusted from add-to-cart time; any shortfall aborts the whole
// transaction and the cart survives untouched.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID int64, req *CheckoutRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	// Replay detection runs before the cart checks: a successful
	// checkout empties the cart, so a retried request would otherwise
	// always see an empty cart.
	if req.IdempotencyKey != "" {
		existing, err := s.repos.Orders().GetByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing.ID, nil
		}
	} else {
		req.IdempotencyKey = uuid.New().String()
	}

	lines, err := s.repos.Cart().Lines(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return 0, ErrEmptyCart
	}

	if err := s.validateRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return 0, err
	}

	billing := req.Billing
	if billing == nil {
		billing = &req.Shipping
	}

	var (
		order     models.Order
		itemsData []models.OrderItemData
	)
	err = s.repos.WithTx(ctx, func(r store.Repositories) error {
		// Re-read the cart inside the transaction; the outer snapshot
		// only served the empty-cart check and may be stale.
		lines, err := r.Cart().Lines(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		// Re-read every product under a row lock; the numbers seen at
		// add-to-cart time are advisory only.
		fresh := make([]models.CartLine, 0, len(lines))
		for _, line := range lines {
			product, err := r.Products().GetByIDForUpdate(ctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to lock product %d: %w", line.ProductID, err)
			}
			if product.StockQuantity < line.Quantity {
				return ErrInsufficientStock
			}
			fresh = append(fresh, models.CartLine{
				ID:            line.ID,
				ProductID:     product.ID,
				Quantity:      line.Quantity,
				Name:          product.Name,
				Price:         product.Price,
				SalePrice:     product.SalePrice,
				IsSale:        product.IsSale,
				StockQuantity: product.StockQuantity,
			})
		}

		totals := CalculateTotals(fresh)

		order = models.Order{
			UserID:          userID,
			TotalAmount:     totals.Total,
			Status:          models.OrderStatusPending,
			ShippingAddress: formatAddress(&req.Shipping),
			BillingAddress:  formatAddress(billing),
			PaymentMethod:   req.PaymentMethod,
			IdempotencyKey:  req.IdempotencyKey,
		}
		if err := r.Orders().Create(ctx, &order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range fresh {
			productID := line.ProductID
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: &productID,
				Quantity:  line.Quantity,
				UnitPrice: line.EffectivePrice(),
			}
			if err := r.Orders().CreateItem(ctx, &item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			if err := r.Products().AdjustStock(ctx, line.ProductID, -line.Quantity); err != nil {
				return fmt.Errorf("failed to decrement stock for product %d: %w", line.ProductID, err)
			}
			itemsData = append(itemsData, models.OrderItemData{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.EffectivePrice(),
			})
		}

		// Delete only the lines that became order items. A line added
		// by a concurrent request after the read above survives in the
		// cart instead of vanishing unordered.
		for _, line := range fresh {
			if err := r.Cart().Delete(ctx, userID, line.ID); err != nil {
				return fmt.Errorf("failed to clear cart line %d: %w", line.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key can slip past the
		// replay check above; the unique index decides the winner and
		// the loser returns the winner's order id.
		if errors.Is(err, store.ErrDuplicate) {
			existing, lookupErr := s.repos.Orders().GetByIdempotencyKey(ctx, userID, req.IdempotencyKey)
			if lookupErr == nil {
				s.logger.Info("Duplicate checkout request detected",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.Int64("order_id", existing.ID))
				return existing.ID, nil
			}
			return 0, fmt.Errorf("failed to resolve duplicate order: %w", lookupErr)
		}
		if errors.Is(err, ErrInsufficientStock) {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		} else if errors.Is(err, ErrEmptyCart) {
			util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		} else if !IsBusinessError(err) {
			util.OrdersFailedTotal.WithLabelValues("storage").Inc()
		}
		return 0, err
	}

	util.OrdersPlacedTotal.Inc()
	s.invalidateCount(ctx, userID)
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount))

	if s.publisher != nil {
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			UserID:      userID,
			TotalAmount: order.TotalAmount,
			Items:       itemsData,
		}
		if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	}

	return order.ID, nil
}

func (s *CheckoutService) validateRequest(req *CheckoutRequest) error {
	fields := collectViolations(s.validate, &req.Shipping, "shipping_")
	if req.Billing != nil {
		fields = append(fields, collectViolations(s.validate, req.Billing, "billing_")...)
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		fields = append(fields, "payment_method")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func collectViolations(v *validator.Validate, addr *AddressInfo, prefix string) []string {
	err := v.Struct(addr)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix + "address"}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, prefix+fe.Field())
	}
	return fields
}

// formatAddress flattens an address into the multi-line snapshot stored
// on the order.
func formatAddress(a *AddressInfo) string {
	return fmt.Sprintf("%s %s\n%s\n%s\n%s\nPhone: %s\nEmail: %s",
		a.FirstName, a.LastName, a.Address, a.City, a.PostalCode, a.Phone, a.Email)
}

func (s *CheckoutService) invalidateCount(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCartCount(ctx, userID); err != nil {
		s.logger.Warn("Cart count cache invalidation failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
