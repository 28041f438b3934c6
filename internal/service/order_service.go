package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transitions holds the allowed order status graph. Cancellation is
// handled separately because it also compensates stock.
var transitions = map[string]string{
	models.OrderStatusPending:    models.OrderStatusProcessing,
	models.OrderStatusProcessing: models.OrderStatusShipped,
	models.OrderStatusShipped:    models.OrderStatusDelivered,
}

// cancellable statuses; shipped and delivered orders are past the point
// of no return.
func isCancellable(status string) bool {
	return status == models.OrderStatusPending || status == models.OrderStatusProcessing
}

// OrderService governs the order lifecycle after checkout.
type OrderService struct {
	repos     store.UnitOfWork
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(repos store.UnitOfWork, publisher EventPublisher) *OrderService {
	return &OrderService{
		repos:     repos,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Get returns the user's order with its items.
func (s *OrderService) Get(ctx context.Context, userID, orderID int64) (*models.Order, []models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Get")
	defer span.End()

	order, err := s.repos.Orders().GetForUser(ctx, userID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order: %w", err)
	}

	items, err := s.repos.Orders().Items(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return order, items, nil
}

// ListByUser returns the user's orders, newest first.
func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders, err := s.repos.Orders().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Cancel cancels a pending or processing order. The status change and
// the stock restoration for every item that still references a product
// commit in one transaction; a shipped or delivered order is rejected
// with ErrInvalidTransition and left untouched.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	err := s.repos.WithTx(ctx, func(r store.Repositories) error {
		order, err := r.Orders().GetForUser(ctx, userID, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}

		if !isCancellable(order.Status) {
			return ErrInvalidTransition
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		items, err := r.Orders().Items(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		for _, item := range items {
			if item.ProductID == nil {
				continue
			}
			if err := r.Products().AdjustStock(ctx, *item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("failed to restore stock for product %d: %w", *item.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID))

	if s.publisher != nil {
		event := &models.OrderCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCancelled,
				Timestamp: time.Now(),
			},
			OrderID: orderID,
			UserID:  userID,
		}
		if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}
	return nil
}

// Advance moves an order one step along
// pending -> processing -> shipped -> delivered. It is driven by the
// fulfillment worker and has no public HTTP surface.
func (s *OrderService) Advance(ctx context.Context, orderID int64, next string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Advance")
	defer span.End()

	err := s.repos.WithTx(ctx, func(r store.Repositories) error {
		order, err := r.Orders().GetByID(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}

		if transitions[order.Status] != next {
			return ErrInvalidTransition
		}
		if err := r.Orders().UpdateStatus(ctx, orderID, next); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Order advanced",
		zap.Int64("order_id", orderID),
		zap.String("status", next))

	if s.publisher != nil {
		event := &models.OrderAdvancedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderAdvanced,
				Timestamp: time.Now(),
			},
			OrderID: orderID,
			Status:  next,
		}
		if err := s.publisher.PublishOrderAdvanced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderAdvanced event", zap.Error(err))
		}
	}
	return nil
}
