package worker

import (
	"context"
	"errors"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// FulfillmentWorker consumes order events and moves freshly placed
// orders into processing. Shipped and delivered transitions would be
// driven the same way by a real warehouse integration.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orders       *service.OrderService
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, orders *service.OrderService) *FulfillmentWorker {
	w := &FulfillmentWorker{
		consumer: consumer,
		orders:   orders,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

func (w *FulfillmentWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	err := w.orders.Advance(ctx, event.OrderID, models.OrderStatusProcessing)
	if errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrNotFound) {
		// Cancelled before fulfillment picked it up, or a replayed
		// event for an order already past pending. Nothing to do.
		w.logger.Debug("Skipping order advance",
			zap.Int64("order_id", event.OrderID), zap.Error(err))
		return nil
	}
	return err
}
