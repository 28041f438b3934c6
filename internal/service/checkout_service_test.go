package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCheckoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		Shipping: AddressInfo{
			FirstName:  "Arya",
			LastName:   "Wijaya",
			Email:      "arya@example.com",
			Phone:      "08123456789",
			Address:    "Jl. Melati 5",
			City:       "Jakarta",
			PostalCode: "10110",
		},
		PaymentMethod: "cod",
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	m := store.NewMemory()
	cart := NewCartService(m, nil)
	checkout := NewCheckoutService(m, nil, nil)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	b := seedProduct(t, m, "Cat Toy", 1000, int64ptr(800), 3)

	require.NoError(t, cart.AddItem(ctx, 1, a, 2))
	require.NoError(t, cart.AddItem(ctx, 1, b, 1))

	orderID, err := checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	require.NoError(t, err)
	require.NotZero(t, orderID)

	order, err := m.Orders().GetForUser(ctx, 1, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(3300), order.TotalAmount)
	assert.Equal(t, "cod", order.PaymentMethod)
	assert.Contains(t, order.ShippingAddress, "Arya Wijaya")
	// billing defaults to shipping when not supplied
	assert.Equal(t, order.ShippingAddress, order.BillingAddress)

	items, err := m.Orders().Items(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byProduct := map[int64]models.OrderItem{}
	for _, item := range items {
		require.NotNil(t, item.ProductID)
		byProduct[*item.ProductID] = item
	}
	assert.Equal(t, int64(1000), byProduct[a].UnitPrice)
	assert.Equal(t, int64(800), byProduct[b].UnitPrice)

	// stock decremented, cart cleared
	pa, err := m.Products().GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 3, pa.StockQuantity)
	pb, err := m.Products().GetByID(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 2, pb.StockQuantity)

	lines, err := cart.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	m := store.NewMemory()
	checkout := NewCheckoutService(m, nil, nil)

	_, err := checkout.PlaceOrder(context.Background(), 1, validCheckoutRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderValidationListsEveryField(t *testing.T) {
	m := store.NewMemory()
	cart := NewCartService(m, nil)
	checkout := NewCheckoutService(m, nil, nil)
	ctx := context.Background()

	productID := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, productID, 1))

	req := &CheckoutRequest{
		Shipping: AddressInfo{
			FirstName: "Arya",
			Email:     "not-an-email",
			Phone:     "08123456789",
			Address:   "Jl. Melati 5",
		},
		Billing: &AddressInfo{
			FirstName:  "Arya",
			LastName:   "Wijaya",
			Email:      "arya@example.com",
			Phone:      "08123456789",
			Address:    "Jl. Melati 5",
			City:       "Jakarta",
			PostalCode: "10110",
		},
		PaymentMethod: "",
	}

	_, err := checkout.PlaceOrder(ctx, 1, req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{
		"shipping_last_name",
		"shipping_email",
		"shipping_city",
		"shipping_postal_code",
		"payment_method",
	}, ve.Fields)

	// the cart is untouched by a failed checkout
	lines, err := cart.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestPlaceOrderAllOrNothing(t *testing.T) {
	m := store.NewMemory()
	cart := NewCartService(m, nil)
	checkout := NewCheckoutService(m, nil, nil)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	b := seedProduct(t, m, "Cat Toy", 500, nil, 3)

	require.NoError(t, cart.AddItem(ctx, 1, a, 2))
	require.NoError(t, cart.AddItem(ctx, 1, b, 3))

	// another checkout consumes product b's stock after the lines were
	// added; the advisory cart check did not reserve anything
	require.NoError(t, m.Products().AdjustStock(ctx, b, -2))

	_, err := checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// nothing moved: no order, stock as it was, cart intact
	orders, err := m.Orders().ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)

	pa, err := m.Products().GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, pa.StockQuantity)
	pb, err := m.Products().GetByID(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, pb.StockQuantity)

	lines, err := cart.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestPlaceOrderIdempotencyReplay(t *testing.T) {
	m := store.NewMemory()
	cart := NewCartService(m, nil)
	checkout := NewCheckoutService(m, nil, nil)
	ctx := context.Background()

	productID := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, productID, 2))

	req := validCheckoutRequest()
	req.IdempotencyKey = "retry-key-1"

	first, err := checkout.PlaceOrder(ctx, 1, req)
	require.NoError(t, err)

	// the client retries the same request; the cart is empty now but
	// the stored key short-circuits before the empty-cart check would
	// even matter
	require.NoError(t, cart.AddItem(ctx, 1, productID, 1))
	second, err := checkout.PlaceOrder(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// stock only decremented once for the replayed order
	p, err := m.Products().GetByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)
}

type capturingPublisher struct {
	placed    []*models.OrderPlacedEvent
	cancelled []*models.OrderCancelledEvent
	advanced  []*models.OrderAdvancedEvent
}

func (p *capturingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.placed = append(p.placed, e)
	return nil
}

func (p *capturingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.cancelled = append(p.cancelled, e)
	return nil
}

func (p *capturingPublisher) PublishOrderAdvanced(_ context.Context, e *models.OrderAdvancedEvent) error {
	p.advanced = append(p.advanced, e)
	return nil
}

func TestPlaceOrderPublishesEvent(t *testing.T) {
	m := store.NewMemory()
	pub := &capturingPublisher{}
	cart := NewCartService(m, nil)
	checkout := NewCheckoutService(m, pub, nil)
	ctx := context.Background()

	productID := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, productID, 2))

	orderID, err := checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	require.NoError(t, err)

	require.Len(t, pub.placed, 1)
	assert.Equal(t, orderID, pub.placed[0].OrderID)
	assert.Equal(t, models.EventTypeOrderPlaced, pub.placed[0].EventType)
	require.Len(t, pub.placed[0].Items, 1)
	assert.Equal(t, 2, pub.placed[0].Items[0].Quantity)
}

// mutatingStore runs a hook right before the next transaction, standing
// in for a concurrent request that commits between the cart read and
// the checkout transaction.
type mutatingStore struct {
	*store.Memory
	before func()
}

func (s *mutatingStore) WithTx(ctx context.Context, fn func(store.Repositories) error) error {
	if s.before != nil {
		hook := s.before
		s.before = nil
		hook()
	}
	return s.Memory.WithTx(ctx, fn)
}

func TestPlaceOrderChargesConcurrentlyUpdatedQuantity(t *testing.T) {
	m := store.NewMemory()
	ms := &mutatingStore{Memory: m}
	cart := NewCartService(ms, nil)
	checkout := NewCheckoutService(ms, nil, nil)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, a, 1))

	ms.before = func() {
		require.NoError(t, m.Cart().Upsert(ctx, &models.CartItem{UserID: 1, ProductID: a, Quantity: 3}))
	}

	orderID, err := checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	require.NoError(t, err)

	items, err := m.Orders().Items(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)

	order, err := m.Orders().GetForUser(ctx, 1, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), order.TotalAmount)

	p, err := m.Products().GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockQuantity)
}

func TestPlaceOrderIncludesConcurrentlyAddedLine(t *testing.T) {
	m := store.NewMemory()
	ms := &mutatingStore{Memory: m}
	cart := NewCartService(ms, nil)
	checkout := NewCheckoutService(ms, nil, nil)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	b := seedProduct(t, m, "Cat Toy", 500, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, a, 1))

	ms.before = func() {
		require.NoError(t, m.Cart().Upsert(ctx, &models.CartItem{UserID: 1, ProductID: b, Quantity: 2}))
	}

	orderID, err := checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	require.NoError(t, err)

	// the late line is ordered, not silently dropped from the cart
	items, err := m.Orders().Items(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	lines, err := m.Cart().Lines(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)

	p, err := m.Products().GetByID(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)
}

func TestPlaceOrderDuplicateKeyRace(t *testing.T) {
	m := store.NewMemory()
	ms := &mutatingStore{Memory: m}
	cart := NewCartService(ms, nil)
	checkout := NewCheckoutService(ms, nil, nil)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, a, 2))

	// a competing request with the same key commits its order after the
	// replay check has already passed
	var winnerID int64
	ms.before = func() {
		order := &models.Order{
			UserID:          1,
			TotalAmount:     2500,
			Status:          models.OrderStatusPending,
			ShippingAddress: "x",
			BillingAddress:  "x",
			IdempotencyKey:  "key-1",
		}
		require.NoError(t, m.Orders().Create(ctx, order))
		winnerID = order.ID
	}

	req := validCheckoutRequest()
	req.IdempotencyKey = "key-1"

	orderID, err := checkout.PlaceOrder(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, winnerID, orderID)

	// the losing transaction rolled back completely
	orders, err := m.Orders().ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	p, err := m.Products().GetByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)

	lines, err := m.Cart().Lines(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestOrderCreateRejectsDuplicateKey(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	first := &models.Order{
		UserID: 1, TotalAmount: 100, Status: models.OrderStatusPending,
		ShippingAddress: "x", BillingAddress: "x", IdempotencyKey: "key-1",
	}
	require.NoError(t, m.Orders().Create(ctx, first))

	second := &models.Order{
		UserID: 1, TotalAmount: 100, Status: models.OrderStatusPending,
		ShippingAddress: "x", BillingAddress: "x", IdempotencyKey: "key-1",
	}
	assert.ErrorIs(t, m.Orders().Create(ctx, second), store.ErrDuplicate)

	// a different user may reuse the key
	other := &models.Order{
		UserID: 2, TotalAmount: 100, Status: models.OrderStatusPending,
		ShippingAddress: "x", BillingAddress: "x", IdempotencyKey: "key-1",
	}
	assert.NoError(t, m.Orders().Create(ctx, other))
}

func TestPlaceOrderWithCacheInvalidatesCount(t *testing.T) {
	m := store.NewMemory()
	cache := newFakeCountCache()
	cart := NewCartService(m, cache)
	checkout := NewCheckoutService(m, nil, cache)
	ctx := context.Background()

	a := seedProduct(t, m, "Dog Food", 1000, nil, 5)
	require.NoError(t, cart.AddItem(ctx, 1, a, 2))

	count, err := cart.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	invalidationsBefore := cache.invalidations
	_, err = checkout.PlaceOrder(ctx, 1, validCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, invalidationsBefore+1, cache.invalidations)

	count, err = cart.Count(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}
