package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	sessions map[string]*redisclient.Session
	nextID   int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*redisclient.Session)}
}

func (f *fakeSessions) CreateSession(_ context.Context, userID int64) (string, *redisclient.Session, error) {
	f.nextID++
	id := fmt.Sprintf("sess-%d", f.nextID)
	session := &redisclient.Session{
		UserID:    userID,
		CSRFToken: fmt.Sprintf("csrf-%d", f.nextID),
	}
	f.sessions[id] = session
	return id, session, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*redisclient.Session, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, redisclient.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	mem      *store.Memory
	sessions *fakeSessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	sessions := newFakeSessions()

	h := NewHandler(
		service.NewCatalogService(mem),
		service.NewCartService(mem, nil),
		service.NewCheckoutService(mem, nil, nil),
		service.NewOrderService(mem, nil),
		service.NewAuthService(mem),
		sessions,
	)
	router := gin.New()
	h.SetupRoutes(router)

	return &testEnv{router: router, mem: mem, sessions: sessions}
}

func (e *testEnv) seedProduct(t *testing.T, name string, price int64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{CategoryID: 1, Name: name, Price: price, StockQuantity: stock}
	require.NoError(t, e.mem.Products().Create(context.Background(), p))
	return p
}

// login creates a session directly and returns the cookie and CSRF
// token a browser would hold after signing in.
func (e *testEnv) login(t *testing.T, userID int64) (*http.Cookie, string) {
	t.Helper()
	id, session, err := e.sessions.CreateSession(context.Background(), userID)
	require.NoError(t, err)
	return &http.Cookie{Name: "session_id", Value: id}, session.CSRFToken
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCartMutationRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items",
		jsonBody(t, gin.H{"product_id": p.ID, "quantity": 1}))
	req.Header.Set("Content-Type", "application/json")

	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "you must be logged in", body["message"])
}

func TestCartMutationRequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, _ := env.login(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items",
		jsonBody(t, gin.H{"product_id": p.ID, "quantity": 1}))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	w := env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])

	// stale token from another session is rejected too
	req = httptest.NewRequest(http.MethodPost, "/api/v1/cart/items",
		jsonBody(t, gin.H{"product_id": p.ID, "quantity": 1}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", "not-the-token")
	req.AddCookie(cookie)

	w = env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	count, err := env.mem.Cart().Count(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAddCartItem(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, csrf := env.login(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items",
		jsonBody(t, gin.H{"product_id": p.ID, "quantity": 2}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cookie)

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Product added to cart", body["message"])

	count, err := env.mem.Cart().Count(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddCartItemBeyondStock(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 2)
	cookie, csrf := env.login(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items",
		jsonBody(t, gin.H{"product_id": p.ID, "quantity": 3}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cookie)

	w := env.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "not enough stock available", body["message"])
}

func TestCartCount(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, _ := env.login(t, 1)

	require.NoError(t, env.mem.Cart().Upsert(context.Background(),
		&models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 3}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/count", nil)
	req.AddCookie(cookie)

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["count"])
}

func TestGetCartReturnsLinesAndTotals(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, _ := env.login(t, 1)

	require.NoError(t, env.mem.Cart().Upsert(context.Background(),
		&models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 2}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(cookie)

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)

	totals := body["totals"].(map[string]interface{})
	assert.Equal(t, float64(2000), totals["subtotal"])
	assert.Equal(t, float64(500), totals["shipping"])
	assert.Equal(t, float64(2500), totals["total"])
}

func TestProductListingIsPublic(t *testing.T) {
	env := newTestEnv(t)
	env.seedProduct(t, "Dog Food", 1000, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	products := decodeBody(t, w)["products"].([]interface{})
	assert.Len(t, products, 1)
}

func TestGetUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/99", nil)
	w := env.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", jsonBody(t, gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter22",
	}))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["csrf_token"])

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", jsonBody(t, gin.H{
		"username": "alice",
		"password": "hunter22",
	}))
	req.Header.Set("Content-Type", "application/json")
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var sessionCookieValue string
	for _, c := range w.Result().Cookies() {
		if c.Name == "session_id" {
			sessionCookieValue = c.Value
		}
	}
	require.NotEmpty(t, sessionCookieValue)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionCookieValue})
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.sessions.GetSession(context.Background(), sessionCookieValue)
	assert.ErrorIs(t, err, redisclient.ErrSessionNotFound)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", jsonBody(t, gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "hunter22",
	}))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, env.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", jsonBody(t, gin.H{
		"username": "alice",
		"password": "wrong",
	}))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutValidationFields(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, csrf := env.login(t, 1)

	require.NoError(t, env.mem.Cart().Upsert(context.Background(),
		&models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 1}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", jsonBody(t, gin.H{
		"shipping": gin.H{
			"first_name": "Alice",
			"address":    "1 Main St",
			"city":       "Springfield",
		},
	}))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cookie)

	w := env.do(req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	fields := body["fields"].([]interface{})
	assert.Contains(t, fields, "shipping_last_name")
	assert.Contains(t, fields, "payment_method")
}

func TestCancelOrderEndpoint(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProduct(t, "Dog Food", 1000, 5)
	cookie, csrf := env.login(t, 1)

	var orderID int64
	err := env.mem.WithTx(context.Background(), func(r store.Repositories) error {
		order := &models.Order{UserID: 1, TotalAmount: 1500, Status: models.OrderStatusPending}
		if err := r.Orders().Create(context.Background(), order); err != nil {
			return err
		}
		orderID = order.ID
		pid := p.ID
		if err := r.Orders().CreateItem(context.Background(), &models.OrderItem{
			OrderID: order.ID, ProductID: &pid, Quantity: 1, UnitPrice: 1000,
		}); err != nil {
			return err
		}
		return r.Products().AdjustStock(context.Background(), p.ID, -1)
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), nil)
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cookie)

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])

	got, err := env.mem.Products().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)
}
