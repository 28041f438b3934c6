package models

import "time"

// Product represents a catalog product. Prices are stored in minor
// currency units. SalePrice is nil when the product has never been
// discounted; the effective price is the sale price only while IsSale
// is set.
type Product struct {
	ID            int64     `db:"id" json:"id"`
	CategoryID    int64     `db:"category_id" json:"category_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Price         int64     `db:"price" json:"price"`
	SalePrice     *int64    `db:"sale_price" json:"sale_price,omitempty"`
	IsSale        bool      `db:"is_sale" json:"is_sale"`
	ImagePath     string    `db:"image_path" json:"image_path"`
	StockQuantity int       `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// EffectivePrice returns the sale price while the sale flag is set,
// otherwise the list price.
func (p *Product) EffectivePrice() int64 {
	if p.IsSale && p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}

// Category groups products for browsing.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// CartItem is one (user, product) line pending purchase.
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is a cart item joined with the current product row, as shown
// on the cart page. Price and stock reflect the catalog at read time,
// not at add time.
type CartLine struct {
	ID            int64  `db:"id" json:"id"`
	ProductID     int64  `db:"product_id" json:"product_id"`
	Quantity      int    `db:"quantity" json:"quantity"`
	Name          string `db:"name" json:"name"`
	Price         int64  `db:"price" json:"price"`
	SalePrice     *int64 `db:"sale_price" json:"sale_price,omitempty"`
	IsSale        bool   `db:"is_sale" json:"is_sale"`
	ImagePath     string `db:"image_path" json:"image_path"`
	StockQuantity int    `db:"stock_quantity" json:"stock_quantity"`
}

// EffectivePrice returns the unit price the line would be charged at.
func (l *CartLine) EffectivePrice() int64 {
	if l.IsSale && l.SalePrice != nil {
		return *l.SalePrice
	}
	return l.Price
}

// Order statuses. Pending orders move to processing once fulfillment
// picks them up; shipped and delivered orders can no longer be
// cancelled.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Order is an immutable purchase snapshot; only Status and UpdatedAt
// change after creation.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	TotalAmount     int64     `db:"total_amount" json:"total_amount"`
	Status          string    `db:"status" json:"status"`
	ShippingAddress string    `db:"shipping_address" json:"shipping_address"`
	BillingAddress  string    `db:"billing_address" json:"billing_address"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method"`
	IdempotencyKey  string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem freezes quantity and unit price at the moment of purchase.
// ProductID is nil when the product row was later deleted from the
// catalog.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID *int64 `db:"product_id" json:"product_id,omitempty"`
	Quantity  int    `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
}

// User is a registered customer account.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        string    `db:"phone" json:"phone"`
	Address      string    `db:"address" json:"address"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
