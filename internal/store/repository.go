package store

import (
	"context"
	"errors"

	"storefront/internal/models"
)

// ErrNotFound is returned when an entity does not exist or does not
// belong to the requesting user.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert loses to a concurrent writer
// on a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate")

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID *int64
	OnSale     bool
	Limit      int
}

// ProductRepository provides catalog reads and the stock mutations used
// by checkout and cancellation.
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	// GetByIDForUpdate locks the product row for the remainder of the
	// enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, f ProductFilter) ([]models.Product, error)
	Categories(ctx context.Context) ([]models.Category, error)
	// AdjustStock applies a signed delta to stock_quantity.
	AdjustStock(ctx context.Context, id int64, delta int) error
	Create(ctx context.Context, p *models.Product) error
}

// CartRepository owns cart lines for all users.
type CartRepository interface {
	GetItem(ctx context.Context, userID, productID int64) (*models.CartItem, error)
	GetItemByID(ctx context.Context, userID, itemID int64) (*models.CartItem, error)
	Upsert(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error
	Delete(ctx context.Context, userID, itemID int64) error
	// Lines returns the user's cart joined with current product data,
	// newest line first.
	Lines(ctx context.Context, userID int64) ([]models.CartLine, error)
	Count(ctx context.Context, userID int64) (int, error)
}

// OrderRepository owns the order aggregate.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	GetForUser(ctx context.Context, userID, orderID int64) (*models.Order, error)
	GetByID(ctx context.Context, orderID int64) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status string) error
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	CreateItem(ctx context.Context, item *models.OrderItem) error
	Items(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// UserRepository owns customer accounts.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Repositories bundles the per-entity repositories bound to one
// database handle, either the pool or a single transaction.
type Repositories interface {
	Products() ProductRepository
	Cart() CartRepository
	Orders() OrderRepository
	Users() UserRepository
}

// UnitOfWork runs multi-statement mutations atomically. The
// repositories passed to fn are bound to one transaction; returning an
// error rolls everything back.
type UnitOfWork interface {
	Repositories
	WithTx(ctx context.Context, fn func(r Repositories) error) error
}
