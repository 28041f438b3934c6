package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
)

// Memory is an in-memory UnitOfWork used by tests and local runs
// without a database. Transactions operate on a deep copy of the state
// which replaces the live state only when the transaction function
// returns nil, so a failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

var _ UnitOfWork = (*Memory)(nil)

type memState struct {
	nextProductID   int64
	nextCartItemID  int64
	nextOrderID     int64
	nextOrderItemID int64
	nextUserID      int64

	products   map[int64]models.Product
	categories map[int64]models.Category
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64]models.OrderItem
	users      map[int64]models.User
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		nextProductID:   1,
		nextCartItemID:  1,
		nextOrderID:     1,
		nextOrderItemID: 1,
		nextUserID:      1,
		products:        make(map[int64]models.Product),
		categories:      make(map[int64]models.Category),
		cartItems:       make(map[int64]models.CartItem),
		orders:          make(map[int64]models.Order),
		orderItems:      make(map[int64]models.OrderItem),
		users:           make(map[int64]models.User),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextProductID:   s.nextProductID,
		nextCartItemID:  s.nextCartItemID,
		nextOrderID:     s.nextOrderID,
		nextOrderItemID: s.nextOrderItemID,
		nextUserID:      s.nextUserID,
		products:        make(map[int64]models.Product, len(s.products)),
		categories:      make(map[int64]models.Category, len(s.categories)),
		cartItems:       make(map[int64]models.CartItem, len(s.cartItems)),
		orders:          make(map[int64]models.Order, len(s.orders)),
		orderItems:      make(map[int64]models.OrderItem, len(s.orderItems)),
		users:           make(map[int64]models.User, len(s.users)),
	}
	for id, p := range s.products {
		if p.SalePrice != nil {
			sp := *p.SalePrice
			p.SalePrice = &sp
		}
		c.products[id] = p
	}
	for id, v := range s.categories {
		c.categories[id] = v
	}
	for id, v := range s.cartItems {
		c.cartItems[id] = v
	}
	for id, v := range s.orders {
		c.orders[id] = v
	}
	for id, v := range s.orderItems {
		if v.ProductID != nil {
			pid := *v.ProductID
			v.ProductID = &pid
		}
		c.orderItems[id] = v
	}
	for id, v := range s.users {
		c.users[id] = v
	}
	return c
}

// WithTx holds the store lock for the whole transaction, so concurrent
// transactions serialize the way row locks serialize them in Postgres.
func (m *Memory) WithTx(ctx context.Context, fn func(r Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := fn(&memRepos{s: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Memory) Products() ProductRepository { return &memProducts{memRepos{m: m}} }
func (m *Memory) Cart() CartRepository        { return &memCart{memRepos{m: m}} }
func (m *Memory) Orders() OrderRepository     { return &memOrders{memRepos{m: m}} }
func (m *Memory) Users() UserRepository       { return &memUsers{memRepos{m: m}} }

// AddCategory seeds a category; test helper.
func (m *Memory) AddCategory(c models.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.categories[c.ID] = c
}

// memRepos addresses either the live state (m set, lock per call) or a
// transaction copy (s set, lock already held by WithTx).
type memRepos struct {
	m *Memory
	s *memState
}

func (r *memRepos) use() (*memState, func()) {
	if r.m != nil {
		r.m.mu.Lock()
		return r.m.state, r.m.mu.Unlock
	}
	return r.s, func() {}
}

func (r *memRepos) Products() ProductRepository { return &memProducts{*r} }
func (r *memRepos) Cart() CartRepository        { return &memCart{*r} }
func (r *memRepos) Orders() OrderRepository     { return &memOrders{*r} }
func (r *memRepos) Users() UserRepository       { return &memUsers{*r} }

type memProducts struct{ memRepos }

func (r *memProducts) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	s, done := r.use()
	defer done()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *memProducts) GetByIDForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	return r.GetByID(ctx, id)
}

func (r *memProducts) List(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	s, done := r.use()
	defer done()
	out := []models.Product{}
	for _, p := range s.products {
		if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
			continue
		}
		if f.OnSale && !p.IsSale {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memProducts) Categories(ctx context.Context) ([]models.Category, error) {
	s, done := r.use()
	defer done()
	out := []models.Category{}
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (r *memProducts) AdjustStock(ctx context.Context, id int64, delta int) error {
	s, done := r.use()
	defer done()
	p, ok := s.products[id]
	if !ok {
		return ErrNotFound
	}
	p.StockQuantity += delta
	s.products[id] = p
	return nil
}

func (r *memProducts) Create(ctx context.Context, p *models.Product) error {
	s, done := r.use()
	defer done()
	p.ID = s.nextProductID
	s.nextProductID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.products[p.ID] = *p
	return nil
}

type memCart struct{ memRepos }

func (r *memCart) GetItem(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	s, done := r.use()
	defer done()
	for _, item := range s.cartItems {
		if item.UserID == userID && item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memCart) GetItemByID(ctx context.Context, userID, itemID int64) (*models.CartItem, error) {
	s, done := r.use()
	defer done()
	item, ok := s.cartItems[itemID]
	if !ok || item.UserID != userID {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (r *memCart) Upsert(ctx context.Context, item *models.CartItem) error {
	s, done := r.use()
	defer done()
	now := time.Now()
	for id, existing := range s.cartItems {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity = item.Quantity
			existing.UpdatedAt = now
			s.cartItems[id] = existing
			*item = existing
			return nil
		}
	}
	item.ID = s.nextCartItemID
	s.nextCartItemID++
	item.CreatedAt = now
	item.UpdatedAt = now
	s.cartItems[item.ID] = *item
	return nil
}

func (r *memCart) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	s, done := r.use()
	defer done()
	item, ok := s.cartItems[itemID]
	if !ok || item.UserID != userID {
		return ErrNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = time.Now()
	s.cartItems[itemID] = item
	return nil
}

func (r *memCart) Delete(ctx context.Context, userID, itemID int64) error {
	s, done := r.use()
	defer done()
	item, ok := s.cartItems[itemID]
	if !ok || item.UserID != userID {
		return ErrNotFound
	}
	delete(s.cartItems, itemID)
	return nil
}

func (r *memCart) Lines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	s, done := r.use()
	defer done()
	items := []models.CartItem{}
	for _, item := range s.cartItems {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	lines := []models.CartLine{}
	for _, item := range items {
		p, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, models.CartLine{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			Name:          p.Name,
			Price:         p.Price,
			SalePrice:     p.SalePrice,
			IsSale:        p.IsSale,
			ImagePath:     p.ImagePath,
			StockQuantity: p.StockQuantity,
		})
	}
	return lines, nil
}

func (r *memCart) Count(ctx context.Context, userID int64) (int, error) {
	s, done := r.use()
	defer done()
	count := 0
	for _, item := range s.cartItems {
		if item.UserID == userID {
			count += item.Quantity
		}
	}
	return count, nil
}

type memOrders struct{ memRepos }

func (r *memOrders) Create(ctx context.Context, o *models.Order) error {
	s, done := r.use()
	defer done()
	if o.IdempotencyKey != "" {
		for _, existing := range s.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return ErrDuplicate
			}
		}
	}
	o.ID = s.nextOrderID
	s.nextOrderID++
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = *o
	return nil
}

func (r *memOrders) GetForUser(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	s, done := r.use()
	defer done()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	s, done := r.use()
	defer done()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) GetByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	s, done := r.use()
	defer done()
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memOrders) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	s, done := r.use()
	defer done()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return nil
}

func (r *memOrders) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	s, done := r.use()
	defer done()
	out := []models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memOrders) CreateItem(ctx context.Context, item *models.OrderItem) error {
	s, done := r.use()
	defer done()
	item.ID = s.nextOrderItemID
	s.nextOrderItemID++
	s.orderItems[item.ID] = *item
	return nil
}

func (r *memOrders) Items(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	s, done := r.use()
	defer done()
	out := []models.OrderItem{}
	for _, item := range s.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memUsers struct{ memRepos }

func (r *memUsers) Create(ctx context.Context, u *models.User) error {
	s, done := r.use()
	defer done()
	u.ID = s.nextUserID
	s.nextUserID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = *u
	return nil
}

func (r *memUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s, done := r.use()
	defer done()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s, done := r.use()
	defer done()
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s, done := r.use()
	defer done()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}
