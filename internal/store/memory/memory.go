package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"minimart/backend/internal/domain"
	"minimart/backend/internal/store"
	"minimart/backend/internal/xid"
)

// Store is an in-memory Repository used for tests and DATABASE_URL-less dev
// runs. A single mutex serializes every unit of work, which gives RecordSale
// the same all-or-nothing, no-interleaving guarantees the Postgres store gets
// from its transaction isolation.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	sales        []domain.Sale
	auditLogs    []domain.AuditLogEntry
	usersByEmail map[string]domain.User
	now          func() time.Time
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		sales:        make([]domain.Sale, 0, 64),
		auditLogs:    make([]domain.AuditLogEntry, 0, 128),
		usersByEmail: make(map[string]domain.User),
		now:          time.Now,
	}
}

// NewSeeded returns a store preloaded with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now()
	for _, p := range []domain.Product{
		{Name: "Eggs (Dozen)", Price: decimal.RequireFromString("4.99"), Cost: decimal.RequireFromString("2.50"), Quantity: 60},
		{Name: "Apples (1kg)", Price: decimal.RequireFromString("2.99"), Cost: decimal.RequireFromString("1.50"), Quantity: 150},
		{Name: "Whole Milk 1L", Price: decimal.RequireFromString("1.89"), Cost: decimal.RequireFromString("1.10"), Quantity: 80},
		{Name: "Sourdough Loaf", Price: decimal.RequireFromString("5.49"), Cost: decimal.RequireFromString("2.20"), Quantity: 35},
		{Name: "Ground Coffee 250g", Price: decimal.RequireFromString("7.99"), Cost: decimal.RequireFromString("4.40"), Quantity: 42},
		{Name: "Olive Oil 500ml", Price: decimal.RequireFromString("9.99"), Cost: decimal.RequireFromString("6.10"), Quantity: 24},
	} {
		p.ID = xid.New("prod")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "product", ID: id}
	}
	copied := product
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, &store.NotFoundError{Entity: "product", ID: product.ID}
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return &store.NotFoundError{Entity: "product", ID: id}
	}

	references := 0
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				references++
			}
		}
	}
	if references > 0 {
		return &store.ReferentialIntegrityError{ProductID: id, References: references}
	}

	delete(s.products, id)
	return nil
}

// RecordSale validates and applies a multi-line sale as one unit. Demand is
// staged against a working copy of the affected quantities, so repeated lines
// for one product stack against the same starting stock and a failure on any
// line leaves the store untouched.
func (s *Store) RecordSale(_ context.Context, lines []domain.SaleLine, cashierID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]int, len(lines))
	saleID := xid.New("sale")
	items := make([]domain.SaleItem, 0, len(lines))
	totalAmount := decimal.Zero
	totalProfit := decimal.Zero

	for _, line := range lines {
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, &store.NotFoundError{Entity: "product", ID: line.ProductID}
		}

		available, seen := staged[line.ProductID]
		if !seen {
			available = product.Quantity
		}
		if available < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   available,
				Requested:   line.Quantity,
			}
		}
		staged[line.ProductID] = available - line.Quantity

		qty := decimal.NewFromInt(int64(line.Quantity))
		lineAmount := product.Price.Mul(qty)
		lineProfit := product.Price.Sub(product.Cost).Mul(qty)
		totalAmount = totalAmount.Add(lineAmount)
		totalProfit = totalProfit.Add(lineProfit)

		items = append(items, domain.SaleItem{
			ID:          xid.New("item"),
			SaleID:      saleID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			PriceAtSale: product.Price,
			CostAtSale:  product.Cost,
		})
	}

	now := s.now()
	for id, qty := range staged {
		product := s.products[id]
		product.Quantity = qty
		product.UpdatedAt = now
		s.products[id] = product
	}

	sale := domain.Sale{
		ID:          saleID,
		Items:       items,
		TotalAmount: totalAmount,
		TotalProfit: totalProfit,
		SaleDate:    now,
		CashierID:   cashierID,
	}
	if cashierID != "" {
		for _, user := range s.usersByEmail {
			if user.ID == cashierID {
				sale.CashierName = user.Name
				break
			}
		}
	}
	s.sales = append(s.sales, sale)

	committed := copySale(sale)
	return &committed, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, copySale(sale))
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].SaleDate.After(sales[j].SaleDate)
	})
	return sales, nil
}

func (s *Store) TotalCash(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sale := range s.sales {
		total = total.Add(sale.TotalAmount)
	}
	return total, nil
}

func (s *Store) StockValue(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, p := range s.products {
		total = total.Add(p.Cost.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total, nil
}

func (s *Store) ProfitSince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, sale := range s.sales {
		if sale.SaleDate.Before(since) {
			continue
		}
		total = total.Add(sale.TotalProfit)
	}
	return total, nil
}

func (s *Store) LowStockProducts(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.Quantity < threshold {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].Quantity == low[j].Quantity {
			return low[i].Name < low[j].Name
		}
		return low[i].Quantity < low[j].Quantity
	})
	return low, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int, offset int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]domain.AuditLogEntry, len(s.auditLogs))
	copy(ordered, s.auditLogs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	if offset >= len(ordered) {
		return []domain.AuditLogEntry{}, nil
	}
	end := offset + limit
	if end > len(ordered) {
		end = len(ordered)
	}
	page := make([]domain.AuditLogEntry, end-offset)
	copy(page, ordered[offset:end])

	for i := range page {
		if page[i].UserID == "" {
			continue
		}
		for _, user := range s.usersByEmail {
			if user.ID == page[i].UserID {
				page[i].UserName = user.Name
				break
			}
		}
	}
	return page, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return nil, &store.ValidationError{Fields: map[string]string{"email": "email is already registered"}}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Email = email
	s.usersByEmail[email] = user

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, &store.NotFoundError{Entity: "user", ID: email}
	}
	copied := user
	return &copied, nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByEmail), nil
}

func copySale(sale domain.Sale) domain.Sale {
	copied := sale
	copied.Items = make([]domain.SaleItem, len(sale.Items))
	copy(copied.Items, sale.Items)
	return copied
}
