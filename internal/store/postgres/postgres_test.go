package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"minimart/backend/internal/domain"
	"minimart/backend/internal/store"
)

// newTestStore connects to the database named by MINIMART_TEST_DATABASE_URL,
// skipping when it is unset. The schema from schema.sql must already be
// applied; tests create their own rows and tolerate pre-existing data.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("MINIMART_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MINIMART_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestProduct(t *testing.T, s *Store, name, price, cost string, quantity int) domain.Product {
	t.Helper()
	product, err := s.CreateProduct(context.Background(), domain.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Cost:     decimal.RequireFromString(cost),
		Quantity: quantity,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteProduct(context.Background(), product.ID)
	})
	return *product
}

func TestPostgresProductRoundTrip(t *testing.T) {
	s := newTestStore(t)

	created := createTestProduct(t, s, "it Eggs (Dozen)", "4.99", "2.50", 60)

	got, err := s.GetProduct(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != created.Name || got.Quantity != 60 {
		t.Errorf("got %+v, want created product back", got)
	}
	if !got.Price.Equal(decimal.RequireFromString("4.99")) {
		t.Errorf("price = %s, want 4.99", got.Price)
	}
}

func TestPostgresRecordSaleDecrementsAndSnapshots(t *testing.T) {
	s := newTestStore(t)
	product := createTestProduct(t, s, "it Apples (1kg)", "2.99", "1.50", 150)

	sale, err := s.RecordSale(context.Background(), []domain.SaleLine{
		{ProductID: product.ID, Quantity: 2},
	}, "")
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.TotalAmount.Equal(decimal.RequireFromString("5.98")) {
		t.Errorf("total = %s, want 5.98", sale.TotalAmount)
	}
	if sale.Items[0].ProductName != product.Name {
		t.Errorf("item name = %q, want snapshot %q", sale.Items[0].ProductName, product.Name)
	}

	after, err := s.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Quantity != 148 {
		t.Errorf("stock = %d, want 148", after.Quantity)
	}

	// The sold product now has ledger references and cannot be deleted.
	err = s.DeleteProduct(context.Background(), product.ID)
	var refErr *store.ReferentialIntegrityError
	if !errors.As(err, &refErr) {
		t.Errorf("delete sold product: err = %v, want ReferentialIntegrityError", err)
	}
}

func TestPostgresRecordSaleInsufficientStock(t *testing.T) {
	s := newTestStore(t)
	product := createTestProduct(t, s, "it Olive Oil 500ml", "9.99", "6.10", 3)

	_, err := s.RecordSale(context.Background(), []domain.SaleLine{
		{ProductID: product.ID, Quantity: 4},
	}, "")

	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if stockErr.Available != 3 || stockErr.Requested != 4 {
		t.Errorf("available/requested = %d/%d, want 3/4", stockErr.Available, stockErr.Requested)
	}

	after, _ := s.GetProduct(context.Background(), product.ID)
	if after.Quantity != 3 {
		t.Errorf("stock = %d, want 3 unchanged", after.Quantity)
	}
}

func TestPostgresRecordSaleUnknownProduct(t *testing.T) {
	s := newTestStore(t)

	_, err := s.RecordSale(context.Background(), []domain.SaleLine{
		{ProductID: "prod_does_not_exist", Quantity: 1},
	}, "")

	var notFound *store.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}
