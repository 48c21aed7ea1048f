package store

import (
	"context"
	"time"

	"minimart/backend/internal/domain"

	"github.com/shopspring/decimal"
)

// Repository is the shared storage boundary. RecordSale is the only path
// that mutates product quantities together with the sale ledger; both
// implementations run it as one indivisible unit of work.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	RecordSale(ctx context.Context, lines []domain.SaleLine, cashierID string) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)

	TotalCash(ctx context.Context) (decimal.Decimal, error)
	StockValue(ctx context.Context) (decimal.Decimal, error)
	ProfitSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	LowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, limit int, offset int) ([]domain.AuditLogEntry, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CountUsers(ctx context.Context) (int, error)
}
