package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Product is a catalog entry. All monetary amounts are USD.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProductInput carries the writable product fields for create and update.
// Updates replace every field.
type ProductInput struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity int             `json:"quantity"`
}

// SaleItem is a line of a committed sale. ProductName, PriceAtSale and
// CostAtSale are snapshots taken inside the sale transaction; they never
// change when the product later does.
type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale"`
	CostAtSale  decimal.Decimal `json:"cost_at_sale"`
}

// Sale is an immutable committed sale header with its items.
type Sale struct {
	ID          string          `json:"id"`
	Items       []SaleItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	SaleDate    time.Time       `json:"sale_date"`
	CashierID   string          `json:"cashier_id,omitempty"`
	CashierName string          `json:"cashier_name,omitempty"`
}

// SaleLine is one requested line of a sale: which product, how many.
// Prices are never accepted from the caller.
type SaleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	Items []SaleLine `json:"items"`
}

type DashboardMetrics struct {
	TotalCash         decimal.Decimal `json:"total_cash"`
	CurrentStockValue decimal.Decimal `json:"current_stock_value"`
	DailyProfit       decimal.Decimal `json:"daily_profit"`
	WeeklyProfit      decimal.Decimal `json:"weekly_profit"`
	LowStockItems     []Product       `json:"low_stock_items"`
}

// AuditLogEntry is the persisted form of an audit event. Details holds the
// encoded (possibly encrypted) payload exactly as stored.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Details   string    `json:"-"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLogView is an entry prepared for display: Details decoded back into
// structured data, or a marker string when decoding fails.
type AuditLogView struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	Details   any       `json:"details"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an internal persistence model for auth credentials.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Actor identifies the authenticated user behind a request. It travels on
// the request context; there is no process-wide current-user state.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}
