package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"minimart/backend/internal/domain"
	"minimart/backend/internal/store"
	"minimart/backend/internal/xid"
)

// Store is the durable Repository backed by PostgreSQL. Sale recording runs
// as a serializable transaction with row locks on the affected products, so
// concurrent sales against the same product are serialized by the database.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, cost, quantity, created_at, updated_at
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, storageErr("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, cost, quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "product", ID: id}
		}
		return nil, storageErr("get product", err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, price, cost, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.Price, product.Cost, product.Quantity).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, storageErr("create product", err)
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, cost = $4, quantity = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.Price, product.Cost, product.Quantity).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "product", ID: product.ID}
		}
		return nil, storageErr("update product", err)
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storageErr("delete product", err)
	}
	defer func() { _ = tx.Rollback() }()

	var references int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sale_items WHERE product_id = $1
	`, id).Scan(&references)
	if err != nil {
		return storageErr("delete product", err)
	}
	if references > 0 {
		return &store.ReferentialIntegrityError{ProductID: id, References: references}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete product", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete product", err)
	}
	if affected == 0 {
		return &store.NotFoundError{Entity: "product", ID: id}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete product", err)
	}
	return nil
}

// RecordSale runs the whole sale as one serializable transaction. Each line
// reads its product row with FOR UPDATE inside the transaction, so a later
// line for the same product observes the decrement an earlier line already
// applied. Any failure rolls everything back.
func (s *Store) RecordSale(ctx context.Context, lines []domain.SaleLine, cashierID string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, storageErr("record sale", err)
	}
	defer func() { _ = tx.Rollback() }()

	saleID := xid.New("sale")
	items := make([]domain.SaleItem, 0, len(lines))
	totalAmount := decimal.Zero
	totalProfit := decimal.Zero

	for _, line := range lines {
		var (
			productID string
			name      string
			price     decimal.Decimal
			cost      decimal.Decimal
			quantity  int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, price, cost, quantity
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, line.ProductID).Scan(&productID, &name, &price, &cost, &quantity)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &store.NotFoundError{Entity: "product", ID: line.ProductID}
			}
			return nil, storageErr("record sale", err)
		}

		if quantity < line.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID:   productID,
				ProductName: name,
				Available:   quantity,
				Requested:   line.Quantity,
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $1, updated_at = now()
			WHERE id = $2
		`, line.Quantity, productID)
		if err != nil {
			return nil, storageErr("record sale", err)
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		totalAmount = totalAmount.Add(price.Mul(qty))
		totalProfit = totalProfit.Add(price.Sub(cost).Mul(qty))

		items = append(items, domain.SaleItem{
			ID:          xid.New("item"),
			SaleID:      saleID,
			ProductID:   productID,
			ProductName: name,
			Quantity:    line.Quantity,
			PriceAtSale: price,
			CostAtSale:  cost,
		})
	}

	saleDate := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, total_amount, total_profit, sale_date, cashier_id)
		VALUES ($1,$2,$3,$4,$5)
	`, saleID, totalAmount, totalProfit, saleDate, nullIfEmpty(cashierID))
	if err != nil {
		return nil, storageErr("record sale", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, price_at_sale, cost_at_sale)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.PriceAtSale, item.CostAtSale)
		if err != nil {
			return nil, storageErr("record sale", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("record sale", err)
	}

	sale := domain.Sale{
		ID:          saleID,
		Items:       items,
		TotalAmount: totalAmount,
		TotalProfit: totalProfit,
		SaleDate:    saleDate,
		CashierID:   cashierID,
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.total_amount, s.total_profit, s.sale_date,
			COALESCE(s.cashier_id, ''), COALESCE(u.name, '')
		FROM sales s
		LEFT JOIN users u ON u.id = s.cashier_id
		ORDER BY s.sale_date DESC
	`)
	if err != nil {
		return nil, storageErr("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.TotalAmount, &sale.TotalProfit, &sale.SaleDate, &sale.CashierID, &sale.CashierName); err != nil {
			return nil, storageErr("list sales", err)
		}
		sale.Items = make([]domain.SaleItem, 0, 4)
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sales", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	saleIDs := make([]string, 0, len(sales))
	for _, sale := range sales {
		saleIDs = append(saleIDs, sale.ID)
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, price_at_sale, cost_at_sale
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, storageErr("list sales", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PriceAtSale, &item.CostAtSale); err != nil {
			return nil, storageErr("list sales", err)
		}
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, storageErr("list sales", err)
	}

	return sales, nil
}

func (s *Store) TotalCash(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0) FROM sales
	`).Scan(&total)
	if err != nil {
		return decimal.Zero, storageErr("total cash", err)
	}
	return total, nil
}

func (s *Store) StockValue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost * quantity), 0) FROM products
	`).Scan(&total)
	if err != nil {
		return decimal.Zero, storageErr("stock value", err)
	}
	return total, nil
}

func (s *Store) ProfitSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_profit), 0) FROM sales WHERE sale_date >= $1
	`, since).Scan(&total)
	if err != nil {
		return decimal.Zero, storageErr("profit since", err)
	}
	return total, nil
}

func (s *Store) LowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, cost, quantity, created_at, updated_at
		FROM products
		WHERE quantity < $1
		ORDER BY quantity ASC, name ASC
	`, threshold)
	if err != nil {
		return nil, storageErr("low stock products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, storageErr("low stock products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("low stock products", err)
	}
	return products, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, user_id, details, ip_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.Action, nullIfEmpty(entry.UserID), nullIfEmpty(entry.Details), nullIfEmpty(entry.IPAddress), entry.CreatedAt)
	if err != nil {
		return storageErr("create audit log", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int, offset int) ([]domain.AuditLogEntry, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.action, COALESCE(a.user_id, ''), COALESCE(u.name, ''),
			COALESCE(a.details, ''), COALESCE(a.ip_address, ''), a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storageErr("list audit logs", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLogEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.UserID, &entry.UserName, &entry.Details, &entry.IPAddress, &entry.CreatedAt); err != nil {
			return nil, storageErr("list audit logs", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list audit logs", err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING created_at
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.ValidationError{Fields: map[string]string{"email": "email is already registered"}}
		}
		return nil, storageErr("create user", err)
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "user", ID: email}
		}
		return nil, storageErr("get user", err)
	}
	return &user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, storageErr("count users", err)
	}
	return count, nil
}

// storageErr wraps infrastructure errors; domain errors pass through as-is.
func storageErr(op string, err error) error {
	return &store.StorageError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
