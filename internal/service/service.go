package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"minimart/backend/internal/audit"
	"minimart/backend/internal/cache"
	"minimart/backend/internal/domain"
	"minimart/backend/internal/store"
)

// Audit action tags emitted by the service.
const (
	ActionProductCreated       = "PRODUCT_CREATED"
	ActionProductUpdated       = "PRODUCT_UPDATED"
	ActionProductDeleted       = "PRODUCT_DELETED"
	ActionProductDeleteBlocked = "PRODUCT_DELETE_FAILED"
	ActionSaleRecorded         = "SALE_RECORDED"
)

const viewTTL = 5 * time.Minute

type actorContextKey struct{}
type clientIPContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// Service orchestrates the product catalog, the sale transaction engine and
// the dashboard aggregates. All storage goes through the Repository; the
// view cache and audit recorder are best-effort collaborators whose failures
// never fail a business operation.
type Service struct {
	repo              store.Repository
	views             cache.ViewCache
	auditor           audit.Recorder
	auditCodec        audit.Codec
	lowStockThreshold int
	now               func() time.Time
}

func New(repo store.Repository, views cache.ViewCache, auditor audit.Recorder, auditCodec audit.Codec, lowStockThreshold int) *Service {
	if views == nil {
		views = cache.NoopViewCache{}
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	if auditCodec == nil {
		auditCodec = audit.PlainCodec{}
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = 50
	}
	return &Service{
		repo:              repo,
		views:             views,
		auditor:           auditor,
		auditCodec:        auditCodec,
		lowStockThreshold: lowStockThreshold,
		now:               time.Now,
	}
}

// SetClock overrides the service's time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if payload, ok := s.cachedView(ctx, cache.KeyProducts); ok {
		var products []domain.Product
		if err := json.Unmarshal(payload, &products); err == nil {
			return products, nil
		}
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.storeView(ctx, cache.KeyProducts, products)
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, &store.ValidationError{Fields: map[string]string{"id": "product id is required"}}
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateProductInput(input); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:     input.Name,
		Price:    input.Price,
		Cost:     input.Cost,
		Quantity: input.Quantity,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateViews(ctx, cache.KeyProducts, cache.KeyDashboard)
	s.logAudit(ctx, ActionProductCreated, map[string]any{
		"product_id": created.ID,
		"name":       created.Name,
		"price":      created.Price.String(),
		"quantity":   created.Quantity,
	})
	return *created, nil
}

// UpdateProduct replaces every writable field of the product.
func (s *Service) UpdateProduct(ctx context.Context, id string, input domain.ProductInput) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, &store.ValidationError{Fields: map[string]string{"id": "product id is required"}}
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateProductInput(input); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, domain.Product{
		ID:       id,
		Name:     input.Name,
		Price:    input.Price,
		Cost:     input.Cost,
		Quantity: input.Quantity,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateViews(ctx, cache.KeyProducts, cache.KeyDashboard)
	s.logAudit(ctx, ActionProductUpdated, map[string]any{
		"product_id": updated.ID,
		"name":       updated.Name,
		"price":      updated.Price.String(),
		"quantity":   updated.Quantity,
	})
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &store.ValidationError{Fields: map[string]string{"id": "product id is required"}}
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		var refErr *store.ReferentialIntegrityError
		if errors.As(err, &refErr) {
			s.logAudit(ctx, ActionProductDeleteBlocked, map[string]any{
				"product_id": id,
				"references": refErr.References,
			})
		}
		return err
	}

	s.invalidateViews(ctx, cache.KeyProducts, cache.KeyDashboard)
	s.logAudit(ctx, ActionProductDeleted, map[string]any{"product_id": id})
	return nil
}

// RecordSale is the only path by which a sale is recorded. The request is
// validated before any storage access; the repository then applies the whole
// sale atomically. Cache invalidation and the audit event happen only after
// the commit and never undo it.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if err := validateSaleRequest(req); err != nil {
		return domain.Sale{}, err
	}

	cashierID := ""
	if actor, ok := ActorFromContext(ctx); ok {
		cashierID = actor.ID
	}

	sale, err := s.repo.RecordSale(ctx, req.Items, cashierID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateViews(ctx, cache.KeyProducts, cache.KeySales, cache.KeyDashboard)

	lines := make([]map[string]any, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, map[string]any{
			"product_id":    item.ProductID,
			"product_name":  item.ProductName,
			"quantity":      item.Quantity,
			"price_at_sale": item.PriceAtSale.String(),
		})
	}
	s.logAudit(ctx, ActionSaleRecorded, map[string]any{
		"sale_id":      sale.ID,
		"total_amount": sale.TotalAmount.String(),
		"items":        lines,
	})

	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	if payload, ok := s.cachedView(ctx, cache.KeySales); ok {
		var sales []domain.Sale
		if err := json.Unmarshal(payload, &sales); err == nil {
			return sales, nil
		}
	}

	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	s.storeView(ctx, cache.KeySales, sales)
	return sales, nil
}

// DashboardMetrics derives the dashboard figures. Daily profit counts sales
// since local midnight; weekly profit since the start of the current week,
// with the week starting Sunday.
func (s *Service) DashboardMetrics(ctx context.Context) (domain.DashboardMetrics, error) {
	if payload, ok := s.cachedView(ctx, cache.KeyDashboard); ok {
		var metrics domain.DashboardMetrics
		if err := json.Unmarshal(payload, &metrics); err == nil {
			return metrics, nil
		}
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfWeek := startOfDay.AddDate(0, 0, -int(now.Weekday()))

	var metrics domain.DashboardMetrics
	var err error
	if metrics.TotalCash, err = s.repo.TotalCash(ctx); err != nil {
		return domain.DashboardMetrics{}, err
	}
	if metrics.CurrentStockValue, err = s.repo.StockValue(ctx); err != nil {
		return domain.DashboardMetrics{}, err
	}
	if metrics.DailyProfit, err = s.repo.ProfitSince(ctx, startOfDay); err != nil {
		return domain.DashboardMetrics{}, err
	}
	if metrics.WeeklyProfit, err = s.repo.ProfitSince(ctx, startOfWeek); err != nil {
		return domain.DashboardMetrics{}, err
	}
	if metrics.LowStockItems, err = s.repo.LowStockProducts(ctx, s.lowStockThreshold); err != nil {
		return domain.DashboardMetrics{}, err
	}

	s.storeView(ctx, cache.KeyDashboard, metrics)
	return metrics, nil
}

// ListAuditLogs returns decoded audit entries, newest first. Entries whose
// payload cannot be decoded render with a marker instead of failing the page.
func (s *Service) ListAuditLogs(ctx context.Context, limit int, offset int) ([]domain.AuditLogView, error) {
	entries, err := s.repo.ListAuditLogs(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]domain.AuditLogView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, audit.DecodeEntry(s.auditCodec, entry))
	}
	return views, nil
}

func (s *Service) logAudit(ctx context.Context, action string, details map[string]any) {
	event := audit.Event{Details: details, IPAddress: ClientIPFromContext(ctx)}
	if actor, ok := ActorFromContext(ctx); ok {
		event.UserID = actor.ID
	}
	s.auditor.Record(ctx, action, event)
}

func (s *Service) cachedView(ctx context.Context, key string) ([]byte, bool) {
	payload, ok, err := s.views.Get(ctx, key)
	if err != nil {
		log.Printf("[service] WARN: view cache read failed for %s: %v", key, err)
		return nil, false
	}
	return payload, ok
}

func (s *Service) storeView(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.views.Set(ctx, key, payload, viewTTL); err != nil {
		log.Printf("[service] WARN: view cache write failed for %s: %v", key, err)
	}
}

func (s *Service) invalidateViews(ctx context.Context, keys ...string) {
	if err := s.views.Invalidate(ctx, keys...); err != nil {
		log.Printf("[service] WARN: view cache invalidation failed: %v", err)
	}
}

func validateProductInput(input domain.ProductInput) error {
	fields := make(map[string]string)
	if len(input.Name) < 2 {
		fields["name"] = "product name must be at least 2 characters"
	}
	if !input.Price.IsPositive() {
		fields["price"] = "price must be a positive number"
	}
	if input.Cost.IsNegative() {
		fields["cost"] = "cost must be a non-negative number"
	}
	if input.Quantity < 0 {
		fields["quantity"] = "quantity must be a non-negative integer"
	}
	if len(fields) > 0 {
		return &store.ValidationError{Fields: fields}
	}
	return nil
}

func validateSaleRequest(req domain.SaleRequest) error {
	fields := make(map[string]string)
	if len(req.Items) == 0 {
		fields["items"] = "at least one item must be added to the sale"
	}
	for i, line := range req.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			fields[fmt.Sprintf("items[%d].product_id", i)] = "product id is required"
		}
		if line.Quantity < 1 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be a positive integer"
		}
	}
	if len(fields) > 0 {
		return &store.ValidationError{Fields: fields}
	}
	return nil
}
