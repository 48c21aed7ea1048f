package cache

import (
	"context"
	"time"
)

// Keys for the read views the sale engine invalidates after every commit.
const (
	KeyProducts  = "view:products"
	KeySales     = "view:sales"
	KeyDashboard = "view:dashboard"
)

// ViewCache stores rendered read views (product list, sale list, dashboard
// metrics, exchange rates) as opaque payloads. Implementations must treat a
// miss and an unreachable backend the same way: callers always fall back to
// the repository.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopViewCache struct{}

func (NoopViewCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopViewCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopViewCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
