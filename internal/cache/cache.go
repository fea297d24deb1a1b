package cache

import (
	"context"
	"time"

	"retailpos/internal/domain"
)

// StatsCache holds read-through copies of daily stats. The store stays the
// source of truth; entries are dropped whenever a sale lands on their day.
type StatsCache interface {
	Get(ctx context.Context, shopID string, date string) (*domain.DailyStat, bool, error)
	Set(ctx context.Context, value *domain.DailyStat, ttl time.Duration) error
	Invalidate(ctx context.Context, shopID string, date string) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string, _ string) (*domain.DailyStat, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ *domain.DailyStat, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(_ context.Context, _ string, _ string) error {
	return nil
}

func statsKey(shopID string, date string) string {
	return "retailpos:stats:" + shopID + ":" + date
}
