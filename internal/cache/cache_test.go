package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/internal/domain"
)

func TestNoopStatsCacheNeverHits(t *testing.T) {
	var c StatsCache = NoopStatsCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &domain.DailyStat{ShopID: "s", Date: "2026-03-10"}, time.Minute))
	got, ok, err := c.Get(ctx, "s", "2026-03-10")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, "s", "2026-03-10"))
}

func TestStatsKeySeparatesShopsAndDays(t *testing.T) {
	assert.Equal(t, "retailpos:stats:main-shop:2026-03-10", statsKey("main-shop", "2026-03-10"))
	assert.NotEqual(t, statsKey("a", "2026-03-10"), statsKey("b", "2026-03-10"))
}

func TestNewRedisStatsCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisStatsCache("not a url")
	assert.Error(t, err)
}
