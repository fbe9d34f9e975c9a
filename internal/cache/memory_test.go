package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

func TestMemorySnapshotCacheRoundTrip(t *testing.T) {
	c := NewMemorySnapshotCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "merchant-1")
	require.NoError(t, err)
	assert.False(t, ok)

	snapshot := domain.DashboardData{
		MerchantID:      "merchant-1",
		CurrentSales:    domain.CurrentSales{Today: 1200},
		ConnectionState: domain.StateOnline,
	}
	require.NoError(t, c.Set(ctx, "merchant-1", &snapshot))

	got, ok, err := c.Get(ctx, "merchant-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot, *got)

	// The cache hands out copies, not aliases.
	got.CurrentSales.Today = 0
	again, ok, err := c.Get(ctx, "merchant-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1200.0, again.CurrentSales.Today)
}

func TestMemorySnapshotCacheInvalidateAll(t *testing.T) {
	c := NewMemorySnapshotCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "m-a", &domain.DashboardData{MerchantID: "m-a"}))
	require.NoError(t, c.Set(ctx, "m-b", &domain.DashboardData{MerchantID: "m-b"}))
	require.NoError(t, c.InvalidateAll(ctx))

	_, ok, err := c.Get(ctx, "m-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopSnapshotCacheNeverHits(t *testing.T) {
	c := NewNoopSnapshotCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "m", &domain.DashboardData{MerchantID: "m"}))
	_, ok, err := c.Get(ctx, "m")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.InvalidateAll(ctx))
}
