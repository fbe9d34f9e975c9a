package cache

import (
	"context"
	"sync"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

// memorySnapshotCache is a process-local SnapshotCache used in tests and
// single-node deployments where redis is not configured.
type memorySnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]domain.DashboardData
}

func NewMemorySnapshotCache() SnapshotCache {
	return &memorySnapshotCache{snapshots: make(map[string]domain.DashboardData)}
}

func (c *memorySnapshotCache) Get(_ context.Context, merchantID string) (*domain.DashboardData, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.snapshots[merchantID]
	if !ok {
		return nil, false, nil
	}

	return &snapshot, true, nil
}

func (c *memorySnapshotCache) Set(_ context.Context, merchantID string, snapshot *domain.DashboardData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[merchantID] = *snapshot

	return nil
}

func (c *memorySnapshotCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = make(map[string]domain.DashboardData)

	return nil
}
