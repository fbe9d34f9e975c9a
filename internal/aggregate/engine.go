package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
)

// revenueEpsilon is the maximum drift tolerated between an incremental
// aggregate and its recomputation from the raw log before the bucket is
// force-replaced.
const revenueEpsilon = 0.005

type bucketKey struct {
	merchantID string
	resolution domain.Resolution
	periodKey  string
}

// orderTally accumulates the per-order amounts inside one bucket. Refund
// subtraction is clamped to what the order actually paid, so a refund
// without a matching paid event is recorded but never drives the bucket
// negative.
type orderTally struct {
	paidAmount     float64
	refundedAmount float64
	paidQty        int
	refundedQty    int
	qualifying     bool
}

// bucket is the only shared mutable state in the system. Updates are
// serialized by its mutex; the exported aggregate is recomputed from the
// order tallies on every apply, never edited in place.
type bucket struct {
	mu       sync.Mutex
	orders   map[string]*orderTally
	products map[string]struct{}
	agg      domain.SalesAggregate
}

func newBucket(key bucketKey) *bucket {
	return &bucket{
		orders:   make(map[string]*orderTally),
		products: make(map[string]struct{}),
		agg: domain.SalesAggregate{
			MerchantID: key.merchantID,
			Resolution: key.resolution,
			PeriodKey:  key.periodKey,
		},
	}
}

// apply folds one event into the bucket and recomputes the aggregate.
func (b *bucket) apply(event domain.SalesEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tally, ok := b.orders[event.OrderID]
	if !ok {
		tally = &orderTally{}
		b.orders[event.OrderID] = tally
	}

	switch {
	case event.EventType.CountsTowardRevenue():
		tally.paidAmount += event.TotalAmount
		tally.paidQty += event.Quantity
		tally.qualifying = true
		b.products[event.ProductID] = struct{}{}
	case event.EventType.CountsAgainstRevenue():
		tally.refundedAmount += event.TotalAmount
		tally.refundedQty += event.Quantity
	default:
		// order_created carries no revenue effect.
		return
	}

	b.recomputeLocked()
}

func (b *bucket) recomputeLocked() {
	var (
		gross    float64
		net      float64
		quantity int
		orders   int
	)

	for _, tally := range b.orders {
		gross += tally.paidAmount
		net += tally.paidAmount - math.Min(tally.refundedAmount, tally.paidAmount)
		qty := tally.paidQty - tally.refundedQty
		if qty < 0 {
			qty = 0
		}
		quantity += qty
		if tally.qualifying {
			orders++
		}
	}
	if net < 0 {
		net = 0
	}

	b.agg.TotalRevenue = gross
	b.agg.NetRevenue = net
	b.agg.TotalQuantity = quantity
	b.agg.TotalOrders = orders
	b.agg.UniqueProducts = len(b.products)
	if orders > 0 {
		b.agg.AverageOrder = gross / float64(orders)
	} else {
		b.agg.AverageOrder = 0
	}
}

func (b *bucket) snapshot() domain.SalesAggregate {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.agg
}

// Engine derives multi-resolution rollups from the event stream. Every
// bucket value is reproducible by replaying the log; Verify enforces that
// and force-replaces any bucket that drifted.
type Engine struct {
	store eventstore.Store

	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
	stale   map[string]bool
}

func NewEngine(store eventstore.Store) *Engine {
	return &Engine{
		store:   store,
		buckets: make(map[bucketKey]*bucket),
		stale:   make(map[string]bool),
	}
}

// Apply folds an accepted event into every resolution bucket its
// timestamp falls into. Different buckets may be updated concurrently;
// updates within one bucket are serialized.
func (e *Engine) Apply(event domain.SalesEvent) {
	for _, resolution := range domain.Resolutions {
		key := bucketKey{
			merchantID: event.MerchantID,
			resolution: resolution,
			periodKey:  resolution.PeriodKey(event.EventTimestamp),
		}
		e.bucketFor(key).apply(event)
	}

	e.mu.Lock()
	e.stale[event.MerchantID] = false
	e.mu.Unlock()
}

func (e *Engine) bucketFor(key bucketKey) *bucket {
	e.mu.RLock()
	b, ok := e.buckets[key]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.buckets[key]; ok {
		return b
	}
	b = newBucket(key)
	e.buckets[key] = b

	return b
}

// CurrentTotals returns the running net revenue for the periods that
// contain now. Missing buckets read as zero.
func (e *Engine) CurrentTotals(merchantID string, now time.Time) domain.CurrentSales {
	lookup := func(resolution domain.Resolution) float64 {
		key := bucketKey{merchantID, resolution, resolution.PeriodKey(now)}
		e.mu.RLock()
		b, ok := e.buckets[key]
		e.mu.RUnlock()
		if !ok {
			return 0
		}
		return b.snapshot().NetRevenue
	}

	return domain.CurrentSales{
		Today:     lookup(domain.ResolutionDaily),
		ThisWeek:  lookup(domain.ResolutionWeekly),
		ThisMonth: lookup(domain.ResolutionMonthly),
		ThisYear:  lookup(domain.ResolutionYearly),
	}
}

// History returns up to count aggregates for the merchant at the given
// resolution, most recent period first. Period keys sort lexically in
// chronological order for every supported format.
func (e *Engine) History(merchantID string, resolution domain.Resolution, count int) []domain.SalesAggregate {
	e.mu.RLock()
	matched := make([]*bucket, 0)
	for key, b := range e.buckets {
		if key.merchantID == merchantID && key.resolution == resolution {
			matched = append(matched, b)
		}
	}
	e.mu.RUnlock()

	aggregates := make([]domain.SalesAggregate, 0, len(matched))
	for _, b := range matched {
		aggregates = append(aggregates, b.snapshot())
	}
	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].PeriodKey > aggregates[j].PeriodKey
	})

	if count > 0 && len(aggregates) > count {
		aggregates = aggregates[:count]
	}

	return aggregates
}

// Stale reports whether the merchant's aggregates could not be refreshed
// from the store and still reflect the last good snapshot.
func (e *Engine) Stale(merchantID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.stale[merchantID]
}

// Rebuild discards the merchant's buckets and recomputes them by
// replaying the log in append order. If the store is unreachable the
// previous snapshot is kept and tagged stale rather than failing the
// caller's read path.
func (e *Engine) Rebuild(ctx context.Context, merchantID string) error {
	fresh := make(map[bucketKey]*bucket)

	err := e.store.Replay(ctx, merchantID, func(event domain.SalesEvent) error {
		for _, resolution := range domain.Resolutions {
			key := bucketKey{merchantID, resolution, resolution.PeriodKey(event.EventTimestamp)}
			b, ok := fresh[key]
			if !ok {
				b = newBucket(key)
				fresh[key] = b
			}
			b.apply(event)
		}
		return nil
	})
	if err != nil {
		e.mu.Lock()
		e.stale[merchantID] = true
		e.mu.Unlock()
		return fmt.Errorf("rebuild aggregates for %s: %w", merchantID, err)
	}

	e.mu.Lock()
	for key := range e.buckets {
		if key.merchantID == merchantID {
			delete(e.buckets, key)
		}
	}
	for key, b := range fresh {
		e.buckets[key] = b
	}
	e.stale[merchantID] = false
	e.mu.Unlock()

	return nil
}

// RebuildAll rebuilds several merchants in parallel.
func (e *Engine) RebuildAll(ctx context.Context, merchantIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, merchantID := range merchantIDs {
		merchantID := merchantID
		g.Go(func() error {
			return e.Rebuild(ctx, merchantID)
		})
	}

	return g.Wait()
}

// Verify recomputes one bucket from the raw log and compares it against
// the incremental value. Divergence is logged and the bucket is replaced
// with the recomputed value. It returns true when the bucket was already
// consistent.
func (e *Engine) Verify(ctx context.Context, merchantID string, resolution domain.Resolution, periodKey string) (bool, error) {
	key := bucketKey{merchantID, resolution, periodKey}
	recomputed := newBucket(key)

	err := e.store.Replay(ctx, merchantID, func(event domain.SalesEvent) error {
		if resolution.PeriodKey(event.EventTimestamp) == periodKey {
			recomputed.apply(event)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("verify bucket %s/%s/%s: %w", merchantID, resolution, periodKey, err)
	}

	current := e.bucketFor(key).snapshot()
	expected := recomputed.snapshot()

	consistent := math.Abs(current.TotalRevenue-expected.TotalRevenue) <= revenueEpsilon &&
		math.Abs(current.NetRevenue-expected.NetRevenue) <= revenueEpsilon &&
		current.TotalOrders == expected.TotalOrders &&
		current.TotalQuantity == expected.TotalQuantity
	if !consistent {
		log.Error().
			Str("merchant_id", merchantID).
			Str("resolution", string(resolution)).
			Str("period_key", periodKey).
			Float64("have_revenue", current.TotalRevenue).
			Float64("want_revenue", expected.TotalRevenue).
			Msg("aggregate diverged from log, forcing recomputation")

		e.mu.Lock()
		e.buckets[key] = recomputed
		e.mu.Unlock()
	}

	return consistent, nil
}
