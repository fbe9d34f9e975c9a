package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/cache"
	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
	"github.com/kalamela/merchant-ledger/internal/forecast"
	"github.com/kalamela/merchant-ledger/internal/realtime"
)

// FetchMode selects the dashboard read path.
type FetchMode string

const (
	ModeRealtime FetchMode = "realtime"
	ModeOffline  FetchMode = "offline"
)

// FetchOptions tune a one-shot dashboard fetch.
type FetchOptions struct {
	Mode    FetchMode
	Refresh bool
}

// Dashboard composes the event store, aggregation engine, realtime sync
// and forecast engine into the single surface callers consume. One
// instance is constructed per process and passed to its callers
// explicitly; there is no hidden shared instance.
type Dashboard struct {
	store    eventstore.Store
	engine   *aggregate.Engine
	sync     *realtime.Service
	cache    cache.SnapshotCache
	forecast *forecast.Engine
}

func NewDashboard(
	store eventstore.Store,
	engine *aggregate.Engine,
	sync *realtime.Service,
	snapshots cache.SnapshotCache,
	forecaster *forecast.Engine,
) *Dashboard {
	return &Dashboard{
		store:    store,
		engine:   engine,
		sync:     sync,
		cache:    snapshots,
		forecast: forecaster,
	}
}

// RecordEvent appends a sales event to the ledger and, when the event is
// new, folds it into the aggregates and schedules a push. Idempotent
// re-delivery returns false without touching derived state.
func (d *Dashboard) RecordEvent(ctx context.Context, event domain.SalesEvent) (bool, error) {
	accepted, err := d.store.Append(ctx, event)
	if err != nil {
		return false, err
	}
	if !accepted {
		log.Debug().
			Str("order_id", event.OrderID).
			Str("event_type", string(event.EventType)).
			Msg("duplicate sales event ignored")
		return false, nil
	}

	d.engine.Apply(event)
	d.sync.Notify(event.MerchantID)

	return true, nil
}

// GetDashboardData is the one-shot fetch. The tiers are, in order:
// live realtime data, the cached snapshot, and finally a zeroed
// structure. Each tier is observable through the returned DataSource so
// callers can tell degraded data from live data.
func (d *Dashboard) GetDashboardData(ctx context.Context, merchantID string, opts FetchOptions) (domain.DashboardData, domain.DataSource) {
	if opts.Mode == ModeOffline {
		if cached, ok, err := d.cache.Get(ctx, merchantID); err == nil && ok {
			return cached.WithState(d.sync.State()), domain.SourceCache
		}
		return d.zeroed(merchantID), domain.SourceEmpty
	}

	snapshot, source, err := d.sync.Snapshot(ctx, merchantID, opts.Refresh)
	if err == nil {
		return snapshot, source
	}

	log.Warn().Err(err).Str("merchant_id", merchantID).Msg("dashboard degraded to empty tier")

	return d.zeroed(merchantID), domain.SourceEmpty
}

// zeroed is the last fallback tier: an empty but well-formed snapshot
// that still carries the connection state indicator.
func (d *Dashboard) zeroed(merchantID string) domain.DashboardData {
	return domain.DashboardData{
		MerchantID:      merchantID,
		RecentEvents:    []domain.SalesEvent{},
		ConnectionState: d.sync.State(),
		GeneratedAt:     time.Now().UTC(),
	}
}

// RecentEvents returns the newest events for a merchant, newest first.
func (d *Dashboard) RecentEvents(ctx context.Context, merchantID string, limit int) ([]domain.SalesEvent, error) {
	return d.store.Query(ctx, merchantID, time.Time{}, limit)
}

// TotalEvents reports the ledger size for a merchant.
func (d *Dashboard) TotalEvents(ctx context.Context, merchantID string) (int, error) {
	return d.store.Count(ctx, merchantID)
}

// Forecast predicts the metric over the horizon from the merchant's
// daily history.
func (d *Dashboard) Forecast(ctx context.Context, merchantID string, horizon int, metric domain.ForecastMetric, confidenceTier int) (*domain.Forecast, error) {
	history := d.engine.History(merchantID, domain.ResolutionDaily, 0)

	return d.forecast.Predict(history, metric, horizon, confidenceTier, time.Now())
}

// SubscribeToDashboard registers a push subscription for the merchant.
func (d *Dashboard) SubscribeToDashboard(merchantID string) (string, <-chan domain.DashboardData) {
	return d.sync.Subscribe(merchantID)
}

// UnsubscribeFromDashboard cancels a subscription; it is a no-op when
// the id is unknown.
func (d *Dashboard) UnsubscribeFromDashboard(subscriptionID string) {
	d.sync.Unsubscribe(subscriptionID)
}

// OnConnectionStateChange registers a connectivity listener and returns
// its cancel function.
func (d *Dashboard) OnConnectionStateChange(fn func(domain.ConnectionState)) func() {
	return d.sync.OnStateChange(fn)
}

// ConnectionState exposes the sync service's current state.
func (d *Dashboard) ConnectionState() domain.ConnectionState {
	return d.sync.State()
}
