package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/cache"
	"github.com/kalamela/merchant-ledger/internal/config"
	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
)

type subscriber struct {
	id         string
	merchantID string
	ch         chan domain.DashboardData
	closed     bool
}

// Service fans dashboard snapshots out to subscribers and tracks the
// connection state of the delivery path. Bursts of events inside one
// coalescing window collapse into a single delivered snapshot per
// subscriber; slow consumers never stall ingestion because sends are
// non-blocking against a bounded per-subscriber queue.
type Service struct {
	engine *aggregate.Engine
	store  eventstore.Store
	cache  cache.SnapshotCache
	cfg    config.RealtimeConfig

	mu             sync.Mutex
	state          domain.ConnectionState
	subs           map[string]*subscriber
	byMerchant     map[string]map[string]*subscriber
	dirty          map[string]struct{}
	lastSnapshot   map[string]domain.DashboardData
	stateListeners map[string]func(domain.ConnectionState)
	reconnecting   bool

	now func() time.Time
}

func NewService(engine *aggregate.Engine, store eventstore.Store, snapshots cache.SnapshotCache, cfg config.RealtimeConfig) *Service {
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = 250 * time.Millisecond
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 8
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = 20
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	return &Service{
		engine:         engine,
		store:          store,
		cache:          snapshots,
		cfg:            cfg,
		state:          domain.StateOnline,
		subs:           make(map[string]*subscriber),
		byMerchant:     make(map[string]map[string]*subscriber),
		dirty:          make(map[string]struct{}),
		lastSnapshot:   make(map[string]domain.DashboardData),
		stateListeners: make(map[string]func(domain.ConnectionState)),
		now:            time.Now,
	}
}

// Start launches the coalescing flush loop and the periodic fallback
// refresh. Both stop when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.flushLoop(ctx)
	if s.cfg.RefreshInterval > 0 {
		go s.refreshLoop(ctx)
	}
}

// Subscribe registers a delivery channel for a merchant's snapshots.
// The channel is bounded; when the consumer falls behind, intermediate
// snapshots are dropped in favour of newer ones.
func (s *Service) Subscribe(merchantID string) (string, <-chan domain.DashboardData) {
	sub := &subscriber{
		id:         uuid.NewString(),
		merchantID: merchantID,
		ch:         make(chan domain.DashboardData, s.cfg.SubscriberBuffer),
	}

	s.mu.Lock()
	s.subs[sub.id] = sub
	if s.byMerchant[merchantID] == nil {
		s.byMerchant[merchantID] = make(map[string]*subscriber)
	}
	s.byMerchant[merchantID][sub.id] = sub
	s.dirty[merchantID] = struct{}{}
	s.mu.Unlock()

	return sub.id, sub.ch
}

// Unsubscribe removes a subscription. It is idempotent and safe to call
// while a delivery is in flight; the subscriber is simply skipped.
func (s *Service) Unsubscribe(subscriptionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subscriptionID]
	if !ok {
		return
	}
	delete(s.subs, subscriptionID)
	delete(s.byMerchant[sub.merchantID], subscriptionID)
	if len(s.byMerchant[sub.merchantID]) == 0 {
		delete(s.byMerchant, sub.merchantID)
	}
	sub.closed = true
	close(sub.ch)
}

// Notify marks a merchant as needing a push. Multiple notifications
// inside one coalescing window produce a single delivery.
func (s *Service) Notify(merchantID string) {
	s.mu.Lock()
	s.dirty[merchantID] = struct{}{}
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Service) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// OnStateChange registers a listener for connection state transitions
// and returns a cancel function.
func (s *Service) OnStateChange(fn func(domain.ConnectionState)) func() {
	id := uuid.NewString()

	s.mu.Lock()
	s.stateListeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.stateListeners, id)
		s.mu.Unlock()
	}
}

// Snapshot serves the one-shot fetch path. While online it builds a live
// snapshot; when degraded it falls back to the cached snapshot tagged
// with the current state.
func (s *Service) Snapshot(ctx context.Context, merchantID string, refresh bool) (domain.DashboardData, domain.DataSource, error) {
	if s.State() == domain.StateOnline {
		live := true
		if refresh {
			if err := s.engine.Rebuild(ctx, merchantID); err != nil {
				// The log is unreachable; a live snapshot built now would
				// misreport stale aggregates as realtime.
				s.MarkTransportFailure()
				live = false
			}
		}
		if live {
			snapshot, err := s.buildSnapshot(ctx, merchantID)
			if err == nil {
				return snapshot, domain.SourceRealtime, nil
			}
			s.MarkTransportFailure()
		}
	}

	if cached, ok := s.cachedSnapshot(ctx, merchantID); ok {
		return cached.WithState(s.State()), domain.SourceCache, nil
	}

	return domain.DashboardData{}, domain.SourceEmpty, eventstore.ErrUnavailable
}

// MarkTransportFailure records a transport failure, transitions to
// offline and kicks off the reconnect loop.
func (s *Service) MarkTransportFailure() {
	s.mu.Lock()
	transitioned := s.transitionLocked(domain.StateOffline)
	shouldRetry := transitioned && !s.reconnecting
	if shouldRetry {
		s.reconnecting = true
	}
	s.mu.Unlock()

	if transitioned {
		s.deliverOfflineSnapshots()
	}
	if shouldRetry {
		go s.reconnectLoop()
	}
}

// TriggerReconnect restarts the retry loop after retries were exhausted,
// e.g. from a manual refresh.
func (s *Service) TriggerReconnect() {
	s.mu.Lock()
	if s.state != domain.StateOffline || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	go s.reconnectLoop()
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CoalesceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush delivers at most one snapshot per dirty merchant per tick.
func (s *Service) flush(ctx context.Context) {
	if s.State() != domain.StateOnline {
		return
	}

	s.mu.Lock()
	pending := make([]string, 0, len(s.dirty))
	for merchantID := range s.dirty {
		pending = append(pending, merchantID)
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	for _, merchantID := range pending {
		snapshot, err := s.buildSnapshot(ctx, merchantID)
		if err != nil {
			log.Warn().Err(err).Str("merchant_id", merchantID).Msg("push delivery degraded")
			s.MarkTransportFailure()
			return
		}
		s.deliver(merchantID, snapshot)
	}
}

func (s *Service) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh is the poll backstop: it replays every subscribed merchant
// from the event log and coordinates with the push path only through
// the shared cache. The rebuild is what picks up events written outside
// this process, e.g. through the ingest service.
func (s *Service) refresh(ctx context.Context) {
	if s.State() != domain.StateOnline {
		return
	}

	s.mu.Lock()
	merchants := make([]string, 0, len(s.byMerchant))
	for merchantID := range s.byMerchant {
		merchants = append(merchants, merchantID)
	}
	s.mu.Unlock()

	for _, merchantID := range merchants {
		if err := s.engine.Rebuild(ctx, merchantID); err != nil {
			s.MarkTransportFailure()
			return
		}
		if _, err := s.buildSnapshot(ctx, merchantID); err != nil {
			s.MarkTransportFailure()
			return
		}
	}
}

// buildSnapshot composes a fresh immutable DashboardData for a merchant
// and opportunistically stores it in the cache.
func (s *Service) buildSnapshot(ctx context.Context, merchantID string) (domain.DashboardData, error) {
	recent, err := s.store.Query(ctx, merchantID, time.Time{}, s.cfg.RecentEvents)
	if err != nil {
		return domain.DashboardData{}, err
	}

	now := s.now().UTC()
	snapshot := domain.DashboardData{
		MerchantID:   merchantID,
		CurrentSales: s.engine.CurrentTotals(merchantID, now),
		RecentEvents: recent,
		Aggregates: domain.AggregateSeries{
			Daily:   s.engine.History(merchantID, domain.ResolutionDaily, 30),
			Weekly:  s.engine.History(merchantID, domain.ResolutionWeekly, 12),
			Monthly: s.engine.History(merchantID, domain.ResolutionMonthly, 12),
			Yearly:  s.engine.History(merchantID, domain.ResolutionYearly, 5),
		},
		ConnectionState: s.State(),
		Stale:           s.engine.Stale(merchantID),
		GeneratedAt:     now,
	}

	s.mu.Lock()
	s.lastSnapshot[merchantID] = snapshot
	s.mu.Unlock()

	if err := s.cache.Set(ctx, merchantID, &snapshot); err != nil {
		log.Warn().Err(err).Str("merchant_id", merchantID).Msg("snapshot cache write failed")
	}

	return snapshot, nil
}

// cachedSnapshot returns the best degraded-tier snapshot available: the
// shared cache first, then the in-process copy.
func (s *Service) cachedSnapshot(ctx context.Context, merchantID string) (domain.DashboardData, bool) {
	if cached, ok, err := s.cache.Get(ctx, merchantID); err == nil && ok {
		return *cached, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.lastSnapshot[merchantID]

	return snapshot, ok
}

// deliver hands the snapshot to every subscriber of the merchant. A full
// queue drops the oldest entry so the consumer always converges on the
// newest state.
func (s *Service) deliver(merchantID string, snapshot domain.DashboardData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.byMerchant[merchantID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- snapshot:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
		}
	}
}

// deliverOfflineSnapshots pushes one offline-tagged copy of the last
// known snapshot to every subscriber when the transport drops.
func (s *Service) deliverOfflineSnapshots() {
	s.mu.Lock()
	merchants := make([]string, 0, len(s.byMerchant))
	for merchantID := range s.byMerchant {
		merchants = append(merchants, merchantID)
	}
	s.mu.Unlock()

	for _, merchantID := range merchants {
		if snapshot, ok := s.cachedSnapshot(context.Background(), merchantID); ok {
			s.deliver(merchantID, snapshot.WithState(domain.StateOffline))
		}
	}
}

func (s *Service) reconnectLoop() {
	s.mu.Lock()
	if !s.transitionLocked(domain.StateReconnecting) {
		s.reconnecting = false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		time.Sleep(s.cfg.RetryInterval)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_, err := s.store.Count(ctx, "")
		cancel()
		if err == nil {
			s.mu.Lock()
			if s.state == domain.StateOffline {
				// A failure elsewhere pushed us back down mid-retry.
				s.transitionLocked(domain.StateReconnecting)
			}
			s.transitionLocked(domain.StateOnline)
			s.reconnecting = false
			// One fresh delivery per merchant; events missed while
			// offline are folded into this single snapshot.
			for merchantID := range s.byMerchant {
				s.dirty[merchantID] = struct{}{}
			}
			s.mu.Unlock()
			return
		}

		log.Warn().Err(err).Int("attempt", attempt).Msg("resubscription attempt failed")
	}

	s.mu.Lock()
	s.transitionLocked(domain.StateOffline)
	s.reconnecting = false
	s.mu.Unlock()
}

// transitionLocked applies a state change if the machine allows it and
// notifies listeners. Callers must hold s.mu.
func (s *Service) transitionLocked(next domain.ConnectionState) bool {
	if s.state == next {
		return false
	}
	if !s.state.ValidTransition(next) {
		log.Error().
			Str("from", string(s.state)).
			Str("to", string(next)).
			Msg("rejected invalid connection state transition")
		return false
	}

	s.state = next
	for _, fn := range s.stateListeners {
		go fn(next)
	}

	return true
}
