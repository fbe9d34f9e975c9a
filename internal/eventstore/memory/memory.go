package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

// Store is an in-memory append-only event log. It is the default backend
// for tests and single-process deployments; the postgres store provides
// the durable equivalent.
type Store struct {
	mu         sync.RWMutex
	byMerchant map[string][]domain.SalesEvent
	seen       map[string]struct{}
}

func New() *Store {
	return &Store{
		byMerchant: make(map[string][]domain.SalesEvent),
		seen:       make(map[string]struct{}),
	}
}

func (s *Store) Append(_ context.Context, event domain.SalesEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.MerchantID + "::" + event.DedupKey()
	if _, dup := s.seen[key]; dup {
		return false, nil
	}

	s.seen[key] = struct{}{}
	s.byMerchant[event.MerchantID] = append(s.byMerchant[event.MerchantID], event)

	return true, nil
}

func (s *Store) Query(_ context.Context, merchantID string, since time.Time, limit int) ([]domain.SalesEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.byMerchant[merchantID]
	results := make([]domain.SalesEvent, 0, len(log))

	// Walk backwards so ties between equal timestamps resolve to the
	// newest append, matching the postgres ordering.
	for i := len(log) - 1; i >= 0; i-- {
		if !since.IsZero() && log[i].EventTimestamp.Before(since) {
			continue
		}
		results = append(results, log[i])
	}

	// Newest event time first; backdated appends sort into place.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].EventTimestamp.After(results[j].EventTimestamp)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *Store) Replay(ctx context.Context, merchantID string, fn func(domain.SalesEvent) error) error {
	s.mu.RLock()
	log := make([]domain.SalesEvent, len(s.byMerchant[merchantID]))
	copy(log, s.byMerchant[merchantID])
	s.mu.RUnlock()

	for _, event := range log {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(event); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) Count(_ context.Context, merchantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byMerchant[merchantID]), nil
}
