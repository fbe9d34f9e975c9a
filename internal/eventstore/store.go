package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

var (
	// ErrUnavailable signals the backing store cannot be reached. Read
	// paths degrade through the cache fallback chain instead of failing
	// the caller.
	ErrUnavailable = errors.New("event store unavailable")
)

// Store is the append-only sales event log. Events are never mutated or
// deleted; re-delivery of a previously seen (orderId, eventType) pair is
// a silent no-op so producers can retry safely.
type Store interface {
	// Append validates and records an event. It returns false with a nil
	// error when the event was already present.
	Append(ctx context.Context, event domain.SalesEvent) (bool, error)

	// Query returns up to limit events for a merchant since the given
	// timestamp, newest first. A zero since means the whole log.
	Query(ctx context.Context, merchantID string, since time.Time, limit int) ([]domain.SalesEvent, error)

	// Replay streams a merchant's events in original append order. It is
	// the basis for rebuilding derived aggregates.
	Replay(ctx context.Context, merchantID string, fn func(domain.SalesEvent) error) error

	// Count returns the number of events recorded for a merchant.
	Count(ctx context.Context, merchantID string) (int, error)
}
