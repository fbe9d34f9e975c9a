package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

func testEvent(orderID string, eventType domain.EventType, ts time.Time) domain.SalesEvent {
	return domain.SalesEvent{
		OrderID:        orderID,
		EventType:      eventType,
		ProductID:      "prod-001",
		ProductName:    "Terracotta Planter",
		Quantity:       1,
		UnitPrice:      600,
		TotalAmount:    600,
		EventTimestamp: ts,
		MerchantID:     "merchant-1",
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	accepted, err := store.Append(ctx, testEvent("ord-1", domain.EventOrderPaid, ts))
	require.NoError(t, err)
	assert.True(t, accepted)

	// Same order and type again: rejected without error.
	accepted, err = store.Append(ctx, testEvent("ord-1", domain.EventOrderPaid, ts))
	require.NoError(t, err)
	assert.False(t, accepted)

	// Same order, different lifecycle stage: accepted.
	accepted, err = store.Append(ctx, testEvent("ord-1", domain.EventOrderRefunded, ts))
	require.NoError(t, err)
	assert.True(t, accepted)

	count, err := store.Count(ctx, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	store := New()
	event := testEvent("ord-1", domain.EventOrderPaid, time.Now())
	event.TotalAmount = 42 // breaks quantity * unitPrice

	accepted, err := store.Append(context.Background(), event)
	assert.False(t, accepted)
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestQueryReturnsNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, testEvent(fmt.Sprintf("ord-%d", i), domain.EventOrderPaid, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	events, err := store.Query(ctx, "merchant-1", time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ord-4", events[0].OrderID)
	assert.Equal(t, "ord-2", events[2].OrderID)
}

// Ordering is by event timestamp, not append order, matching the
// postgres backend. A backdated event sorts into place.
func TestQueryOrdersBackdatedEventsByTimestamp(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, testEvent("ord-mon", domain.EventOrderPaid, base))
	require.NoError(t, err)
	_, err = store.Append(ctx, testEvent("ord-wed", domain.EventOrderPaid, base.AddDate(0, 0, 2)))
	require.NoError(t, err)
	// Arrives last but happened in between.
	_, err = store.Append(ctx, testEvent("ord-tue", domain.EventOrderPaid, base.AddDate(0, 0, 1)))
	require.NoError(t, err)

	events, err := store.Query(ctx, "merchant-1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ord-wed", events[0].OrderID)
	assert.Equal(t, "ord-tue", events[1].OrderID)
	assert.Equal(t, "ord-mon", events[2].OrderID)

	// The limit keeps the newest by timestamp, not the newest appends.
	events, err = store.Query(ctx, "merchant-1", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ord-wed", events[0].OrderID)
	assert.Equal(t, "ord-tue", events[1].OrderID)
}

func TestQuerySinceFilters(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := store.Append(ctx, testEvent(fmt.Sprintf("ord-%d", i), domain.EventOrderPaid, base.AddDate(0, 0, i)))
		require.NoError(t, err)
	}

	events, err := store.Query(ctx, "merchant-1", base.AddDate(0, 0, 2), 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestReplayPreservesAppendOrder(t *testing.T) {
	store := New()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Append out of timestamp order; replay must follow append order.
	_, err := store.Append(ctx, testEvent("ord-late", domain.EventOrderPaid, ts.Add(time.Hour)))
	require.NoError(t, err)
	_, err = store.Append(ctx, testEvent("ord-early", domain.EventOrderPaid, ts))
	require.NoError(t, err)

	var seen []string
	err = store.Replay(ctx, "merchant-1", func(event domain.SalesEvent) error {
		seen = append(seen, event.OrderID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-late", "ord-early"}, seen)
}

func TestReplayStopsOnCancelledContext(t *testing.T) {
	store := New()
	_, err := store.Append(context.Background(), testEvent("ord-1", domain.EventOrderPaid, time.Now()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Replay(ctx, "merchant-1", func(domain.SalesEvent) error {
		t.Fatal("callback should not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerchantIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	event := testEvent("ord-1", domain.EventOrderPaid, time.Now())
	_, err := store.Append(ctx, event)
	require.NoError(t, err)

	other := event
	other.MerchantID = "merchant-2"
	accepted, err := store.Append(ctx, other)
	require.NoError(t, err)
	assert.True(t, accepted, "dedup keys are scoped per merchant")

	count, err := store.Count(ctx, "merchant-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
