package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
)

const replayBatchSize = 500

// Store persists the sales ledger in the sales_events table. Appends are
// idempotent on (order_id, event_type); the unique constraint does the
// dedup so concurrent producers never race.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event domain.SalesEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, err
	}

	release, err := s.db.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	query := `
        INSERT INTO sales_events (
            order_id, event_type, product_id, product_name, product_category,
            quantity, unit_price, total_amount, channel, event_timestamp,
            merchant_id, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
        )
        ON CONFLICT (order_id, event_type) DO NOTHING
    `

	result, err := s.db.ExecContext(ctx, query,
		event.OrderID,
		string(event.EventType),
		event.ProductID,
		event.ProductName,
		event.ProductCategory,
		event.Quantity,
		event.UnitPrice,
		event.TotalAmount,
		event.Channel,
		event.EventTimestamp.UTC(),
		event.MerchantID,
	)
	if err != nil {
		log.Error().Err(err).Str("order_id", event.OrderID).Msg("failed to append sales event")
		return false, fmt.Errorf("%w: %v", eventstore.ErrUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read append result: %w", err)
	}

	return rows > 0, nil
}

func (s *Store) Query(ctx context.Context, merchantID string, since time.Time, limit int) ([]domain.SalesEvent, error) {
	release, err := s.db.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
        SELECT order_id, event_type, product_id, product_name, product_category,
               quantity, unit_price, total_amount, channel, event_timestamp, merchant_id
        FROM sales_events
        WHERE merchant_id = $1 AND event_timestamp >= $2
        ORDER BY event_timestamp DESC, id DESC
        LIMIT $3
    `

	if limit <= 0 {
		limit = 100
	}

	var events []domain.SalesEvent
	if err := s.db.SelectContext(ctx, &events, query, merchantID, since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("%w: %v", eventstore.ErrUnavailable, err)
	}

	return events, nil
}

func (s *Store) Replay(ctx context.Context, merchantID string, fn func(domain.SalesEvent) error) error {
	release, err := s.db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
        SELECT id, order_id, event_type, product_id, product_name, product_category,
               quantity, unit_price, total_amount, channel, event_timestamp, merchant_id
        FROM sales_events
        WHERE merchant_id = $1 AND id > $2
        ORDER BY id ASC
        LIMIT $3
    `

	lastID := int64(0)
	for {
		rows, err := s.db.QueryxContext(ctx, query, merchantID, lastID, replayBatchSize)
		if err != nil {
			return fmt.Errorf("%w: %v", eventstore.ErrUnavailable, err)
		}

		fetched := 0
		for rows.Next() {
			var (
				event domain.SalesEvent
				id    int64
			)
			if err := rows.Scan(
				&id, &event.OrderID, &event.EventType, &event.ProductID,
				&event.ProductName, &event.ProductCategory, &event.Quantity,
				&event.UnitPrice, &event.TotalAmount, &event.Channel,
				&event.EventTimestamp, &event.MerchantID,
			); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan sales event: %w", err)
			}
			lastID = id
			if err := fn(event); err != nil {
				rows.Close()
				return err
			}
			fetched++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("%w: %v", eventstore.ErrUnavailable, err)
		}
		rows.Close()

		if fetched < replayBatchSize {
			return nil
		}
	}
}

func (s *Store) Count(ctx context.Context, merchantID string) (int, error) {
	release, err := s.db.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var count int
	err = s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sales_events WHERE merchant_id = $1", merchantID)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %v", eventstore.ErrUnavailable, err)
	}

	return count, nil
}
