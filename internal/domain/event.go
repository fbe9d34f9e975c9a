package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// EventType identifies the lifecycle stage a sales event records.
type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderPaid      EventType = "order_paid"
	EventOrderFulfilled EventType = "order_fulfilled"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderRefunded  EventType = "order_refunded"
)

var eventTypes = map[string]EventType{
	"order_created":   EventOrderCreated,
	"order_paid":      EventOrderPaid,
	"order_fulfilled": EventOrderFulfilled,
	"order_cancelled": EventOrderCancelled,
	"order_refunded":  EventOrderRefunded,
}

// ParseEventType returns the event type for a given label (case-insensitive).
func ParseEventType(label string) (EventType, bool) {
	et, ok := eventTypes[strings.ToLower(strings.TrimSpace(label))]

	return et, ok
}

// CountsTowardRevenue reports whether the event adds to revenue totals.
func (t EventType) CountsTowardRevenue() bool {
	return t == EventOrderPaid || t == EventOrderFulfilled
}

// CountsAgainstRevenue reports whether the event reverses prior revenue.
func (t EventType) CountsAgainstRevenue() bool {
	return t == EventOrderRefunded || t == EventOrderCancelled
}

// amountTolerance absorbs currency rounding when validating totals.
const amountTolerance = 0.01

var (
	ErrInvalidEvent = errors.New("invalid sales event")
)

// SalesEvent is an immutable fact in the append-only sales ledger.
// Corrections are modeled as new compensating events, never as updates.
type SalesEvent struct {
	OrderID         string    `json:"orderId" db:"order_id"`
	EventType       EventType `json:"eventType" db:"event_type"`
	ProductID       string    `json:"productId" db:"product_id"`
	ProductName     string    `json:"productName" db:"product_name"`
	ProductCategory string    `json:"productCategory" db:"product_category"`
	Quantity        int       `json:"quantity" db:"quantity"`
	UnitPrice       float64   `json:"unitPrice" db:"unit_price"`
	TotalAmount     float64   `json:"totalAmount" db:"total_amount"`
	Channel         string    `json:"channel" db:"channel"`
	EventTimestamp  time.Time `json:"eventTimestamp" db:"event_timestamp"`
	MerchantID      string    `json:"merchantId" db:"merchant_id"`
}

// Validate checks the structural invariants of an event before it may be
// appended. The total must equal quantity * unitPrice within a rounding
// tolerance.
func (e *SalesEvent) Validate() error {
	if strings.TrimSpace(e.MerchantID) == "" {
		return fmt.Errorf("%w: merchant id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidEvent)
	}
	if _, ok := eventTypes[string(e.EventType)]; !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.EventType)
	}
	if e.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1, got %d", ErrInvalidEvent, e.Quantity)
	}
	if e.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidEvent)
	}
	if math.Abs(e.TotalAmount-float64(e.Quantity)*e.UnitPrice) > amountTolerance {
		return fmt.Errorf("%w: total amount %.2f does not match quantity %d x unit price %.2f",
			ErrInvalidEvent, e.TotalAmount, e.Quantity, e.UnitPrice)
	}
	if e.EventTimestamp.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", ErrInvalidEvent)
	}

	return nil
}

// DedupKey identifies an event for idempotent re-delivery checks.
func (e *SalesEvent) DedupKey() string {
	return e.OrderID + "::" + string(e.EventType)
}
