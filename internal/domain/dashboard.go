package domain

import "time"

// ConnectionState describes the realtime delivery channel health.
type ConnectionState string

const (
	StateOnline       ConnectionState = "online"
	StateOffline      ConnectionState = "offline"
	StateReconnecting ConnectionState = "reconnecting"
)

// ValidTransition reports whether the state machine permits moving from
// the current state to next. Any state may re-assert itself.
func (s ConnectionState) ValidTransition(next ConnectionState) bool {
	if s == next {
		return true
	}
	switch s {
	case StateOnline:
		return next == StateOffline
	case StateOffline:
		return next == StateReconnecting
	case StateReconnecting:
		return next == StateOnline || next == StateOffline
	}

	return false
}

// DataSource labels which fallback tier produced a dashboard response.
type DataSource string

const (
	SourceRealtime DataSource = "realtime"
	SourceCache    DataSource = "cache"
	SourceEmpty    DataSource = "empty"
)

// CurrentSales carries the running totals for the periods containing the
// current instant.
type CurrentSales struct {
	Today     float64 `json:"today"`
	ThisWeek  float64 `json:"thisWeek"`
	ThisMonth float64 `json:"thisMonth"`
	ThisYear  float64 `json:"thisYear"`
}

// AggregateSeries groups history per resolution, most recent first.
type AggregateSeries struct {
	Daily   []SalesAggregate `json:"daily"`
	Weekly  []SalesAggregate `json:"weekly"`
	Monthly []SalesAggregate `json:"monthly"`
	Yearly  []SalesAggregate `json:"yearly"`
}

// DashboardData is the merchant-scoped composite view handed to callers
// and subscribers. Each push supersedes the previous snapshot wholesale;
// the struct is never mutated after construction.
type DashboardData struct {
	MerchantID      string          `json:"merchantId"`
	CurrentSales    CurrentSales    `json:"currentSales"`
	RecentEvents    []SalesEvent    `json:"recentEvents"`
	Aggregates      AggregateSeries `json:"aggregates"`
	ConnectionState ConnectionState `json:"connectionState"`
	Stale           bool            `json:"stale,omitempty"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// WithState returns a copy of the snapshot tagged with the given
// connection state, leaving the original untouched.
func (d DashboardData) WithState(state ConnectionState) DashboardData {
	d.ConnectionState = state
	return d
}
