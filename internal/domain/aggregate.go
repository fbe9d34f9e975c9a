package domain

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the bucket granularity of a derived aggregate.
type Resolution string

const (
	ResolutionDaily   Resolution = "daily"
	ResolutionWeekly  Resolution = "weekly"
	ResolutionMonthly Resolution = "monthly"
	ResolutionYearly  Resolution = "yearly"
)

// Resolutions lists every supported granularity, finest first.
var Resolutions = []Resolution{ResolutionDaily, ResolutionWeekly, ResolutionMonthly, ResolutionYearly}

// ParseResolution returns the resolution for a given label (case-insensitive).
func ParseResolution(label string) (Resolution, bool) {
	switch Resolution(strings.ToLower(strings.TrimSpace(label))) {
	case ResolutionDaily:
		return ResolutionDaily, true
	case ResolutionWeekly:
		return ResolutionWeekly, true
	case ResolutionMonthly:
		return ResolutionMonthly, true
	case ResolutionYearly:
		return ResolutionYearly, true
	}

	return "", false
}

// PeriodKey returns the bucket identifier the instant falls into at this
// resolution. Daily is an ISO date, weekly an ISO year-week, monthly
// YYYY-MM and yearly YYYY. All bucketing is done in UTC.
func (r Resolution) PeriodKey(t time.Time) string {
	t = t.UTC()
	switch r {
	case ResolutionDaily:
		return t.Format("2006-01-02")
	case ResolutionWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case ResolutionMonthly:
		return t.Format("2006-01")
	case ResolutionYearly:
		return t.Format("2006")
	}

	return ""
}

// SalesAggregate is derived state for one (merchant, resolution, period)
// bucket. It is always reproducible by replaying the event log.
type SalesAggregate struct {
	MerchantID     string     `json:"merchantId" db:"merchant_id"`
	Resolution     Resolution `json:"resolution" db:"resolution"`
	PeriodKey      string     `json:"periodKey" db:"period_key"`
	TotalRevenue   float64    `json:"totalRevenue" db:"total_revenue"`
	NetRevenue     float64    `json:"netRevenue" db:"net_revenue"`
	TotalOrders    int        `json:"totalOrders" db:"total_orders"`
	TotalQuantity  int        `json:"totalQuantity" db:"total_quantity"`
	UniqueProducts int        `json:"uniqueProducts" db:"unique_products"`
	AverageOrder   float64    `json:"averageOrderValue" db:"average_order_value"`
}
