package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

const (
	// MinWindow is the smallest daily history a forecast may be computed
	// from. Anything shorter surfaces ErrInsufficientData so callers can
	// render a "need more history" state instead of a misleading zero.
	MinWindow = 7

	// the per-day confidence score decays linearly to this floor.
	minConfidence = 0.30
)

var (
	ErrInvalidHorizon    = errors.New("forecast horizon must be positive")
	ErrInsufficientData  = errors.New("insufficient history for forecast")
	ErrUnknownConfidence = errors.New("unknown confidence tier")
)

// defaultMultipliers maps a confidence tier (percent) to the band width
// multiplier. The values track the usual z-scores but are tunables, not a
// contract.
var defaultMultipliers = map[int]float64{
	80: 1.28,
	90: 1.64,
	95: 1.96,
	99: 2.58,
}

// Engine turns recent daily aggregates into N-day-ahead predictions using
// trend extrapolation, day-of-week seasonality and variance-based bands.
type Engine struct {
	windowSize  int
	multipliers map[int]float64
}

func NewEngine(windowSize int, multipliers map[int]float64) *Engine {
	if windowSize < MinWindow {
		windowSize = 30
	}
	if len(multipliers) == 0 {
		multipliers = defaultMultipliers
	}

	return &Engine{windowSize: windowSize, multipliers: multipliers}
}

// point is one observed day of history.
type point struct {
	day   time.Time
	value float64
}

// Predict computes horizon daily predictions for the metric from the
// given most-recent-first daily aggregates. now anchors the horizon:
// day i is now+i.
func (e *Engine) Predict(
	history []domain.SalesAggregate,
	metric domain.ForecastMetric,
	horizon int,
	confidenceTier int,
	now time.Time,
) (*domain.Forecast, error) {
	if horizon <= 0 {
		return nil, ErrInvalidHorizon
	}
	multiplier, ok := e.multipliers[confidenceTier]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownConfidence, confidenceTier)
	}

	points := e.window(history, metric)
	if len(points) < MinWindow {
		return nil, fmt.Errorf("%w: have %d daily points, need %d", ErrInsufficientData, len(points), MinWindow)
	}

	trend := trendFactor(points)
	seasonal := seasonalFactors(points)
	stddev := stddev(points)
	lastObserved := points[len(points)-1].value

	predictions := make([]domain.ForecastPrediction, 0, horizon)
	for i := 1; i <= horizon; i++ {
		day := now.UTC().AddDate(0, 0, i)

		predicted := lastObserved * math.Pow(trend, float64(i)) * seasonal[day.Weekday()]
		if predicted < 0 {
			predicted = 0
		}

		// Bands widen with distance from the observed window.
		margin := stddev * multiplier * math.Sqrt(float64(i)/float64(horizon))
		lower := predicted - margin
		if lower < 0 {
			lower = 0
		}

		predictions = append(predictions, domain.ForecastPrediction{
			Date:           day.Format("2006-01-02"),
			PredictedValue: round2(predicted),
			LowerBound:     round2(lower),
			UpperBound:     round2(predicted + margin),
			Confidence:     confidenceAt(i, len(points), stddev),
		})
	}

	return &domain.Forecast{
		Predictions: predictions,
		Factors:     describeFactors(points, trend, seasonal),
	}, nil
}

// window extracts up to windowSize chronological daily points for the
// metric, oldest first.
func (e *Engine) window(history []domain.SalesAggregate, metric domain.ForecastMetric) []point {
	points := make([]point, 0, len(history))
	for _, agg := range history {
		if agg.Resolution != domain.ResolutionDaily {
			continue
		}
		day, err := time.Parse("2006-01-02", agg.PeriodKey)
		if err != nil {
			continue
		}
		points = append(points, point{day: day, value: metricValue(agg, metric)})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].day.Before(points[j].day) })
	if len(points) > e.windowSize {
		points = points[len(points)-e.windowSize:]
	}

	return points
}

func metricValue(agg domain.SalesAggregate, metric domain.ForecastMetric) float64 {
	switch metric {
	case domain.MetricOrders:
		return float64(agg.TotalOrders)
	case domain.MetricUnits:
		return float64(agg.TotalQuantity)
	default:
		return agg.NetRevenue
	}
}

// trendFactor compares the recent half of the window against the older
// half and converts the growth rate into a per-day multiplicative factor.
func trendFactor(points []point) float64 {
	half := len(points) / 2
	older := mean(points[:half])
	recent := mean(points[len(points)-half:])

	if older <= 0 {
		return 1
	}

	growth := (recent - older) / older
	// The half-window averages are half a window apart in time.
	perDay := 1 + growth/float64(half)
	if perDay < 0 {
		return 0
	}

	return perDay
}

// seasonalFactors maps each weekday to its average value relative to the
// overall average. Weekdays with no history default to 1.
func seasonalFactors(points []point) map[time.Weekday]float64 {
	overall := mean(points)

	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	for _, p := range points {
		wd := p.day.Weekday()
		sums[wd] += p.value
		counts[wd]++
	}

	factors := make(map[time.Weekday]float64, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		factors[wd] = 1
		if counts[wd] > 0 && overall > 0 {
			factors[wd] = (sums[wd] / float64(counts[wd])) / overall
		}
	}

	return factors
}

// confidenceAt is non-increasing in the day index and improves with a
// longer observed window: each day out costs 1/window of the decay span,
// so the same day index reports higher confidence when more history
// backs it. A zero-variance window yields exact forecasts with
// confidence 1.
func confidenceAt(i, window int, stddev float64) float64 {
	if stddev == 0 {
		return 1
	}

	span := 1.0 - minConfidence
	c := 1.0 - span*float64(i)/float64(window)
	if c < minConfidence {
		c = minConfidence
	}

	return round2(c)
}

func describeFactors(points []point, trend float64, seasonal map[time.Weekday]float64) []string {
	growthPct := (trend - 1) * 100 * float64(len(points)/2)

	peak := time.Sunday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if seasonal[wd] > seasonal[peak] {
			peak = wd
		}
	}

	return []string{
		fmt.Sprintf("trend: %+.1f%% over the window", growthPct),
		fmt.Sprintf("strongest weekday: %s (%.2fx average)", peak, seasonal[peak]),
		fmt.Sprintf("history window: %d days", len(points)),
	}
}

func mean(points []point) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.value
	}

	return sum / float64(len(points))
}

func stddev(points []point) float64 {
	m := mean(points)
	var sq float64
	for _, p := range points {
		sq += (p.value - m) * (p.value - m)
	}

	return math.Sqrt(sq / float64(len(points)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
