package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

func dailyHistory(values ...float64) []domain.SalesAggregate {
	// Most recent first, like Engine.History returns.
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := make([]domain.SalesAggregate, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		history = append(history, domain.SalesAggregate{
			MerchantID: "merchant-1",
			Resolution: domain.ResolutionDaily,
			PeriodKey:  start.AddDate(0, 0, i).Format("2006-01-02"),
			NetRevenue: values[i],
		})
	}
	return history
}

func repeated(value float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return values
}

func TestPredictRejectsNonPositiveHorizon(t *testing.T) {
	engine := NewEngine(30, nil)

	_, err := engine.Predict(dailyHistory(repeated(100, 10)...), domain.MetricRevenue, 0, 95, time.Now())
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = engine.Predict(dailyHistory(repeated(100, 10)...), domain.MetricRevenue, -3, 95, time.Now())
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func TestPredictRequiresMinimumHistory(t *testing.T) {
	engine := NewEngine(30, nil)

	_, err := engine.Predict(dailyHistory(repeated(100, MinWindow-1)...), domain.MetricRevenue, 7, 95, time.Now())
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = engine.Predict(nil, domain.MetricRevenue, 7, 95, time.Now())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestPredictRejectsUnknownConfidenceTier(t *testing.T) {
	engine := NewEngine(30, nil)

	_, err := engine.Predict(dailyHistory(repeated(100, 14)...), domain.MetricRevenue, 7, 85, time.Now())
	assert.ErrorIs(t, err, ErrUnknownConfidence)
}

// A flat history has no variance: the forecast must be exact, with
// collapsed bands and confidence 1 at every step.
func TestFlatHistoryYieldsExactForecast(t *testing.T) {
	engine := NewEngine(30, nil)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	result, err := engine.Predict(dailyHistory(repeated(500, 14)...), domain.MetricRevenue, 5, 95, now)
	require.NoError(t, err)
	require.Len(t, result.Predictions, 5)

	for _, p := range result.Predictions {
		assert.InDelta(t, 500.0, p.PredictedValue, 0.001)
		assert.InDelta(t, 500.0, p.LowerBound, 0.001)
		assert.InDelta(t, 500.0, p.UpperBound, 0.001)
		assert.Equal(t, 1.0, p.Confidence)
	}
}

func TestPredictionDatesFollowNow(t *testing.T) {
	engine := NewEngine(30, nil)
	now := time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC)

	result, err := engine.Predict(dailyHistory(repeated(500, 14)...), domain.MetricRevenue, 3, 95, now)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-16", result.Predictions[0].Date)
	assert.Equal(t, "2026-03-17", result.Predictions[1].Date)
	assert.Equal(t, "2026-03-18", result.Predictions[2].Date)
}

func TestConfidenceDecaysOverHorizon(t *testing.T) {
	engine := NewEngine(30, nil)
	values := []float64{100, 250, 90, 300, 120, 280, 110, 260, 95, 310, 130, 240, 105, 290}

	result, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 10, 95, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Predictions, 10)

	for i := 1; i < len(result.Predictions); i++ {
		assert.LessOrEqual(t, result.Predictions[i].Confidence, result.Predictions[i-1].Confidence)
	}
	last := result.Predictions[len(result.Predictions)-1]
	assert.GreaterOrEqual(t, last.Confidence, 0.30)
}

// The per-day confidence score is backed by the observed window: more
// history raises it, while the requested horizon has no bearing on it.
func TestConfidenceReflectsHistoryDepthNotHorizon(t *testing.T) {
	engine := NewEngine(30, nil)
	short := []float64{100, 250, 90, 300, 120, 280, 110}
	long := []float64{100, 250, 90, 300, 120, 280, 110, 260, 95, 310, 130, 240, 105, 290}

	shortFc, err := engine.Predict(dailyHistory(short...), domain.MetricRevenue, 3, 95, time.Now())
	require.NoError(t, err)
	longFc, err := engine.Predict(dailyHistory(long...), domain.MetricRevenue, 3, 95, time.Now())
	require.NoError(t, err)
	for i := range shortFc.Predictions {
		assert.Greater(t, longFc.Predictions[i].Confidence, shortFc.Predictions[i].Confidence,
			"day %d should be more certain with twice the history", i+1)
	}

	one, err := engine.Predict(dailyHistory(long...), domain.MetricRevenue, 1, 95, time.Now())
	require.NoError(t, err)
	ten, err := engine.Predict(dailyHistory(long...), domain.MetricRevenue, 10, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, one.Predictions[0].Confidence, ten.Predictions[0].Confidence, 0.001,
		"day one is equally certain whatever the horizon")

	// Far beyond the window the score settles at the floor.
	deep, err := engine.Predict(dailyHistory(short...), domain.MetricRevenue, 20, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 0.30, deep.Predictions[19].Confidence, 0.001)
}

func TestBandsWidenWithDistanceAndTier(t *testing.T) {
	engine := NewEngine(30, nil)
	values := []float64{100, 250, 90, 300, 120, 280, 110, 260, 95, 310, 130, 240, 105, 290}

	narrow, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 10, 80, time.Now())
	require.NoError(t, err)
	wide, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 10, 99, time.Now())
	require.NoError(t, err)

	for i := range narrow.Predictions {
		n, w := narrow.Predictions[i], wide.Predictions[i]
		assert.LessOrEqual(t, n.LowerBound, n.PredictedValue)
		assert.GreaterOrEqual(t, n.UpperBound, n.PredictedValue)
		assert.GreaterOrEqual(t, w.UpperBound-w.LowerBound, n.UpperBound-n.LowerBound,
			"99%% band should not be narrower than 80%% band at step %d", i)
	}
}

func TestBoundsNeverNegative(t *testing.T) {
	engine := NewEngine(30, nil)
	// High variance around a small mean pushes raw lower bounds negative.
	values := []float64{5, 400, 3, 380, 8, 420, 2, 390, 6, 410, 4, 370, 7, 400}

	result, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 7, 99, time.Now())
	require.NoError(t, err)

	for _, p := range result.Predictions {
		assert.GreaterOrEqual(t, p.LowerBound, 0.0)
		assert.GreaterOrEqual(t, p.PredictedValue, 0.0)
	}
}

func TestGrowingHistoryTrendsUpward(t *testing.T) {
	engine := NewEngine(30, nil)
	values := make([]float64, 14)
	for i := range values {
		values[i] = 100 + float64(i)*50
	}

	result, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 7, 95, time.Now())
	require.NoError(t, err)

	last := values[len(values)-1]
	assert.Greater(t, result.Predictions[6].PredictedValue, last,
		"an upward trend should carry past recent observations within a week")
}

func TestWindowIgnoresNonDailyAggregates(t *testing.T) {
	engine := NewEngine(30, nil)
	history := dailyHistory(repeated(100, MinWindow)...)
	history = append(history, domain.SalesAggregate{
		Resolution: domain.ResolutionWeekly,
		PeriodKey:  "2026-W10",
		NetRevenue: 9999,
	})

	result, err := engine.Predict(history, domain.MetricRevenue, 3, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.Predictions[0].PredictedValue, 0.001)
}

func TestWindowSizeCapsHistory(t *testing.T) {
	engine := NewEngine(7, nil)
	// Old spike outside the 7-day window must not affect the forecast.
	values := append([]float64{100000}, repeated(200, 7)...)

	result, err := engine.Predict(dailyHistory(values...), domain.MetricRevenue, 3, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 200.0, result.Predictions[0].PredictedValue, 0.001)
	assert.Equal(t, 1.0, result.Predictions[0].Confidence)
}

func TestMetricSelection(t *testing.T) {
	engine := NewEngine(30, nil)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := make([]domain.SalesAggregate, 0, 10)
	for i := 9; i >= 0; i-- {
		history = append(history, domain.SalesAggregate{
			Resolution:    domain.ResolutionDaily,
			PeriodKey:     start.AddDate(0, 0, i).Format("2006-01-02"),
			NetRevenue:    1000,
			TotalOrders:   12,
			TotalQuantity: 30,
		})
	}

	orders, err := engine.Predict(history, domain.MetricOrders, 1, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 12.0, orders.Predictions[0].PredictedValue, 0.001)

	units, err := engine.Predict(history, domain.MetricUnits, 1, 95, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 30.0, units.Predictions[0].PredictedValue, 0.001)
}

func TestFactorsDescribeTheWindow(t *testing.T) {
	engine := NewEngine(30, nil)

	result, err := engine.Predict(dailyHistory(repeated(500, 14)...), domain.MetricRevenue, 3, 95, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, result.Factors)
	assert.Contains(t, result.Factors[len(result.Factors)-1], "14 days")
}
