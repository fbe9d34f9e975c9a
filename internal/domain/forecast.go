package domain

import "strings"

// ForecastMetric selects which aggregate field a forecast is computed over.
type ForecastMetric string

const (
	MetricRevenue ForecastMetric = "revenue"
	MetricOrders  ForecastMetric = "orders"
	MetricUnits   ForecastMetric = "units"
)

// ParseForecastMetric returns the metric for a given label.
func ParseForecastMetric(label string) (ForecastMetric, bool) {
	switch ForecastMetric(strings.ToLower(strings.TrimSpace(label))) {
	case MetricRevenue:
		return MetricRevenue, true
	case MetricOrders:
		return MetricOrders, true
	case MetricUnits:
		return MetricUnits, true
	}

	return "", false
}

// ForecastPrediction is one future period of a forecast. Predictions are
// computed on request from historical aggregates and never persisted.
type ForecastPrediction struct {
	Date           string  `json:"date"`
	PredictedValue float64 `json:"predictedValue"`
	LowerBound     float64 `json:"lowerBound"`
	UpperBound     float64 `json:"upperBound"`
	Confidence     float64 `json:"confidence"`
}

// Forecast is the full response for one forecast request: the horizon of
// predictions plus human-readable factors describing the model inputs.
type Forecast struct {
	Predictions []ForecastPrediction `json:"predictions"`
	Factors     []string             `json:"factors"`
}
