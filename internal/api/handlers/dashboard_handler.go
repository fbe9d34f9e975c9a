// internal/api/handlers/dashboard_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/forecast"
	"github.com/kalamela/merchant-ledger/internal/service"
)

type DashboardHandler struct {
	dashboard *service.Dashboard
}

func NewDashboardHandler(dashboard *service.Dashboard) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GetDashboard returns the composite dashboard view for a merchant. The
// metadata block names which fallback tier served the response.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	merchantID := strings.TrimSpace(c.Query("merchantId"))
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "merchantId is required"})
		return
	}

	opts := service.FetchOptions{
		Mode:    service.ModeRealtime,
		Refresh: c.Query("refresh") == "true",
	}
	switch c.DefaultQuery("mode", "realtime") {
	case "realtime":
	case "offline":
		opts.Mode = service.ModeOffline
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "mode must be realtime or offline"})
		return
	}

	data, source := h.dashboard.GetDashboardData(c.Request.Context(), merchantID, opts)

	totalEvents, err := h.dashboard.TotalEvents(c.Request.Context(), merchantID)
	if err != nil {
		// Metadata only; the snapshot itself already survived the
		// fallback chain.
		log.Warn().Err(err).Str("merchant_id", merchantID).Msg("failed to count ledger events")
		totalEvents = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"metadata": gin.H{
			"dataSource":  source,
			"totalEvents": totalEvents,
		},
	})
}

// GetForecast computes an N-day-ahead prediction for a merchant.
func (h *DashboardHandler) GetForecast(c *gin.Context) {
	merchantID := strings.TrimSpace(c.Query("merchantId"))
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "merchantId is required"})
		return
	}

	horizon, err := strconv.Atoi(c.DefaultQuery("horizon", "7"))
	if err != nil || horizon <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "horizon must be a positive number of days"})
		return
	}

	metric, ok := domain.ParseForecastMetric(c.DefaultQuery("metric", "revenue"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "metric must be revenue, orders or units"})
		return
	}

	confidence, err := strconv.Atoi(c.DefaultQuery("confidence", "95"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "confidence must be one of 80, 90, 95, 99"})
		return
	}

	result, err := h.dashboard.Forecast(c.Request.Context(), merchantID, horizon, metric, confidence)
	switch {
	case err == nil:
	case errors.Is(err, forecast.ErrInsufficientData):
		// Distinct from an empty forecast so the caller can render a
		// "need more history" state.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, forecast.ErrInvalidHorizon), errors.Is(err, forecast.ErrUnknownConfidence):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to compute forecast"})
		return
	}

	c.JSON(http.StatusOK, result)
}
