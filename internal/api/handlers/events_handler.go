// internal/api/handlers/events_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
	"github.com/kalamela/merchant-ledger/internal/service"
)

const defaultEventLimit = 50

type EventsHandler struct {
	dashboard *service.Dashboard
}

func NewEventsHandler(dashboard *service.Dashboard) *EventsHandler {
	return &EventsHandler{dashboard: dashboard}
}

// ListEvents returns the newest sales events for a merchant.
func (h *EventsHandler) ListEvents(c *gin.Context) {
	merchantID := strings.TrimSpace(c.Query("merchantId"))
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "merchantId is required"})
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	events, err := h.dashboard.RecentEvents(c.Request.Context(), merchantID, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "event store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(events),
		"data":  events,
	})
}

// RecordEvent appends a sales event to the ledger. Re-delivery of a
// previously seen event reports accepted=false with a 200.
func (h *EventsHandler) RecordEvent(c *gin.Context) {
	var event domain.SalesEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid event payload"})
		return
	}

	accepted, err := h.dashboard.RecordEvent(c.Request.Context(), event)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, eventstore.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "event store unavailable"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to record event"})
		return
	}

	status := http.StatusOK
	if accepted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "accepted": accepted})
}
