package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/archive"
	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore"
)

// Handler exposes the bulk ingestion surface. It writes straight to the
// durable ledger; the dashboard process picks up new events through its
// periodic refresh.
type Handler struct {
	store    eventstore.Store
	engine   *aggregate.Engine
	exporter *archive.Exporter
}

func NewHandler(store eventstore.Store, engine *aggregate.Engine, exporter *archive.Exporter) *Handler {
	return &Handler{
		store:    store,
		engine:   engine,
		exporter: exporter,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/events", h.IngestEvent).Methods("POST")
	router.HandleFunc("/api/events/batch", h.IngestBatch).Methods("POST")
	router.HandleFunc("/api/events/count", h.CountEvents).Methods("GET")
	router.HandleFunc("/api/archive/export", h.ExportAggregates).Methods("POST")
}

func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.SalesEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, fmt.Sprintf("invalid event payload: %v", err), http.StatusBadRequest)
		return
	}

	accepted, err := h.store.Append(r.Context(), event)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	status := http.StatusOK
	if accepted {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"accepted": accepted})
}

// IngestBatch appends a batch of events in order. Duplicates are skipped
// rather than failing the batch; the first hard error stops processing
// and reports how far the batch got.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var events []domain.SalesEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		http.Error(w, fmt.Sprintf("invalid batch payload: %v", err), http.StatusBadRequest)
		return
	}

	accepted, skipped := 0, 0
	for i, event := range events {
		ok, err := h.store.Append(r.Context(), event)
		if err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, domain.ErrInvalidEvent) {
				status = http.StatusBadRequest
			}
			http.Error(w, fmt.Sprintf("event %d rejected: %v (accepted %d, skipped %d)", i, err, accepted, skipped), status)
			return
		}
		if ok {
			accepted++
		} else {
			skipped++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"skipped":  skipped,
	})
}

func (h *Handler) CountEvents(w http.ResponseWriter, r *http.Request) {
	merchantID := r.URL.Query().Get("merchantId")
	if merchantID == "" {
		http.Error(w, "merchantId parameter is required", http.StatusBadRequest)
		return
	}

	count, err := h.store.Count(r.Context(), merchantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"count": count})
}

// ExportAggregates rebuilds the merchant's aggregates from the ledger
// and uploads the daily history as CSV to object storage.
func (h *Handler) ExportAggregates(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		http.Error(w, "archive storage is not configured", http.StatusNotImplemented)
		return
	}

	merchantID := r.URL.Query().Get("merchantId")
	if merchantID == "" {
		http.Error(w, "merchantId parameter is required", http.StatusBadRequest)
		return
	}

	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	if err := h.engine.Rebuild(r.Context(), merchantID); err != nil {
		http.Error(w, fmt.Sprintf("aggregate rebuild failed: %v", err), http.StatusServiceUnavailable)
		return
	}

	key, err := h.exporter.ExportDaily(r.Context(), merchantID, days)
	if err != nil {
		http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success", "key": key})
}
