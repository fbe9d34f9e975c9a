package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore/memory"
)

func newTestRouter(t *testing.T) (*mux.Router, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := aggregate.NewEngine(store)
	handler := NewHandler(store, engine, nil)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router, store
}

func ingestEvent(orderID string, eventType domain.EventType, amount float64, ts time.Time) domain.SalesEvent {
	return domain.SalesEvent{
		OrderID:        orderID,
		EventType:      eventType,
		ProductID:      "prod-001",
		ProductName:    "Woven Jute Basket",
		Quantity:       1,
		UnitPrice:      amount,
		TotalAmount:    amount,
		EventTimestamp: ts,
		MerchantID:     "merchant-1",
	}
}

func TestIngestSingleEvent(t *testing.T) {
	router, _ := newTestRouter(t)

	body, err := json.Marshal(ingestEvent("ord-1", domain.EventOrderPaid, 750, time.Now().UTC()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Redelivery is a 200 with accepted=false.
	req = httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	router, _ := newTestRouter(t)

	event := ingestEvent("ord-1", domain.EventOrderPaid, 750, time.Now().UTC())
	event.Quantity = 0
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestBatchSkipsDuplicates(t *testing.T) {
	router, store := newTestRouter(t)
	ts := time.Now().UTC()

	batch := []domain.SalesEvent{
		ingestEvent("ord-1", domain.EventOrderPaid, 500, ts),
		ingestEvent("ord-1", domain.EventOrderPaid, 500, ts), // duplicate
		ingestEvent("ord-2", domain.EventOrderPaid, 300, ts),
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/events/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accepted int `json:"accepted"`
		Skipped  int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Skipped)

	count, err := store.Count(req.Context(), "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestBatchStopsOnInvalidEvent(t *testing.T) {
	router, _ := newTestRouter(t)
	ts := time.Now().UTC()

	bad := ingestEvent("ord-2", domain.EventOrderPaid, 300, ts)
	bad.TotalAmount = 1
	batch := []domain.SalesEvent{
		ingestEvent("ord-1", domain.EventOrderPaid, 500, ts),
		bad,
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/events/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "event 1 rejected")
}

func TestCountEventsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	ts := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := store.Append(context.Background(), ingestEvent(fmt.Sprintf("ord-%d", i), domain.EventOrderPaid, 100, ts))
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events/count?merchantId=merchant-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
}

func TestExportWithoutStorageConfigured(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/archive/export?merchantId=merchant-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
