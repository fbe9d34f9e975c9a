package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

// ObjectStorage captures the minimal S3-compatible operations the
// exporter needs.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// HistoryProvider is the slice of the aggregation engine the exporter
// reads from.
type HistoryProvider interface {
	History(merchantID string, resolution domain.Resolution, count int) []domain.SalesAggregate
}

// Exporter writes a merchant's aggregates as CSV into object storage so
// finance teams can pull long-horizon history without touching the live
// ledger.
type Exporter struct {
	storage ObjectStorage
	history HistoryProvider
}

func NewExporter(storage ObjectStorage, history HistoryProvider) *Exporter {
	return &Exporter{storage: storage, history: history}
}

// ExportDaily uploads up to count daily aggregates for the merchant as
// one CSV object keyed by export date. It returns the object key.
func (e *Exporter) ExportDaily(ctx context.Context, merchantID string, count int) (string, error) {
	aggregates := e.history.History(merchantID, domain.ResolutionDaily, count)
	if len(aggregates) == 0 {
		return "", fmt.Errorf("no daily aggregates to export for merchant %s", merchantID)
	}

	payload, err := buildCSV(aggregates)
	if err != nil {
		return "", fmt.Errorf("failed to build aggregate CSV: %w", err)
	}

	key := fmt.Sprintf("aggregates/%s/daily_%s.csv", merchantID, time.Now().UTC().Format("20060102"))
	if err := e.storage.Upload(ctx, key, payload, "text/csv"); err != nil {
		return "", fmt.Errorf("failed to upload aggregate CSV: %w", err)
	}

	log.Info().
		Str("merchant_id", merchantID).
		Str("key", key).
		Int("rows", len(aggregates)).
		Msg("exported daily aggregates")

	return key, nil
}

func buildCSV(aggregates []domain.SalesAggregate) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"Period", "Total Revenue", "Net Revenue", "Orders", "Quantity", "Unique Products", "Avg Order Value"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, agg := range aggregates {
		record := []string{
			agg.PeriodKey,
			fmt.Sprintf("%.2f", agg.TotalRevenue),
			fmt.Sprintf("%.2f", agg.NetRevenue),
			fmt.Sprintf("%d", agg.TotalOrders),
			fmt.Sprintf("%d", agg.TotalQuantity),
			fmt.Sprintf("%d", agg.UniqueProducts),
			fmt.Sprintf("%.2f", agg.AverageOrder),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
