// cmd/analytics/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/cache"
	"github.com/kalamela/merchant-ledger/internal/config"
	"github.com/kalamela/merchant-ledger/internal/domain"
	"github.com/kalamela/merchant-ledger/internal/eventstore/postgres"
	"github.com/kalamela/merchant-ledger/internal/forecast"
)

// Offline analytics over the ledger: rebuilds a merchant's aggregates
// from the event log, prints the recent history, checks the stored
// buckets against a full recomputation and optionally runs a forecast.
func main() {
	merchantID := flag.String("merchant", "", "Merchant ID to analyze")
	resolutionStr := flag.String("resolution", "daily", "Aggregate resolution (daily, weekly, monthly, yearly)")
	count := flag.Int("count", 30, "Number of periods to print")
	horizon := flag.Int("forecast", 0, "Forecast horizon in days (0 to skip)")
	flag.Parse()

	if *merchantID == "" {
		log.Fatal("Merchant ID is required (use -merchant flag)")
	}

	resolution, ok := domain.ParseResolution(*resolutionStr)
	if !ok {
		log.Fatalf("Unknown resolution: %s", *resolutionStr)
	}

	cfg := config.Load()
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := postgres.NewStore(db)
	engine := aggregate.NewEngine(store)

	start := time.Now()
	if err := engine.Rebuild(ctx, *merchantID); err != nil {
		log.Fatalf("Failed to rebuild aggregates: %v", err)
	}
	log.Printf("Rebuilt aggregates for %s in %v", *merchantID, time.Since(start))

	history := engine.History(*merchantID, resolution, *count)
	if len(history) == 0 {
		log.Printf("No %s aggregates found for %s", resolution, *merchantID)
		return
	}

	printHistory(history)
	diverged := verifyHistory(ctx, engine, *merchantID, resolution, history)
	if diverged > 0 {
		// Cached dashboard snapshots were built from the bad buckets.
		invalidateSnapshots(ctx, cfg)
	}

	totals := engine.CurrentTotals(*merchantID, time.Now())
	fmt.Printf("\nCurrent totals: today=%.2f week=%.2f month=%.2f year=%.2f\n",
		totals.Today, totals.ThisWeek, totals.ThisMonth, totals.ThisYear)

	if *horizon > 0 {
		printForecast(engine, cfg, *merchantID, *horizon)
	}
}

func printHistory(history []domain.SalesAggregate) {
	fmt.Printf("\n%-10s %12s %12s %8s %6s %8s\n",
		"period", "revenue", "net", "orders", "qty", "avg")
	fmt.Println(strings.Repeat("-", 62))
	for _, agg := range history {
		fmt.Printf("%-10s %12.2f %12.2f %8d %6d %8.2f\n",
			agg.PeriodKey, agg.TotalRevenue, agg.NetRevenue,
			agg.TotalOrders, agg.TotalQuantity, agg.AverageOrder)
	}
}

func verifyHistory(ctx context.Context, engine *aggregate.Engine, merchantID string, resolution domain.Resolution, history []domain.SalesAggregate) int {
	diverged := 0
	for _, agg := range history {
		consistent, err := engine.Verify(ctx, merchantID, resolution, agg.PeriodKey)
		if err != nil {
			log.Printf("Verification of %s failed: %v", agg.PeriodKey, err)
			continue
		}
		if !consistent {
			diverged++
		}
	}
	if diverged > 0 {
		log.Printf("WARNING: %d of %d buckets diverged from the log and were recomputed", diverged, len(history))
	} else {
		log.Printf("All %d buckets consistent with the event log", len(history))
	}

	return diverged
}

func invalidateSnapshots(ctx context.Context, cfg *config.Config) {
	if !cfg.Cache.Enabled {
		return
	}
	snapshots, err := cache.NewSnapshotCache(cfg.Cache)
	if err != nil {
		log.Printf("Could not reach snapshot cache for invalidation: %v", err)
		return
	}
	if err := snapshots.InvalidateAll(ctx); err != nil {
		log.Printf("Snapshot cache invalidation failed: %v", err)
		return
	}
	log.Println("Invalidated cached dashboard snapshots")
}

func printForecast(engine *aggregate.Engine, cfg *config.Config, merchantID string, horizon int) {
	forecaster := forecast.NewEngine(cfg.Forecast.WindowSize, cfg.Forecast.Multipliers)
	daily := engine.History(merchantID, domain.ResolutionDaily, 0)

	result, err := forecaster.Predict(daily, domain.MetricRevenue, horizon, 95, time.Now())
	if err != nil {
		log.Printf("Forecast unavailable: %v", err)
		return
	}

	fmt.Printf("\n%-12s %12s %12s %12s %6s\n", "date", "predicted", "low", "high", "conf")
	fmt.Println(strings.Repeat("-", 58))
	for _, p := range result.Predictions {
		fmt.Printf("%-12s %12.2f %12.2f %12.2f %6.2f\n",
			p.Date, p.PredictedValue, p.LowerBound, p.UpperBound, p.Confidence)
	}
	for _, factor := range result.Factors {
		fmt.Println("  - " + factor)
	}
}
