package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kalamela/merchant-ledger/internal/domain"
)

type demoProduct struct {
	id       string
	name     string
	category string
	price    float64
}

var demoProducts = []demoProduct{
	{"prod-001", "Hand-thrown Ceramic Mug", "ceramics", 450},
	{"prod-002", "Walnut Serving Board", "woodwork", 1200},
	{"prod-003", "Indigo Block-print Scarf", "textiles", 850},
	{"prod-004", "Brass Table Lamp", "metalwork", 3200},
	{"prod-005", "Terracotta Planter", "ceramics", 600},
	{"prod-006", "Hand-bound Journal", "paper", 350},
	{"prod-007", "Woven Jute Basket", "textiles", 750},
	{"prod-008", "Copper Water Bottle", "metalwork", 1100},
}

const insertEventSQL = `
    INSERT INTO sales_events (
        order_id, event_type, product_id, product_name, product_category,
        quantity, unit_price, total_amount, channel, event_timestamp,
        merchant_id, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
    ON CONFLICT (order_id, event_type) DO NOTHING
`

func runDemo(c *cli.Context) error {
	db, err := dbFromContext(c)
	if err != nil {
		return err
	}

	merchants := c.StringSlice("merchant")
	days := c.Int("days")
	ordersPerDay := c.Int("orders-per-day")
	rng := rand.New(rand.NewSource(c.Int64("rand-seed")))

	tx, err := db.BeginTx(c.Context, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(c.Context, insertEventSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	start := time.Now().UTC().AddDate(0, 0, -days)
	total := 0

	for _, merchantID := range merchants {
		log.Printf("Seeding %d days of demo events for %s", days, merchantID)
		for day := 0; day < days; day++ {
			dayStart := start.AddDate(0, 0, day)

			// Weekends run a little hotter, mirroring craft-fair traffic.
			orders := ordersPerDay
			if wd := dayStart.Weekday(); wd == time.Saturday || wd == time.Sunday {
				orders += ordersPerDay / 2
			}
			orders += rng.Intn(ordersPerDay/2 + 1)

			for n := 0; n < orders; n++ {
				inserted, err := insertDemoOrder(c.Context, stmt, rng, merchantID, dayStart, day, n)
				if err != nil {
					return err
				}
				total += inserted
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit demo events: %w", err)
	}

	log.Printf("Seeded %d demo events", total)
	return nil
}

func insertDemoOrder(ctx context.Context, stmt *sql.Stmt, rng *rand.Rand, merchantID string, dayStart time.Time, day, n int) (int, error) {
	product := demoProducts[rng.Intn(len(demoProducts))]
	quantity := 1 + rng.Intn(3)
	orderID := fmt.Sprintf("%s-ord-%03d-%03d", merchantID, day, n)
	ts := dayStart.Add(time.Duration(8+rng.Intn(12)) * time.Hour).
		Add(time.Duration(rng.Intn(60)) * time.Minute)

	channel := "online"
	if rng.Intn(3) == 0 {
		channel = "in_store"
	}

	lifecycle := []domain.EventType{domain.EventOrderCreated, domain.EventOrderPaid}
	switch roll := rng.Intn(20); {
	case roll == 0:
		// Occasional cancellation before payment.
		lifecycle = []domain.EventType{domain.EventOrderCreated, domain.EventOrderCancelled}
	case roll == 1:
		// Paid then fully refunded.
		lifecycle = append(lifecycle, domain.EventOrderRefunded)
	default:
		lifecycle = append(lifecycle, domain.EventOrderFulfilled)
	}

	inserted := 0
	for i, eventType := range lifecycle {
		if _, err := stmt.ExecContext(ctx,
			orderID,
			string(eventType),
			product.id,
			product.name,
			product.category,
			quantity,
			product.price,
			float64(quantity)*product.price,
			channel,
			ts.Add(time.Duration(i)*time.Minute),
			merchantID,
		); err != nil {
			return inserted, fmt.Errorf("failed to insert demo event for %s: %w", orderID, err)
		}
		inserted++
	}

	return inserted, nil
}

// runCSVImport loads events from a CSV with the header:
// order_id,event_type,product_id,product_name,product_category,quantity,unit_price,total_amount,channel,event_timestamp,merchant_id
func runCSVImport(c *cli.Context) error {
	db, err := dbFromContext(c)
	if err != nil {
		return err
	}

	filePath := c.String("file")
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	tx, err := db.BeginTx(c.Context, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(c.Context, insertEventSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	rowCount := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) < 11 {
			return fmt.Errorf("invalid record (expected 11 columns): %v", record)
		}

		quantity, err := strconv.Atoi(record[5])
		if err != nil {
			return fmt.Errorf("invalid quantity in row %d: %w", rowCount+1, err)
		}
		unitPrice, err := strconv.ParseFloat(record[6], 64)
		if err != nil {
			return fmt.Errorf("invalid unit_price in row %d: %w", rowCount+1, err)
		}
		totalAmount, err := strconv.ParseFloat(record[7], 64)
		if err != nil {
			return fmt.Errorf("invalid total_amount in row %d: %w", rowCount+1, err)
		}
		ts, err := time.Parse(time.RFC3339, record[9])
		if err != nil {
			return fmt.Errorf("invalid event_timestamp in row %d: %w", rowCount+1, err)
		}

		if _, err := stmt.ExecContext(c.Context,
			record[0], record[1], record[2], record[3], record[4],
			quantity, unitPrice, totalAmount, record[8], ts.UTC(), record[10],
		); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", rowCount+1, err)
		}

		rowCount++
		if rowCount%5000 == 0 {
			log.Printf("Imported %d events...", rowCount)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit imported events: %w", err)
	}

	log.Printf("Successfully imported %d events from %s", rowCount, filePath)
	return nil
}
