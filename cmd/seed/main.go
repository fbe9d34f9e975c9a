package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

type ctxKey string

const dbKey ctxKey = "db"

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func initDB(c *cli.Context) error {
	// Initialize database connection
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Store the database connection in the context
	c.Context = context.WithValue(c.Context, dbKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	// Close the database connection when done
	if db, ok := c.Context.Value(dbKey).(*sql.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFromContext(c *cli.Context) (*sql.DB, error) {
	db, ok := c.Context.Value(dbKey).(*sql.DB)
	if !ok || db == nil {
		return nil, fmt.Errorf("database connection not initialized")
	}
	return db, nil
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "seed",
		Usage: "Manage the sales ledger schema and seed it with data",
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "Create the sales_events table and its indexes",
				Flags:  []cli.Flag{newDBURLFlag()},
				Before: initDB,
				After:  closeDB,
				Action: runSchema,
			},
			{
				Name:  "demo",
				Usage: "Generate a deterministic stream of demo sales events",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringSliceFlag{
						Name:  "merchant",
						Usage: "Merchant IDs to seed (repeatable)",
						Value: cli.NewStringSlice("merchant-demo"),
					},
					&cli.IntFlag{
						Name:  "days",
						Usage: "Number of trailing days to generate",
						Value: 60,
					},
					&cli.IntFlag{
						Name:  "orders-per-day",
						Usage: "Average orders per merchant per day",
						Value: 12,
					},
					&cli.Int64Flag{
						Name:  "rand-seed",
						Usage: "Random seed; the same seed always produces the same ledger",
						Value: 42,
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runDemo,
			},
			{
				Name:  "events",
				Usage: "Load sales events from a CSV file",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "file",
						Usage:    "CSV file with sales events",
						Required: true,
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runCSVImport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runSchema(c *cli.Context) error {
	db, err := dbFromContext(c)
	if err != nil {
		return err
	}

	const ddl = `
        CREATE TABLE IF NOT EXISTS sales_events (
            id              BIGSERIAL PRIMARY KEY,
            order_id        TEXT NOT NULL,
            event_type      TEXT NOT NULL,
            product_id      TEXT NOT NULL,
            product_name    TEXT NOT NULL,
            product_category TEXT NOT NULL DEFAULT '',
            quantity        INTEGER NOT NULL,
            unit_price      DOUBLE PRECISION NOT NULL,
            total_amount    DOUBLE PRECISION NOT NULL,
            channel         TEXT NOT NULL DEFAULT '',
            event_timestamp TIMESTAMPTZ NOT NULL,
            merchant_id     TEXT NOT NULL,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (order_id, event_type)
        );

        CREATE INDEX IF NOT EXISTS idx_sales_events_merchant_ts
            ON sales_events (merchant_id, event_timestamp DESC);
    `

	if _, err := db.ExecContext(c.Context, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Println("Schema created successfully")
	return nil
}
