package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/kalamela/merchant-ledger/internal/aggregate"
	"github.com/kalamela/merchant-ledger/internal/archive"
	"github.com/kalamela/merchant-ledger/internal/config"
	"github.com/kalamela/merchant-ledger/internal/eventstore/postgres"
	"github.com/kalamela/merchant-ledger/internal/ingest"
)

// The ingest binary is the write-side companion to cmd/server: partner
// systems push sales events here in bulk without going through the
// dashboard process.
func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Create router
	r := mux.NewRouter()

	// Initialize Database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	store := postgres.NewStore(db)
	engine := aggregate.NewEngine(store)

	// Archive export is optional; without credentials the endpoint
	// reports itself as unconfigured.
	var exporter *archive.Exporter
	if cfg.Archive.Enabled {
		storage, err := archive.NewMinioStorage(cfg.Archive)
		if err != nil {
			log.Fatalf("Failed to initialize archive storage: %v", err)
		}
		exporter = archive.NewExporter(storage, engine)
	}

	// Register routes
	handler := ingest.NewHandler(store, engine, exporter)
	handler.RegisterRoutes(r)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Ingest server starting on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
