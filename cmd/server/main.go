/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Load the commission configuration (rate table seeded on first run)
  4. Wire ledger, aggregator, booking/commission/identity services
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: bookings.db, env DATABASE_PATH)
           Use ":memory:" for an in-memory database
  -config  Optional JSON config file for thresholds/rates/exclusions
           (env CONFIG_PATH)
  -demo    Seed the demo rate table when the rates table is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/bookings.db"

  # Run with in-memory database and demo rates
  ./server -db=":memory:" -demo

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caretide/booking-engine/api"
	"github.com/caretide/booking-engine/booking"
	"github.com/caretide/booking-engine/commission"
	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/factory"
	"github.com/caretide/booking-engine/identity"
	"github.com/caretide/booking-engine/store/sqlite"
)

func main() {
	// .env is optional; flags still win over environment values.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "bookings.db"), "SQLite database path")
	cfgPath := flag.String("config", envStr("CONFIG_PATH", ""), "JSON config file for thresholds/rates/exclusions")
	demo := flag.Bool("demo", false, "Seed demo rate table when the rates table is empty")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	cfg, err := loadConfig(*cfgPath, *demo)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// The database is the source of truth for rates; the config file only
	// seeds it when empty.
	rates, err := store.ListRates(ctx)
	if err != nil {
		log.Fatalf("Failed to load rates: %v", err)
	}
	if len(rates) == 0 && len(cfg.Rates) > 0 {
		for _, row := range cfg.Rates {
			if err := store.SaveRate(ctx, row); err != nil {
				log.Fatalf("Failed to seed rate for %q: %v", row.Introducer, err)
			}
		}
		rates = cfg.Rates
		log.Printf("Seeded %d commission rate rows", len(rates))
	}

	// Core wiring: the aggregator listens for ledger changes so its cache
	// never serves stale months.
	ledger := engine.NewLedger(store)
	aggregator := engine.NewAggregator(ledger, cfg.Exclusions)
	ledger.Listeners = append(ledger.Listeners, aggregator)

	bookings := booking.NewService(ledger)
	commissions := commission.NewService(commission.NewEngine(rates, cfg.Thresholds), aggregator, store)
	allocator := identity.NewAllocator(store)

	handler := api.NewHandler(store, bookings, aggregator, commissions, allocator)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func loadConfig(path string, demo bool) (*factory.Config, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return factory.ParseConfig(data)
	}
	if demo {
		return factory.DemoConfig(), nil
	}
	return factory.DefaultConfig(), nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
