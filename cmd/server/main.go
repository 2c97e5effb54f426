/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the bonus ledger service. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create wallet service and API handler
  4. Start the expiration scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: bonus.db, ":memory:" for in-memory)
  -retention-days  Expiration window for unspent accrual batches (default: 180)
  -sweep-interval  How often the expiration scheduler runs (default: 1h)
  -sweep-enabled   Whether the scheduler runs at all (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiration scheduler
  2. Stop accepting new connections, drain active requests (30s timeout)
  3. Close database connection
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
	"syscall"
	"time"

	"github.com/warp/bonus-ledger/api"
	"github.com/warp/bonus-ledger/store/sqlite"
	"github.com/warp/bonus-ledger/wallet"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "bonus.db", "SQLite database path")
	retentionDays := flag.Int("retention-days", 180, "expiration window for unspent accrual batches")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "expiration scheduler interval")
	sweepEnabled := flag.Bool("sweep-enabled", true, "run the expiration scheduler")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wallet service over the SQLite store
	svc := wallet.New(store, store)

	// API handler
	handler := api.NewHandler(svc)
	handler.Runs = store
	handler.RetentionDays = *retentionDays

	// Expiration scheduler
	scheduler := api.NewExpirationScheduler(svc, store)
	scheduler.CheckInterval = *sweepInterval
	scheduler.RetentionDays = *retentionDays
	scheduler.Enabled = *sweepEnabled
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
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
		log.Printf("Bonus ledger listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
