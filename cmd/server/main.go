/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the DormHub booking engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Start the expiry sweeper
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080, env PORT)
  -db              SQLite database path (default: dormhub.db, env DB_PATH)
                   Use ":memory:" for an in-memory database
  -sweep-interval  Expiry sweep period (default: 1m, env SWEEP_INTERVAL)
  -rate            Requests per second per caller (default: 10)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/dormhub.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Sweep every 10 seconds
  ./server -sweep-interval=10s

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
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dormhub/booking-engine/api"
	"github.com/dormhub/booking-engine/booking"
	"github.com/dormhub/booking-engine/pricing"
	"github.com/dormhub/booking-engine/store/sqlite"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; flags override it.
	_ = godotenv.Load()

	port := flag.String("port", envOr("PORT", "8080"), "HTTP server port")
	dbPath := flag.String("db", envOr("DB_PATH", "dormhub.db"), "SQLite database path")
	sweepRaw := flag.String("sweep-interval", envOr("SWEEP_INTERVAL", "1m"), "Expiry sweep period")
	ratePerSec := flag.Float64("rate", 10, "Requests per second per caller")
	flag.Parse()

	sweepInterval, err := time.ParseDuration(*sweepRaw)
	if err != nil {
		log.Fatalf("Invalid sweep interval %q: %v", *sweepRaw, err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Background expiry sweeper
	sweeper := booking.NewExpirySweeper(store)
	sweeper.Interval = sweepInterval
	sweeper.Start()
	defer sweeper.Stop()

	// Pricing with a persistent quote cache
	pricingSvc := pricing.NewService(pricing.NewHTTPFetcher(), store)

	// Initialize handler and router
	handler := api.NewHandler(store, sweeper, pricingSvc)
	limiter := api.NewRateLimiter(*ratePerSec, int(*ratePerSec)*2)
	router := api.NewRouter(handler, limiter)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%s", *port)
		log.Printf("📊 API available at http://localhost:%s/api", *port)
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
