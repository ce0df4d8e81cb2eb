/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Snablo ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger, session lifecycle, purchase coordinator, reconciler
  4. Configure HTTP router and start the undo sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (env fallback in parentheses):
  -port         HTTP server port (PORT, default: 8080)
  -db           SQLite database path (DB_PATH, default: snablo.db)
                Use ":memory:" for an in-memory database
  -brokers      Comma-separated Kafka brokers (KAFKA_BROKERS, default: none;
                when empty, ledger events are not published)
  -undo-window  Undo window in seconds (UNDO_WINDOW_SECONDS, default: 10)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close Kafka and database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/snablo.db"

  # Run with in-memory database and a 30-second undo window
  ./server -db=":memory:" -undo-window=30

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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MKrabs/Snablo-app/api"
	"github.com/MKrabs/Snablo-app/events/kafka"
	"github.com/MKrabs/Snablo-app/ledger"
	"github.com/MKrabs/Snablo-app/purchase"
	"github.com/MKrabs/Snablo-app/reconcile"
	"github.com/MKrabs/Snablo-app/session"
	"github.com/MKrabs/Snablo-app/store/sqlite"
)

func main() {
	// .env is optional; flags and real env win over it
	if err := godotenv.Load(); err == nil {
		log.Println("[Main] Loaded configuration from .env")
	}

	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "snablo.db"), "SQLite database path")
	brokers := flag.String("brokers", envStr("KAFKA_BROKERS", ""), "Comma-separated Kafka brokers")
	undoSeconds := flag.Int("undo-window", envInt("UNDO_WINDOW_SECONDS", 10), "Undo window in seconds")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Ledger with optional Kafka event publishing
	led := ledger.NewLedger(store)
	var publisher *kafka.Publisher
	if *brokers != "" {
		publisher = kafka.NewPublisher(strings.Split(*brokers, ","))
		led.Publisher = publisher
		defer publisher.Close()
		log.Printf("[Main] Publishing ledger events to %s", *brokers)
	}

	// Session lifecycle. The server runs as a service principal: install a
	// long-lived session so the mutation gate is satisfied. Interactive
	// per-user sessions with JWT refresh are the client's concern.
	sessions := session.NewLifecycle(nil)
	sessions.Set(serviceSession())

	// Purchase coordinator and reconciliation engine
	coordinator := purchase.NewCoordinator(led, sessions, nil)
	coordinator.UndoWindow = time.Duration(*undoSeconds) * time.Second
	reconciler := reconcile.NewEngine(led, store, nil)

	// HTTP surface
	handler := api.NewHandler(led, coordinator, reconciler)
	router := api.NewRouter(handler)

	sweeper := api.NewUndoSweeper(coordinator)
	sweeper.Start()
	defer sweeper.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
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

// serviceSession builds the server's own session. If AUTH_TOKEN holds a JWT
// its exp claim is honored; otherwise the session effectively never expires.
func serviceSession() session.Session {
	expiresAt := time.Now().UTC().Add(100 * 365 * 24 * time.Hour)
	raw := os.Getenv("AUTH_TOKEN")
	if raw != "" {
		if exp, err := session.TokenExpiry(raw); err == nil {
			expiresAt = exp
		} else {
			log.Printf("[Main] Ignoring AUTH_TOKEN: %v", err)
		}
	}
	return session.Session{
		User: session.User{
			ID:   "service",
			Name: "Snablo Server",
			Role: session.RoleAdmin,
		},
		Token: session.AuthToken{Token: raw, ExpiresAt: expiresAt},
	}
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
