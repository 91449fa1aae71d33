package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfidelis/order-relay/docs"
	"github.com/hfidelis/order-relay/internal/broker"
	"github.com/hfidelis/order-relay/internal/config"
	"github.com/hfidelis/order-relay/internal/db"
	"github.com/hfidelis/order-relay/internal/gateway"
	"github.com/hfidelis/order-relay/internal/history"
	"github.com/hfidelis/order-relay/internal/httputil"
	mw "github.com/hfidelis/order-relay/internal/middleware"
	"github.com/hfidelis/order-relay/internal/orders"
	"github.com/hfidelis/order-relay/internal/relay"
	"github.com/hfidelis/order-relay/internal/simulator"
	"github.com/hfidelis/order-relay/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Database (optional): only the event history depends on it.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("WARNING: database connection failed: %v (continuing without event history)", err)
		} else {
			defer database.Close()
			if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
				log.Printf("WARNING: migrations failed: %v", err)
			}
			pool = database.Pool
		}
	}

	// Broker link. Failing to establish the topology at startup is the one
	// unrecoverable error in this service.
	bk, err := broker.New(cfg)
	if err != nil {
		log.Fatalf("Failed to set up broker: %v", err)
	}
	defer bk.Close()

	// Subscriber hub
	hub := ws.NewHub()
	go hub.Run()
	wsHandler := ws.NewWSHandler(hub)

	// Event history (optional)
	var sink relay.EventSink
	var historyHandlers *history.Handlers
	if pool != nil {
		store := history.NewStore(pool)
		sink = store
		historyHandlers = history.NewHandlers(store)
		log.Println("Event history enabled")
	}

	// Forwarder: broker -> hub
	forwarder := relay.NewForwarder(bk, hub, sink)
	if err := forwarder.Start(); err != nil {
		log.Fatalf("Failed to start forwarder: %v", err)
	}
	defer forwarder.Stop()

	// Order simulator
	sim := simulator.New(bk)
	simHandlers := simulator.NewHandlers(sim)

	// Router
	r := mux.NewRouter()

	// Rate limiting: 100 req/s per IP with burst of 200
	r.Use(mw.RateLimitMiddleware(100, 200))

	// Health check
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"subscribers": hub.ClientCount(),
		})
	}).Methods("GET")

	// API documentation
	docs.RegisterRoutes(r)

	simHandlers.RegisterRoutes(r)
	orders.NewHandlers().RegisterRoutes(r)
	if historyHandlers != nil {
		historyHandlers.RegisterRoutes(r)
	}

	// Object gateway (optional)
	if cfg.MinioEndpoint != "" {
		gw, err := gateway.New(ctx, gateway.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL == "true",
		})
		if err != nil {
			log.Printf("WARNING: object gateway setup failed: %v", err)
		} else {
			gateway.NewHandlers(gw).RegisterRoutes(r)
			log.Println("Object gateway enabled")
		}
	}

	// WebSocket subscription endpoint
	wsHandler.RegisterRoutes(r)

	// Static assets (demo page)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	// HTTP Server — CORS wraps the entire router so OPTIONS preflight
	// requests are handled before mux routing (which would 404 on OPTIONS).
	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        corsMiddleware(r),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	log.Println("Server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:8080"
	}

	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(origins) == 1 {
			// Single origin mode: always set it (for dev convenience)
			for o := range origins {
				w.Header().Set("Access-Control-Allow-Origin", o)
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
