// Package api provides the read-only HTTP API for observing a running store.
// Every endpoint is GET; /metrics serves the Prometheus registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/engine"
)

const defaultTopBooks = 10

// Server serves the store state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Registry *prometheus.Registry // nil disables /metrics
	Port     int                  // 0 disables the server
	Limiter  *RateLimiter         // nil disables rate limiting
	Origins  []string             // extra CORS origins
	Logger   *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler returns the API routes with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/bus", s.handleBus)
	mux.HandleFunc("GET /api/v1/books/top", s.handleTopBooks)
	mux.HandleFunc("GET /api/v1/customers", s.handleCustomers)
	mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)

	if s.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	if s.Limiter != nil {
		h = RateLimitMiddleware(s.Limiter, h)
	}
	return corsMiddleware(s.Origins, h)
}

// Start serves the API in a goroutine until ctx ends. It does nothing when
// Port is 0.
func (s *Server) Start(ctx context.Context) {
	if s.Port == 0 {
		s.logger().Debug("HTTP API disabled")
		return
	}

	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger().Info("HTTP API starting", "addr", addr, "rate_limited", s.Limiter != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if s.Limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Limiter.Cleanup(time.Hour)
				}
			}
		}()
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Summary())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kind := agents.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !slices.Contains([]agents.Kind{agents.KindBook, agents.KindCustomer, agents.KindEmployee}, kind) {
		http.Error(w, fmt.Sprintf("unknown agent kind %q", kind), http.StatusBadRequest)
		return
	}

	snaps := s.Sim.Snapshots(kind)
	if snaps == nil {
		snaps = []agents.Snapshot{}
	}
	writeJSON(w, map[string]any{
		"tick":   s.Sim.Tick(),
		"count":  len(snaps),
		"agents": snaps,
	})
}

func (s *Server) handleBus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.BusStats())
}

func (s *Server) handleTopBooks(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopBooks
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, s.Sim.TopBooks(limit))
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.CustomerInsights())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.Sim.InventoryAlerts()
	if alerts == nil {
		alerts = []economy.InventoryAlert{}
	}
	writeJSON(w, alerts)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
