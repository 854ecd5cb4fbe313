package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/engine"
	"github.com/talgya/shopfloor/internal/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) (*Server, *engine.Simulation) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Customers = 6
	cfg.Books = 15
	cfg.Seed = 99
	cfg.Steps = 90
	sim, err := engine.NewSimulation(cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, sim.Run(context.Background()))

	return &Server{Sim: sim, Registry: metrics.NewRegistry(sim), Logger: quiet}, sim
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	srv, sim := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, sim.Tick(), body["simulation_step"])
	assert.Equal(t, "1h 30m", body["simulation_time"])
	assert.Equal(t, false, body["running"])
}

func TestAgentsByKind(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"books", "?kind=book", http.StatusOK, 15},
		{"employees", "?kind=employee", http.StatusOK, 5},
		{"unknown kind", "?kind=dragon", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/v1/agents"+tt.query)
			require.Equal(t, tt.code, rec.Code)
			if tt.code != http.StatusOK {
				return
			}
			var body struct {
				Count  int               `json:"count"`
				Agents []json.RawMessage `json:"agents"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.count, body.Count)
			assert.Len(t, body.Agents, tt.count)
		})
	}

	rec := get(t, h, "/api/v1/agents")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.GreaterOrEqual(t, all.Count, 20)
}

func TestBusStats(t *testing.T) {
	srv, sim := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/v1/bus")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total   int            `json:"total_messages"`
		Pending int            `json:"pending_messages"`
		ByType  map[string]int `json:"message_types_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	stats := sim.BusStats()
	assert.Equal(t, stats.TotalMessages, body.Total)
	assert.Equal(t, stats.PendingMessages, body.Pending)
	assert.Len(t, body.ByType, len(stats.MessageTypes))
}

func TestTopBooksLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/books/top?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	var books []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	assert.Len(t, books, 3)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/books/top?limit=zero").Code)
}

func TestCustomersAndAlerts(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/customers")
	require.Equal(t, http.StatusOK, rec.Code)
	var insights map[string]engine.CustomerTypeStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &insights))
	assert.NotEmpty(t, insights)

	rec = get(t, h, "/api/v1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopfloor_bus_messages_published_total")
	assert.Contains(t, rec.Body.String(), `shopfloor_scheduler_active_agents{kind="book"} 15`)

	srv.Registry = nil
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics").Code)
}

func TestReadOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Origins = []string{"https://shop.example.com"}
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitedServer(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Limiter = NewRateLimiter(0.001, 2)
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/status").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/status").Code)
	rec := get(t, h, "/api/v1/status")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestStartDisabledOnPortZero(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Start(context.Background())
}
