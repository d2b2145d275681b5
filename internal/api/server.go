// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public and read-only.
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/talgya/veramatrix/internal/agents"
	"github.com/talgya/veramatrix/internal/engine"
	"github.com/talgya/veramatrix/internal/persistence"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; enables stored history and life events
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	once    sync.Once
	handler http.Handler
	cache   *cache.Cache // Responses keyed by simulated day
	limiter *RateLimiter
	srv     *http.Server
}

// Handler builds the routed, rate-limited handler. It is safe to call more than once.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.cache = cache.New(time.Minute, 0)
		s.limiter = NewRateLimiter(20, 40, 10*time.Minute)

		mux := http.NewServeMux()

		// Public endpoints.
		mux.HandleFunc("/api/v1/status", s.handleStatus)
		mux.HandleFunc("/api/v1/agents", s.handleAgents)
		mux.HandleFunc("/api/v1/agent/", s.handleAgent)
		mux.HandleFunc("/api/v1/technologies", s.handleTechnologies)
		mux.HandleFunc("/api/v1/stats", s.handleStats)
		mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
		mux.HandleFunc("/api/v1/events", s.handleEvents)

		// Admin endpoints.
		mux.HandleFunc("/api/v1/pace", s.adminOnly(s.handlePace))

		s.handler = corsMiddleware(RateLimitMiddleware(s.limiter, mux))
	})
	return s.handler
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no VERAMATRIX_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func cacheKey(key string, day uint64) string {
	return key + ":" + strconv.FormatUint(day, 10)
}

// cached returns the value stored for key on day, building it on a miss.
// build reports the day its value was read on, and the value is stored under
// that day, which differs from day when a tick lands in between.
func (s *Server) cached(key string, day uint64, build func() (uint64, any)) any {
	if v, ok := s.cache.Get(cacheKey(key, day)); ok {
		return v
	}
	readOn, v := build()
	s.cache.DeleteExpired()
	s.cache.Set(cacheKey(key, readOn), v, cache.DefaultExpiration)
	return v
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	status := s.cached("status", snap.Day, func() (uint64, any) {
		return snap.Day, map[string]any{
			"name":           "VeraMatrix",
			"run_id":         snap.RunID,
			"day":            snap.Day,
			"date":           snap.CurrentTime.Format(time.DateOnly),
			"start_date":     snap.StartTime.Format(time.DateOnly),
			"population":     snap.Stats.Population,
			"births":         snap.Stats.Births,
			"deaths":         snap.Stats.Deaths,
			"total_births":   snap.Stats.TotalBirths,
			"total_deaths":   snap.Stats.TotalDeaths,
			"total_wealth":   snap.Stats.TotalWealth,
			"average_wealth": snap.Stats.AverageWealth,
			"discovered":     snap.Stats.Discovered,
		}
	}).(map[string]any)

	// Engine state changes within a day and is never cached.
	out := make(map[string]any, len(status)+2)
	for k, v := range status {
		out[k] = v
	}
	if s.Eng != nil {
		out["running"] = s.Eng.Running()
		out["pace"] = s.Eng.Interval().String()
	}
	writeJSON(w, out)
}

type agentSummary struct {
	ID        agents.AgentID `json:"id"`
	Name      string         `json:"name"`
	Age       float64        `json:"age"`
	Location  string         `json:"location"`
	Health    float64        `json:"health"`
	Money     float64        `json:"money"`
	Stress    float64        `json:"stress"`
	Mood      agents.Mood    `json:"mood"`
	SelfAware bool           `json:"self_aware"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	day := s.Sim.Snapshot().Day
	all := s.cached("agents", day, func() (uint64, any) {
		readOn, list := s.Sim.AgentListDay()
		out := make([]agentSummary, 0, len(list))
		for _, a := range list {
			out = append(out, agentSummary{
				ID:        a.ID,
				Name:      a.Name,
				Age:       a.Age,
				Location:  a.Location.String(),
				Health:    a.Health,
				Money:     a.Money,
				Stress:    a.Stress,
				Mood:      a.Mood,
				SelfAware: a.SelfAware,
			})
		}
		return readOn, out
	}).([]agentSummary)

	// Optional filters: ?subregion=USA, ?self_aware=true
	sub := r.URL.Query().Get("subregion")
	aware := r.URL.Query().Get("self_aware") == "true"
	if sub == "" && !aware {
		writeJSON(w, all)
		return
	}

	result := []agentSummary{}
	for _, a := range all {
		if sub != "" && !strings.HasSuffix(a.Location, ", "+sub) {
			continue
		}
		if aware && !a.SelfAware {
			continue
		}
		result = append(result, a)
	}
	writeJSON(w, result)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing agent id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}

	agent, ok := s.Sim.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	result := map[string]any{
		"agent":       agent,
		"summary":     agent.String(),
		"time_of_day": agent.TimeOfDay(),
	}
	if s.DB != nil {
		events, err := s.DB.LoadLifeEvents(r.Context(), s.Sim.RunID.String(), id, 20)
		if err != nil {
			slog.Error("life event query failed", "agent", id, "error", err)
		} else {
			if events == nil {
				events = []persistence.LifeEventRow{}
			}
			result["life_events"] = events
		}
	}
	writeJSON(w, result)
}

func (s *Server) handleTechnologies(w http.ResponseWriter, r *http.Request) {
	type techEntry struct {
		Name         string `json:"name"`
		Status       string `json:"status"`
		DiscoveredOn string `json:"discovered_on,omitempty"`
	}

	snap := s.Sim.Snapshot()
	result := make([]techEntry, 0, len(snap.Technologies))
	for _, t := range snap.Technologies {
		e := techEntry{Name: t.Name, Status: t.Status()}
		if t.DiscoveredOn != nil {
			e.DiscoveredOn = t.DiscoveredOn.Format(time.DateOnly)
		}
		result = append(result, e)
	}
	writeJSON(w, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot().Stats)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	if s.DB == nil {
		// Fall back to the in-memory series.
		history := s.Sim.HistoryCopy()
		first := uint64(1)
		if len(history) > limit {
			first = uint64(len(history)-limit) + 1
			history = history[len(history)-limit:]
		}
		rows := make([]persistence.StatsRow, 0, len(history))
		for i, h := range history {
			rows = append(rows, persistence.StatsRow{
				Day:         first + uint64(i),
				Date:        h.Date.Format(time.DateOnly),
				Population:  h.Population,
				Births:      h.Births,
				Deaths:      h.Deaths,
				TotalWealth: h.TotalWealth,
			})
		}
		writeJSON(w, rows)
		return
	}

	rows, err := s.DB.LoadStatsHistory(r.Context(), s.Sim.RunID.String(), limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return empty array instead of error; the table may not have data yet.
		writeJSON(w, []persistence.StatsRow{})
		return
	}
	if rows == nil {
		rows = []persistence.StatsRow{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(-1)

	// Optional category filter: death, birth, technology, awareness.
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []engine.Event{}
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handlePace(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Pace string `json:"pace"` // Go duration, e.g. "250ms"
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		d, err := time.ParseDuration(req.Pace)
		if err != nil {
			http.Error(w, "invalid pace", http.StatusBadRequest)
			return
		}
		if d < 0 || d > engine.MaxInterval {
			http.Error(w, "pace must be between 0 and "+engine.MaxInterval.String(), http.StatusBadRequest)
			return
		}
		s.Eng.SetInterval(d)
		slog.Info("pace changed", "pace", d)
	}

	writeJSON(w, map[string]string{"pace": s.Eng.Interval().String()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
