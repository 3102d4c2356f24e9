// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/dilemma/internal/agents"
	"github.com/talgya/dilemma/internal/engine"
	"github.com/talgya/dilemma/internal/persistence"
	"github.com/talgya/dilemma/internal/stats"
)

// Server serves the simulation state over HTTP.
type Server struct {
	World    *engine.World
	Eng      *engine.Engine
	DB       *persistence.DB // nil = history endpoints return 503
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// HistoryLimit caps stats/history requests per IP per minute. 0 = 60.
	HistoryLimit int
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = 60
	}
	historyLimiter := NewRateLimiter(limit, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgentDetail)
	mux.HandleFunc("/api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("/api/v1/ages", s.handleAges)
	mux.HandleFunc("/api/v1/stats/history", RateLimitMiddleware(historyLimiter, s.handleStatsHistory))
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/run/", s.handleRunDetail)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can be
// shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "db", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
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
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no PDSIM_ADMIN_KEY set)", http.StatusForbidden)
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

// view runs fn between ticks.
func (s *Server) view(fn func()) {
	if s.Eng == nil {
		fn()
		return
	}
	s.Eng.View(fn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.view(func() {
		cfg := s.World.Config()
		status = map[string]any{
			"run_id":     s.RunID,
			"seed":       s.World.Seed(),
			"tick":       s.World.CurrentTick(),
			"population": len(s.World.Agents()),
			"groups":     cfg.NumGroups,
			"last_tick":  s.World.Stats,
			"summary":    stats.Summarize(s.World.Agents()),
		}
	})
	if s.Eng != nil {
		status["running"] = s.Eng.Running()
		status["speed"] = s.Eng.Speed()
	}
	writeJSON(w, status)
}

type agentSummary struct {
	ID           agents.AgentID `json:"id"`
	Group        int            `json:"group"`
	MemoryLength int            `json:"memory_length"`
	Strategy     string         `json:"strategy"`
	Wealth       float64        `json:"wealth"`
	Age          uint64         `json:"age"`
	Move         string         `json:"last_move"`
}

func summarizeAgent(a *agents.Agent) agentSummary {
	return agentSummary{
		ID:           a.ID,
		Group:        a.Group,
		MemoryLength: a.MemoryLength,
		Strategy:     a.Strategy.String(),
		Wealth:       a.Wealth,
		Age:          a.Age,
		Move:         a.Move.String(),
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	group := -1
	if g := r.URL.Query().Get("group"); g != "" {
		v, err := strconv.Atoi(g)
		if err != nil || v < 0 {
			http.Error(w, "invalid group", http.StatusBadRequest)
			return
		}
		group = v
	}

	result := []agentSummary{}
	s.view(func() {
		for _, a := range s.World.Agents() {
			if group >= 0 && a.Group != group {
				continue
			}
			result = append(result, summarizeAgent(a))
		}
	})
	writeJSON(w, result)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
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

	type agentDetail struct {
		agentSummary
		BornTick    uint64 `json:"born_tick"`
		HistoryLen  int    `json:"history_len"`
		Window      string `json:"window"` // most recent memory_length moves
		Partners    int    `json:"partners"`
		UniquePeers int    `json:"unique_partners"`
	}

	var detail agentDetail
	found := false
	s.view(func() {
		a, ok := s.World.Agent(agents.AgentID(id))
		if !ok {
			return
		}
		found = true

		peers := make(map[agents.AgentID]bool, len(a.PartnerHistory))
		for _, p := range a.PartnerHistory {
			peers[p] = true
		}
		detail = agentDetail{
			agentSummary: summarizeAgent(a),
			BornTick:     a.BornTick,
			HistoryLen:   len(a.History),
			Window:       agents.Strategy(a.RecentHistory()).String(),
			Partners:     len(a.PartnerHistory),
			UniquePeers:  len(peers),
		}
	})
	if !found {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, detail)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	var rows []stats.StrategyCount
	var tick uint64
	s.view(func() {
		tick = s.World.CurrentTick()
		rows = stats.StrategyFrequency(s.World.Agents())
	})

	resp := map[string]any{"tick": tick, "strategies": rows}
	if top, ok := stats.Dominant(rows); ok {
		resp["dominant"] = top
	}
	writeJSON(w, resp)
}

func (s *Server) handleAges(w http.ResponseWriter, r *http.Request) {
	var rows []stats.AgeCount
	var tick uint64
	s.view(func() {
		tick = s.World.CurrentTick()
		rows = stats.AgeFrequency(s.World.Agents())
	})
	writeJSON(w, map[string]any{"tick": tick, "ages": rows})
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	runID := s.RunID
	if id := q.Get("run"); id != "" {
		runID = id
	}
	var fromTick, toTick uint64
	limit := 100

	if f := q.Get("from"); f != "" {
		if v, err := strconv.ParseUint(f, 10, 63); err == nil {
			fromTick = v
		}
	}
	if t := q.Get("to"); t != "" {
		if v, err := strconv.ParseUint(t, 10, 63); err == nil {
			toTick = v
		}
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	rows, err := s.DB.LoadStatsHistory(r.Context(), runID, fromTick, toTick, limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		http.Error(w, "stats history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}
	runs, err := s.DB.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "runs unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// handleRunDetail serves /api/v1/run/:id with the run's final population.
func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	run, err := s.DB.GetRun(r.Context(), parts[4])
	if errors.Is(err, persistence.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get run failed", "run", parts[4], "error", err)
		http.Error(w, "run unavailable", http.StatusInternalServerError)
		return
	}
	cfg, err := run.Config()
	if err != nil {
		slog.Warn("run config unreadable", "run", run.ID, "error", err)
	}
	survivors, err := s.DB.LoadSurvivors(r.Context(), run.ID)
	if err != nil {
		slog.Error("load survivors failed", "run", run.ID, "error", err)
		http.Error(w, "run unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"run":       run,
		"config":    cfg,
		"survivors": survivors,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
