// Package api provides the HTTP API over the market engine.
// GET endpoints are public and read-only.
// POST endpoints mutate the market; they are rate limited per client IP and
// require a bearer token when an admin key is configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/realm-market/internal/economy"
	"github.com/talgya/realm-market/internal/engine"
)

const defaultMaxStreamConns = 16

// Server serves the market over HTTP.
type Server struct {
	Market         *engine.Market
	Clock          *engine.Clock // nil when days only advance on request
	Port           int
	AdminKey       string // Bearer token for POST endpoints. Empty = POST open.
	CORSOrigins    []string
	PostPerMinute  int
	MaxStreamConns int
	StoreName      string

	// Active stream connection count (atomic).
	streamConns int32

	srv     *http.Server
	limiter *RateLimiter
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	perMinute := s.PostPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	mutationLimiter := NewRateLimiter(perMinute, time.Minute)
	s.limiter = mutationLimiter

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/market", s.handleMarket)
	mux.HandleFunc("GET /api/v1/market/{region}", s.handleRegion)
	mux.HandleFunc("GET /api/v1/history/{region}/{commodity}", s.handleHistory)
	mux.HandleFunc("GET /api/v1/commodities", s.handleCommodities)
	mux.HandleFunc("GET /api/v1/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/events", s.handleEventMenus)
	mux.HandleFunc("GET /api/v1/events/last", s.handleLastEvents)
	mux.HandleFunc("GET /api/v1/events/history", s.handleEventHistory)
	mux.HandleFunc("GET /api/v1/analytics/profit", s.handleProfit)
	mux.HandleFunc("GET /api/v1/analytics/volatility", s.handleVolatility)
	mux.HandleFunc("GET /api/v1/analytics/trends", s.handleTrends)
	mux.HandleFunc("GET /api/v1/analytics/regions", s.handleRegionalPerformance)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Mutations.
	mux.HandleFunc("POST /api/v1/advance", s.adminOnly(RateLimitMiddleware(mutationLimiter, s.handleAdvance)))
	mux.HandleFunc("POST /api/v1/trigger", s.adminOnly(RateLimitMiddleware(mutationLimiter, s.handleTrigger)))
	mux.HandleFunc("POST /api/v1/clock", s.adminOnly(s.handleClock))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "clock", s.Clock != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
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

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the bearer token when an admin key is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey != "" && !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	day := s.Market.Day()

	lastSaved := "never"
	if t := s.Market.LastSaved(); !t.IsZero() {
		lastSaved = humanize.Time(t)
	}

	clock := map[string]any{"enabled": s.Clock != nil}
	if s.Clock != nil {
		clock["interval"] = s.Clock.Interval.String()
		clock["paused"] = s.Clock.Paused()
		clock["ticks"] = s.Clock.Ticks()
	}

	status := map[string]any{
		"day":         day,
		"date":        engine.SimDate(day),
		"regions":     economy.NumRegions,
		"commodities": economy.NumCommodities,
		"store":       s.StoreName,
		"last_saved":  lastSaved,
		"clock":       clock,
		"streams":     atomic.LoadInt32(&s.streamConns),
	}
	writeJSON(w, status)
}

// priceView is a PricePoint with its display price.
type priceView struct {
	CurrentPrice float64   `json:"current_price"`
	Formatted    string    `json:"formatted"`
	History      []float64 `json:"history"`
}

func viewRegion(cells map[economy.Commodity]engine.PricePoint) map[economy.Commodity]priceView {
	out := make(map[economy.Commodity]priceView, len(cells))
	for c, pp := range cells {
		out[c] = priceView{
			CurrentPrice: pp.CurrentPrice,
			Formatted:    economy.FormatPrice(pp.CurrentPrice, c.Info().Unit),
			History:      pp.History,
		}
	}
	return out
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	prices := s.Market.Prices()
	out := make(map[economy.Region]map[economy.Commodity]priceView, len(prices))
	for region, cells := range prices {
		out[region] = viewRegion(cells)
	}
	writeJSON(w, out)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	region, err := economy.ParseRegion(r.PathValue("region"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	cells, _ := s.Market.RegionPrices(region)
	writeJSON(w, viewRegion(cells))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	region, err := economy.ParseRegion(r.PathValue("region"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	commodity, err := economy.ParseCommodity(r.PathValue("commodity"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h, _ := s.Market.PriceHistory(region, commodity)
	writeJSON(w, h)
}

func (s *Server) handleCommodities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.Catalog())
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.Regions())
}

func (s *Server) handleEventMenus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.EventMenus())
}

func (s *Server) handleLastEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.LastEvents())
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.RecentEvents())
}

func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	export, err := economy.ParseRegion(q.Get("export"))
	if err != nil {
		http.Error(w, "export: "+err.Error(), http.StatusBadRequest)
		return
	}
	imp, err := economy.ParseRegion(q.Get("import"))
	if err != nil {
		http.Error(w, "import: "+err.Error(), http.StatusBadRequest)
		return
	}

	opps, err := s.Market.ProfitOpportunities(export, imp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, opps)
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.VolatilityAnalysis())
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.TrendAnalysis())
}

func (s *Server) handleRegionalPerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Market.RegionalPerformance())
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	day, err := s.Market.AdvanceDay(r.Context())
	res := engine.AdvanceResult(day, err)

	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, struct {
		engine.Result
		Day uint64 `json:"day"`
	}{res, day})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region     string `json:"region"`
		EventIndex *int   `json:"event_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, engine.Result{Message: "invalid json"})
		return
	}
	if req.EventIndex == nil {
		writeJSONStatus(w, http.StatusBadRequest, engine.Result{Message: "event_index is required"})
		return
	}

	desc, err := s.Market.TriggerNamed(r.Context(), req.Region, *req.EventIndex)
	res := engine.EventResult(req.Region, desc, err)

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrUnknownRegion), errors.Is(err, engine.ErrInvalidEventIndex):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, res)
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	if s.Clock == nil {
		writeJSONStatus(w, http.StatusConflict, engine.Result{Message: "clock is not enabled"})
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, engine.Result{Message: "invalid json"})
		return
	}

	if req.Paused {
		s.Clock.Pause()
	} else {
		s.Clock.Resume()
	}
	slog.Info("clock state changed", "paused", req.Paused)

	msg := "Clock resumed"
	if req.Paused {
		msg = "Clock paused"
	}
	writeJSON(w, engine.Result{Success: true, Message: msg})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
