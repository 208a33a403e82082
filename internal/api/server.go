// Package api provides the read-only ops HTTP endpoint for the ingest
// pipeline. It is not the policy wire protocol.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kikokikok/fps-genie/internal/logging"
	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/types"
)

// matchesPageSize is the page size of the match listing
const matchesPageSize = 50

// StatsProvider serves ingest counters
type StatsProvider interface {
	Stats(ctx context.Context) (*models.IngestStats, error)
}

// MatchLister serves paginated match listings by status
type MatchLister interface {
	SelectByStatus(ctx context.Context, status types.ProcessingStatus, limit, offset int) ([]*models.MatchMetadata, error)
}

// HealthChecker reports one store's reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the ops HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	stats      StatsProvider
	matches    MatchLister
	checks     map[string]HealthChecker
	logger     *logging.Logger
}

// ServerConfig holds ops endpoint settings
type ServerConfig struct {
	Addr    string
	Stats   StatsProvider
	Matches MatchLister
	// Checks maps a store name to its health check, reported per store
	// by /healthz
	Checks map[string]HealthChecker
	Logger *logging.Logger
}

// NewServer creates the ops HTTP server
func NewServer(cfg *ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.LevelInfo, logging.FormatJSON)
	}

	s := &Server{
		router:  mux.NewRouter(),
		stats:   cfg.Stats,
		matches: cfg.Matches,
		checks:  cfg.Checks,
		logger:  logger,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/matches", s.handleMatches).Methods("GET")
}

// Handler exposes the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Ops API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ops API")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth checks every registered store. Any failing store flips
// the overall status and the response code to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stores := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			stores[name] = err.Error()
			healthy = false
			continue
		}
		stores[name] = "ok"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": overall,
		"stores": stores,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Stats query failed")
		respondError(w, http.StatusInternalServerError, "STATS_UNAVAILABLE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	status := types.ProcessingStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = types.StatusCompleted
	}
	if !status.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_STATUS",
			"status must be one of pending, processing, completed, failed")
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "INVALID_PAGE", "page must be a positive integer")
			return
		}
		page = parsed
	}

	matches, err := s.matches.SelectByStatus(r.Context(), status, matchesPageSize, (page-1)*matchesPageSize)
	if err != nil {
		s.logger.WithError(err).Error("Match listing failed")
		respondError(w, http.StatusInternalServerError, "LISTING_FAILED", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"page":    page,
		"count":   len(matches),
		"matches": matches,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
