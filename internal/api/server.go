package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/engine"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Provider exposes the live state of a crawl session.
type Provider interface {
	State() engine.RunState
	Snapshot() engine.StatsSnapshot
	StoreStats(ctx context.Context) (*types.StoreStats, error)
}

// Server provides a read-only REST API for watching a running crawl.
type Server struct {
	mux      *http.ServeMux
	port     int
	provider Provider
	logger   *slog.Logger
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	State     engine.RunState      `json:"state"`
	Stats     engine.StatsSnapshot `json:"stats"`
	Timestamp time.Time            `json:"timestamp"`
}

// storeResponse is the body of GET /api/store.
type storeResponse struct {
	Products           int64            `json:"products"`
	ProductsCategories int64            `json:"products_with_categories"`
	Reviews            int64            `json:"reviews"`
	ByRating           map[string]int64 `json:"by_rating"`
}

// NewServer creates a new API server.
func NewServer(port int, provider Provider, logger *slog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		port:     port,
		provider: provider,
		logger:   logger.With("component", "api_server"),
	}

	s.registerRoutes()
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("API server starting", "addr", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/store", s.handleStore)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "session not initialized"})
		return
	}
	s.jsonResponse(w, http.StatusOK, statusResponse{
		State:     s.provider.State(),
		Stats:     s.provider.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "session not initialized"})
		return
	}
	st, err := s.provider.StoreStats(r.Context())
	if err != nil {
		s.logger.Warn("store stats failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	byRating := make(map[string]int64, len(st.ByRating))
	for rating, n := range st.ByRating {
		key := "unknown"
		if rating.Known() {
			key = fmt.Sprint(int(rating))
		}
		byRating[key] = n
	}
	s.jsonResponse(w, http.StatusOK, storeResponse{
		Products:           st.Products,
		ProductsCategories: st.ProductsCategories,
		Reviews:            st.Reviews,
		ByRating:           byRating,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}
