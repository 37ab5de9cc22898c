package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"clipscope/internal/indexer"
	"clipscope/internal/metrics"
	"clipscope/internal/model"
	"clipscope/internal/storage"
)

// Scanner runs catalog scans.
type Scanner interface {
	Scan(ctx context.Context, req indexer.ScanRequest) ([]model.DisplayRecord, error)
}

// Config holds HTTP API settings.
type Config struct {
	// ScanTimeout bounds each request's scan; zero means the request context
	// alone decides.
	ScanTimeout time.Duration
}

// Server serves the global feed and per-creator feeds. Every request runs its
// own scan.
type Server struct {
	cfg     Config
	scanner Scanner
	base    indexer.ScanRequest
	router  *mux.Router
	logger  *zap.Logger
}

type catalogResponse struct {
	Feed    string                `json:"feed"`
	Count   int                   `json:"count"`
	Records []model.DisplayRecord `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds a Server. base carries every scan parameter except the identity.
func New(cfg Config, scanner Scanner, base indexer.ScanRequest, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		scanner: scanner,
		base:    base,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter()
	s.router.Use(s.instrument)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/coins", s.listCoinsHandler).Methods(http.MethodGet)
	api.HandleFunc("/creators/{address}/coins", s.creatorCoinsHandler).Methods(http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listCoinsHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, r.URL.Query().Get("creator"))
}

func (s *Server) creatorCoinsHandler(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, mux.Vars(r)["address"])
}

func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, rawIdentity string) {
	identity, err := indexer.ParseIdentity(rawIdentity)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx := r.Context()
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	req := s.base
	req.Identity = identity
	records, err := s.scanner.Scan(ctx, req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, catalogResponse{
		Feed:    storage.FeedName(identity),
		Count:   len(records),
		Records: records,
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, strconv.Itoa(ww.status), elapsed)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", zap.Int("status", status), zap.Error(err))
	}
}
