// Package api exposes the HTTP interface for the service. Handlers are
// presentation only; all semantics live in the core services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
	"github.com/pricehound/pricehound/internal/comparison"
	"github.com/pricehound/pricehound/internal/deals"
	"github.com/pricehound/pricehound/internal/filter"
	"github.com/pricehound/pricehound/internal/orchestrator"
)

// Server wires HTTP handlers to the core services.
type Server struct {
	router     chi.Router
	orch       *orchestrator.Orchestrator
	store      catalog.SessionStore
	comparison *comparison.Service
	deals      *deals.Service
	filter     *filter.Service
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The filter
// service may be nil when no relevance judge is configured.
func NewServer(
	orch *orchestrator.Orchestrator,
	store catalog.SessionStore,
	cmp *comparison.Service,
	dealsSvc *deals.Service,
	filterSvc *filter.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		orch:       orch,
		store:      store,
		comparison: cmp,
		deals:      dealsSvc,
		filter:     filterSvc,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", s.runBatch)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/products", s.listSessionProducts)
				r.Post("/filter", s.filterSession)
			})
		})
		r.Route("/compare", func(r chi.Router) {
			r.Post("/", s.compare)
			r.Post("/rebuild", s.rebuildComparisonCache)
		})
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", s.listDeals)
			r.Post("/refresh", s.startDealsRefresh)
			r.Get("/refresh", s.dealsRefreshStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	Keyword        string   `json:"keyword"`
	Platforms      []string `json:"platforms"`
	MaxPerPlatform int      `json:"max_per_platform"`
	MinPrice       int64    `json:"min_price"`
	MaxPrice       int64    `json:"max_price"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	session, err := s.orch.RunBatch(r.Context(), orchestrator.BatchRequest{
		Keyword:        req.Keyword,
		Platforms:      req.Platforms,
		MaxPerPlatform: req.MaxPerPlatform,
		MinPrice:       req.MinPrice,
		MaxPrice:       req.MaxPrice,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrUnsupportedPlatform) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) listSessionProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	products, err := s.store.ListSessionProducts(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) filterSession(w http.ResponseWriter, r *http.Request) {
	if s.filter == nil {
		s.writeError(w, http.StatusNotImplemented, "relevance filter is not configured")
		return
	}
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	marked, err := s.filter.FilterSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	var target catalog.TargetProduct
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if target.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	result, err := s.comparison.Resolve(r.Context(), target)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) rebuildComparisonCache(w http.ResponseWriter, r *http.Request) {
	processed, err := s.comparison.RebuildAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	found, err := s.deals.ListDeals(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"deals": found})
}

func (s *Server) startDealsRefresh(w http.ResponseWriter, r *http.Request) {
	job, err := s.deals.StartRefresh(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrRefreshInProgress) {
			s.writeJSON(w, http.StatusConflict, job)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) dealsRefreshStatus(w http.ResponseWriter, _ *http.Request) {
	job, ok := s.deals.Status()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no refresh has run")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
