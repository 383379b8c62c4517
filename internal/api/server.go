// Package api provides the HTTP server for QuizHub.
// It exposes the streak, title and XP operations as a JSON API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quizhub/quizhub/internal/app/progression"
	"github.com/quizhub/quizhub/internal/domain"
	"github.com/quizhub/quizhub/internal/health"
	"github.com/quizhub/quizhub/internal/infra/metrics"
)

// Server is the QuizHub HTTP API server.
type Server struct {
	svc            *progression.Service
	loc            *time.Location
	logger         *zap.Logger
	corsOrigins    []string
	metricsEnabled bool
	health         *health.Checker // nil reports ok without checks
	now            func() time.Time
}

// NewServer creates a new API server. "Today" is evaluated in loc.
func NewServer(svc *progression.Service, loc *time.Location, logger *zap.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:         svc,
		loc:         loc,
		logger:      logger,
		corsOrigins: []string{"*"},
		now:         time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth makes /health run the checker's checks.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins replaces the allowed CORS origins.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/titles", s.handleTitles)
		r.Get("/titles/lookup", s.handleTitleLookup)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/streak", s.handleStreak)
			r.Post("/streak/complete", s.handleComplete)
			r.Post("/streak/freeze", s.handleFreeze)
			r.Get("/streak/days", s.handleCompletionDays)
			r.Get("/title", s.handleUserTitle)
			r.Post("/xp", s.handleAwardXP)
			r.Get("/xp/events", s.handleXPEvents)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}

	checks := s.health.CheckNow(r.Context())
	status, code := "ok", http.StatusOK
	for _, c := range checks {
		if !c.Healthy {
			status, code = "unavailable", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// today returns the current calendar day in the server's timezone.
func (s *Server) today() domain.Date {
	return domain.DateOf(s.now().In(s.loc))
}

// dayParam parses an optional YYYY-MM-DD value, defaulting to today.
func (s *Server) dayParam(raw string) (domain.Date, error) {
	if raw == "" {
		return s.today(), nil
	}
	return domain.ParseDate(raw)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// apiError is the body of every error response.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errType, msg, reason string) {
	writeJSON(w, status, map[string]apiError{
		"error": {Message: msg, Type: errType, Reason: reason},
	})
}

// requestLogger logs every request with zap and records its latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(elapsed.Seconds())

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
