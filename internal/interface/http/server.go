// Package http serves the worker's operator surface: health checks,
// Prometheus metrics, read-only progression queries and a small admin API.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/skill-progression/internal/application/command"
	"github.com/alem-hub/skill-progression/internal/application/query"
	"github.com/alem-hub/skill-progression/internal/domain/progression"
	"github.com/alem-hub/skill-progression/internal/infrastructure/persistence/projections"
	"github.com/alem-hub/skill-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/skill-progression/internal/interface/http/handlers"
	"github.com/alem-hub/skill-progression/pkg/logger"
	"github.com/alem-hub/skill-progression/pkg/ratelimit"
	"github.com/alem-hub/skill-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AdminToken guards the /admin and write endpoints. Empty disables them.
	AdminToken string

	// WriteRate limits guarded requests per client IP. Zero Rate disables it.
	WriteRate ratelimit.Config

	// Version is reported by the health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		WriteRate:    ratelimit.DefaultConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SpecialistRanking is satisfied by projections.ProgressionView.
type SpecialistRanking interface {
	TopSpecialists(group string, limit int) []projections.SpecialistEntry
	Groups() []string
}

// JobRunner is satisfied by *scheduler.Scheduler.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, jobName string) (scheduler.JobResult, error)
}

// Dependencies contains everything the routes call into. Nil handlers turn
// their routes into 501 responses.
type Dependencies struct {
	// Read side
	AnalyzeActor   *query.AnalyzeActorHandler
	GetMultipliers *query.GetMultipliersHandler
	GetWeights     *query.GetWeightsHandler
	AggregateXP    *query.AggregateXPHandler
	Projection     progression.Projection
	Specialists    SpecialistRanking

	// Write side
	GrantXP        *command.GrantXPHandler
	SetXP          *command.SetXPHandler
	ResetActor     *command.ResetActorHandler
	ReloadTaxonomy *command.ReloadTaxonomyHandler
	Jobs           JobRunner

	Health  *handlers.HealthChecker
	Metrics prometheus.Gatherer
	Logger  *logger.Logger
	Clock   timeutil.Clock
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger
	now        timeutil.Clock
	limiter    *ratelimit.Limiter

	mu      sync.RWMutex
	running bool
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
		now:    deps.Clock,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.now == nil {
		s.now = timeutil.UTC
	}
	s.limiter = ratelimit.New(config.WriteRate)
	if s.deps.Health == nil {
		s.deps.Health = handlers.NewHealthChecker(config.Version, s.now)
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped in middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// Health checks
	s.router.HandleFunc("GET /healthz", s.handleLive)
	s.router.HandleFunc("GET /readyz", s.handleReady)
	if s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics, promhttp.HandlerOpts{}))
	}

	// Read API
	s.router.HandleFunc("GET /api/v1/actors/{id}/analysis", s.handleAnalysis)
	s.router.HandleFunc("GET /api/v1/actors/{id}/multipliers", s.handleMultipliers)
	s.router.HandleFunc("GET /api/v1/actors/{id}/weights", s.handleWeights)
	s.router.HandleFunc("GET /api/v1/actors/{id}/aggregate", s.handleAggregate)
	s.router.HandleFunc("GET /api/v1/actors/{id}/projection", s.handleProjection)
	s.router.HandleFunc("GET /api/v1/specialists", s.handleSpecialistGroups)
	s.router.HandleFunc("GET /api/v1/specialists/{group}", s.handleSpecialists)

	// Write and admin API
	s.router.Handle("POST /api/v1/actors/{id}/grants", s.admin(s.handleGrant))
	s.router.Handle("PUT /api/v1/actors/{id}/skills/{skill}", s.admin(s.handleSetXP))
	s.router.Handle("DELETE /api/v1/actors/{id}", s.admin(s.handleReset))
	s.router.Handle("POST /admin/taxonomy/reload", s.admin(s.handleReloadTaxonomy))
	s.router.Handle("GET /admin/jobs", s.admin(s.handleListJobs))
	s.router.Handle("POST /admin/jobs/{name}/run", s.admin(s.handleRunJob))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// Health checks and scrapes would drown the log.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.WithRequestID(requestID(r.Context())).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithRequestID(requestID(r.Context())).Error("panic recovered",
					logger.F("panic", fmt.Sprint(rec)),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// admin guards a route with the bearer admin token and the per-IP write limit.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := s.limiter.Allow(clientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if s.config.AdminToken == "" {
			writeJSONError(w, r, http.StatusForbidden, "admin_disabled", "admin API is not configured")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
			return
		}
		next(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// StartAsync starts serving in a goroutine. The channel receives the error
// that stopped the server, if any, and is then closed.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		errCh <- fmt.Errorf("http: listen %s: %w", s.config.Addr, err)
		close(errCh)
		return errCh
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("http server started", logger.String("addr", ln.Addr().String()))

	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Error:     &APIError{Code: code, Message: message},
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
