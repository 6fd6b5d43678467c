// Package http exposes the rewards operations over a JSON API built on gin.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/qaidahub/rewards-core/internal/interface/http/handlers"
	"github.com/qaidahub/rewards-core/pkg/logger"
	"github.com/qaidahub/rewards-core/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	// AllowedOrigins enables CORS for the listed origins; "*" allows any.
	AllowedOrigins []string

	// RateLimitPerMinute is per client IP (0 = disabled).
	RateLimitPerMinute int

	// APIKeyHeader and AdminAPIKeys guard the /admin routes. Without keys
	// the admin routes are not mounted.
	APIKeyHeader string
	AdminAPIKeys []string

	// AdminTokenSecret also admits HS256 operator tokens on /admin.
	AdminTokenSecret string

	// TracingService names the server span of each request. Empty disables
	// request tracing.
	TracingService string

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:               ":8080",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		APIKeyHeader:       "X-API-Key",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the handlers the routes are bound to.
type Dependencies struct {
	Users    *handlers.UserHandler
	Learning *handlers.LearningHandler
	Coins    *handlers.CoinHandler

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates the engine, mounts the routes and prepares the listener.
func NewServer(config Config, deps Dependencies) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.engine.Use(s.recoveryMiddleware())
	if config.TracingService != "" {
		s.engine.Use(otelgin.Middleware(config.TracingService))
	}
	s.engine.Use(
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
		handlers.SecurityHeaders(),
	)
	if len(config.AllowedOrigins) > 0 {
		s.engine.Use(s.corsMiddleware())
	}
	if s.rateLimiter != nil {
		s.engine.Use(s.rateLimitMiddleware())
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.deps.HealthChecker)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/healthz", health.Health)
	s.engine.GET("/ready", health.Ready)
	s.engine.GET("/live", health.Live)

	api := s.engine.Group("/api/v1", handlers.NoStore())
	if s.config.MaxBodyBytes > 0 {
		api.Use(handlers.RequestSizeLimit(s.config.MaxBodyBytes))
	}

	if u := s.deps.Users; u != nil {
		api.POST("/users", u.Register)
		api.GET("/users/:id", u.Get)
		api.POST("/users/:id/login", u.Login)
		api.GET("/users/:id/achievements", u.Achievements)
		api.GET("/users/:id/summary", u.Summary)
	}

	if l := s.deps.Learning; l != nil {
		api.POST("/users/:id/lessons/complete", l.CompleteLesson)
		api.POST("/users/:id/lessons/track", l.TrackLesson)
		api.POST("/users/:id/progress/:progressId/reset", l.ResetLesson)
		api.POST("/users/:id/quizzes", l.SubmitQuiz)
		api.POST("/users/:id/mistakes", l.RecordMistake)
		api.POST("/users/:id/mistakes/:mistakeId/resolve", l.ResolveMistake)
	}

	if c := s.deps.Coins; c != nil {
		api.GET("/users/:id/coins", c.History)
		api.GET("/users/:id/coins/stats", c.Stats)
		api.POST("/users/:id/coins/spend", c.Spend)

		auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.AdminAPIKeys).
			WithTokenSecret(s.config.AdminTokenSecret)
		if auth.Enabled() {
			admin := api.Group("/admin", auth.Middleware())
			admin.POST("/users/:id/coins/adjust", c.Adjust)
			admin.GET("/users/:id/coins/audit", c.Audit)
		} else {
			s.logger.Warn("no admin credentials configured, admin routes disabled")
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, http.StatusNotFound, "not_found", errors.New("route not found"))
	})
}

// Handler returns the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// requestIDMiddleware keeps the caller's X-Request-ID or generates one.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(handlers.RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		reqLog := s.logger.WithRequestID(requestID)
		if traceID := tracing.TraceID(c.Request.Context()); traceID != "" {
			c.Header("X-Trace-ID", traceID)
			reqLog = reqLog.With(logger.String("trace_id", traceID))
		}
		ctx := logger.WithContext(c.Request.Context(), reqLog)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
			logger.String("request_id", c.GetString(handlers.RequestIDKey)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("http request", fields...)
			return
		}
		s.logger.Info("http request", fields...)
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
				)
				handlers.RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:       24 * time.Hour,
	}
	if s.config.APIKeyHeader != "" {
		cfg.AllowHeaders = append(cfg.AllowHeaders, s.config.APIKeyHeader)
	}
	if slices.Contains(s.config.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.AllowedOrigins
	}
	return cors.New(cfg)
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			handlers.RespondError(c, http.StatusTooManyRequests, "rate_limit_exceeded", errors.New("too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel receives a
// listen error, if any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter is a sliding-window counter per key.
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := prune(rl.requests[key], now.Add(-rl.window))
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, requests := range rl.requests {
				if valid := prune(requests, now.Add(-rl.window)); len(valid) == 0 {
					delete(rl.requests, key)
				} else {
					rl.requests[key] = valid
				}
			}
			rl.mu.Unlock()
		}
	}
}

// prune drops timestamps at or before windowStart. Timestamps are appended
// in order, so the survivors are a suffix.
func prune(requests []time.Time, windowStart time.Time) []time.Time {
	for i, t := range requests {
		if t.After(windowStart) {
			return requests[i:]
		}
	}
	return nil
}
