// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pitrustlab/pitrust/internal/cache"
	"github.com/pitrustlab/pitrust/internal/chain"
	"github.com/pitrustlab/pitrust/internal/config"
	"github.com/pitrustlab/pitrust/internal/health"
	"github.com/pitrustlab/pitrust/internal/logging"
	"github.com/pitrustlab/pitrust/internal/metrics"
	"github.com/pitrustlab/pitrust/internal/payments"
	"github.com/pitrustlab/pitrust/internal/ratelimit"
	"github.com/pitrustlab/pitrust/internal/realtime"
	"github.com/pitrustlab/pitrust/internal/reputation"
	"github.com/pitrustlab/pitrust/internal/security"
	"github.com/pitrustlab/pitrust/internal/traces"
	"github.com/pitrustlab/pitrust/internal/validation"
	"github.com/pitrustlab/pitrust/internal/vip"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	db          *sql.DB // nil if using in-memory stores
	ledger      reputation.LedgerSource
	repService  *reputation.Service
	repStore    reputation.Store
	repWorker   *reputation.Worker
	vipService  *vip.Service
	payService  *payments.Service
	authority   payments.Authority
	hub         *realtime.Hub
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	stopTraces  func(context.Context) error
	cancelRun   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAuthority sets a custom payment authority (for testing)
func WithAuthority(a payments.Authority) Option {
	return func(s *Server) {
		s.authority = a
	}
}

// WithLedgerSource sets a custom blockchain data source (for testing)
func WithLedgerSource(l reputation.LedgerSource) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set logger/authority/ledger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	metrics.Register()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.stopTraces = shutdownTraces
	}

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		vipStore    vip.Store
		payStore    payments.Store
		markerStore payments.MarkerStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.healthReg.Register("database", health.DatabaseChecker("database", db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		repStore := reputation.NewPostgresStore(db, s.logger)
		if err := repStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate reputation store", "error", err)
		}
		s.repStore = repStore

		vipPG := vip.NewPostgresStore(db)
		if err := vipPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate vip store", "error", err)
		}
		vipStore = vipPG

		payPG := payments.NewPostgresStore(db)
		if err := payPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate payments store", "error", err)
		}
		payStore = payPG

		markerPG := payments.NewPostgresMarkerStore(db)
		if err := markerPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate payout markers", "error", err)
		}
		markerStore = markerPG
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.repStore = reputation.NewMemoryStore()
		vipStore = vip.NewMemoryStore()
		payStore = payments.NewMemoryStore()
		markerStore = payments.NewMemoryMarkerStore()
	}

	// Blockchain data source if not injected
	if s.ledger == nil {
		ledgerCache := cache.New(cfg.LedgerCacheTTL)
		s.ledger = chain.NewClient(cfg.HorizonURL, cfg.LedgerTimeout, ledgerCache, s.logger)
		s.logger.Info("ledger client configured", "horizon", cfg.HorizonURL)
	}

	// Realtime hub for WebSocket streaming
	s.hub = realtime.NewHub(s.logger)

	// Reputation service + periodic reconciliation worker
	s.repService = reputation.NewService(s.repStore, s.logger).
		WithReferralAward(cfg.ReferralAwardPoints).
		WithBroadcaster(s.hub)
	s.repWorker = reputation.NewWorker(s.repService, s.repStore, cfg.ReconcileInterval, s.logger)

	// VIP grants
	s.vipService = vip.NewService(vipStore, s.logger)

	// Payments: the Pi platform is the authority unless a stub was injected
	if s.authority == nil {
		s.authority = payments.NewPlatformClient(cfg.PiAPIURL, cfg.PiAPIKey, cfg.LedgerTimeout, s.logger)
	}
	s.payService = payments.NewService(payStore, s.authority, markerStore, s.logger).
		WithVIPGranter(&vipGranterAdapter{svc: s.vipService, hub: s.hub}).
		WithNotifier(s.hub)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: the Pi Browser frontend is served from a different origin
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.GinMiddleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time score streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	recordCache := cache.New(s.cfg.RecordCacheTTL)
	repHandler := reputation.NewHandler(
		s.repService,
		reputation.NewCalculator(),
		s.ledger,
		s.vipService,
		recordCache,
		s.cfg.AdminSecret,
	)
	vipHandler := vip.NewHandler(s.vipService)
	payHandler := payments.NewHandler(s.payService)

	// V1 API group
	v1 := s.router.Group("/v1")
	repHandler.RegisterRoutes(v1)
	vipHandler.RegisterRoutes(v1)
	payHandler.RegisterRoutes(v1)

	// Admin routes require the X-Admin-Secret header
	admin := v1.Group("/admin")
	admin.Use(repHandler.AdminAuth())
	repHandler.RegisterAdminRoutes(admin)
	vipHandler.RegisterAdminRoutes(admin)
	payHandler.RegisterAdminRoutes(admin)

	// Hub stats for dashboards
	s.router.GET("/v1/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "PiTrust",
		"description": "Wallet reputation scoring for the Pi Network",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"reputation": "/v1/reputation/{uid}",
			"checkin":    "POST /v1/reputation/{uid}/checkin",
			"scan":       "POST /v1/reputation/{uid}/scan",
			"report":     "POST /v1/reputation/{uid}/report",
			"vip":        "/v1/vip/{uid}",
			"payments":   "/v1/payments/{id}",
			"realtime":   "/ws",
		},
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start reconciliation worker
	go s.repWorker.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, worker)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.repWorker != nil {
		s.repWorker.Stop()
		s.logger.Info("reconciliation worker stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// vipGranterAdapter adapts vip.Service to payments.VIPGranter and pushes
// grants to live subscribers.
type vipGranterAdapter struct {
	svc *vip.Service
	hub *realtime.Hub
}

func (a *vipGranterAdapter) GrantVIP(ctx context.Context, uid, source string) error {
	grant, err := a.svc.Grant(ctx, uid, source)
	if err != nil {
		return err
	}
	if a.hub != nil {
		a.hub.BroadcastVIPGrant(uid, grant.ExpiresAt)
	}
	return nil
}
