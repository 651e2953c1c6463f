package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paw-chain/poolcore/config"
	"github.com/paw-chain/poolcore/internal/database"
	"github.com/paw-chain/poolcore/internal/engine"
	"github.com/paw-chain/poolcore/internal/events"
	"github.com/paw-chain/poolcore/internal/types"
	"github.com/paw-chain/poolcore/pkg/logger"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolcore_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poolcore_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolcore_api_active_connections",
		Help: "Number of active WebSocket connections",
	})
)

// Journal is the durable record of committed operations. *database.DB
// implements it; a nil journal disables persistence.
type Journal interface {
	SavePool(ctx context.Context, pool types.Pool) error
	SyncPending(ctx context.Context, account string, balances []types.PendingBalance) error
	InsertReceipt(ctx context.Context, kind, account, pairID string, payload []byte) error
	InsertSettlement(ctx context.Context, key string, receipt types.SettlementReceipt) error
	AccountReceipts(ctx context.Context, account string, limit int) ([]database.ReceiptRecord, error)
	Ping() error
}

// Cache is the read-path snapshot cache. A nil cache disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Server exposes the engine's operation and read boundaries over HTTP.
type Server struct {
	cfg         config.ServerConfig
	engine      *engine.Engine
	journal     Journal
	cache       Cache
	hub         *events.Hub
	auth        *AuthManager
	log         *logger.Logger
	router      *gin.Engine
	server      *http.Server
	limiter     *RateLimiter
	upgrader    websocket.Upgrader
	snapshotTTL time.Duration
}

// NewServer wires the HTTP boundary. journal, cache, hub and auth may be nil
// to disable the corresponding concern.
func NewServer(
	cfg config.ServerConfig,
	eng *engine.Engine,
	journal Journal,
	cache Cache,
	hub *events.Hub,
	auth *AuthManager,
	snapshotTTL time.Duration,
	log *logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		engine:  eng,
		journal: journal,
		cache:   cache,
		hub:     hub,
		auth:    auth,
		log:     log,
		router:  router,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		snapshotTTL: snapshotTTL,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, allowedOrigin := range s.cfg.CORSOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s.router.Use(RateLimitMiddleware(s.limiter))

	// Request logging + metrics
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		s.log.Info("api request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		)

		apiRequestsTotal.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", status)).Inc()
		apiRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
	})

	// Per-request timeout
	s.router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/healthz/ready", s.handleHealthReady)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/pairs", s.handleGetPairs)
		v1.GET("/pairs/:id", s.handleGetPair)
		v1.GET("/accounts/:account/pending", s.handleGetPending)
		v1.GET("/accounts/:account/receipts", s.handleGetReceipts)

		ops := v1.Group("/pairs/:id")
		if s.auth != nil {
			ops.Use(s.auth.Middleware())
		}
		{
			ops.POST("/bootstrap", s.handleBootstrap)
			ops.POST("/swap", s.handleSwap)
			ops.POST("/deposit", s.handleDeposit)
			ops.POST("/withdraw", s.handleWithdraw)
			ops.POST("/settle", s.handleSettle)
		}
	}

	if s.cfg.EnableWebSocket && s.hub != nil {
		s.router.GET("/v1/ws", s.handleWebSocket)
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves requests until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info("starting api server", "address", addr)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping api server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealthReady(c *gin.Context) {
	checks := make(map[string]interface{})
	healthy := true

	if s.journal != nil {
		if err := s.journal.Ping(); err != nil {
			checks["database"] = gin.H{"status": "unhealthy", "message": err.Error()}
			healthy = false
		} else {
			checks["database"] = gin.H{"status": "ok"}
		}
	}

	if s.cache != nil {
		if err := s.cache.Ping(c.Request.Context()); err != nil {
			checks["cache"] = gin.H{"status": "unhealthy", "message": err.Error()}
			healthy = false
		} else {
			checks["cache"] = gin.H{"status": "ok"}
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !healthy {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{"status": status, "checks": checks})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := events.NewClient(s.hub, conn, s.log)
	s.hub.Register(client)

	activeConnections.Inc()

	go client.WritePump()
	go client.ReadPump()
}
