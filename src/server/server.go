package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/querycache"
	"trading-console/src/stream"
	"trading-console/src/timeseries"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// StreamControl is the part of the stream client the server drives
type StreamControl interface {
	Connect()
	Disconnect()
	Status() stream.Status
}

// BackendActions are the mutating REST calls proxied to the bot backend
type BackendActions interface {
	StartBot(ctx context.Context) error
	StopBot(ctx context.Context) error
	ApproveSignal(ctx context.Context, id, comment string) error
	RejectSignal(ctx context.Context, id, comment string) error
	UpdateSettings(ctx context.Context, s models.MRiskSettings) error
}

// -----------------------------------------------------------------------------
// ConsoleServer
// -----------------------------------------------------------------------------

// ConsoleServer serves the console state over REST and pushes stream traffic to websocket clients
type ConsoleServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server

	stream  StreamControl
	store   *timeseries.Store
	cache   *querycache.Cache
	backend BackendActions

	// WebSocket clients, owned by the hub loop
	clients    map[*Client]struct{}
	broadcast  chan *models.MHubMessage
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage
	done       chan struct{}
	hubOnce    sync.Once
	stopOnce   sync.Once

	connMu      sync.RWMutex
	connections int
	lastUpdate  int64
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

// NewConsoleServer wires the routes. cache and backend may be nil (demo mode); the routes
// that need them then answer 503.
func NewConsoleServer(cfg *models.MConfig, log *logger.Logger, sc StreamControl, store *timeseries.Store, cache *querycache.Cache, backend BackendActions) *ConsoleServer {
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &ConsoleServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.New(),
		stream:     sc,
		store:      store,
		cache:      cache,
		backend:    backend,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *models.MHubMessage, hubQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	// CORS for local UIs
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *ConsoleServer) setupRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/status", s.getStatus)
		api.GET("/config", s.getConfig)
		api.POST("/stream/:action", s.postStreamAction)

		api.GET("/series", s.getSeries)
		api.GET("/candles/:instrument/:tf", s.getCandles)
		api.GET("/stats/:instrument/:tf", s.getStats)

		api.GET("/query/:key", s.getQuery)
		api.POST("/bot/:action", s.postBotAction)
		api.POST("/signals/:id/:action", s.postSignalAction)
		api.PUT("/settings", s.putSettings)
	}

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests
func (s *ConsoleServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves until Stop. It returns nil after a clean shutdown.
func (s *ConsoleServer) Start() error {
	s.Logger.Info("Starting console server on %s", s.http.Addr)

	s.startHub()
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and closes every websocket client
func (s *ConsoleServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.http.Shutdown(ctx)
		close(s.done)
	})
	return err
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" {
			return
		}
		s.Logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
