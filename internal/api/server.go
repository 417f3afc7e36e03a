// Package api exposes the HTTP surface: analysis and prediction endpoints,
// learning maintenance operations, metrics, and a WebSocket event feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/database"
	"github.com/mertipekreal/merf-stock-engine/internal/engine"
	"github.com/mertipekreal/merf-stock-engine/internal/learning"
	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
	"github.com/mertipekreal/merf-stock-engine/internal/smc"
)

// RateLimiter caps request rates over a sliding window, keyed by client
// and route. Keys idle for a full window are swept so memory tracks
// active traffic, not every client ever seen.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
}

// NewRateLimiter creates a sliding-window rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:      make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
	}
}

// Allow records a hit for the key and reports whether it stays within
// the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	if now.Sub(rl.lastSweep) > rl.window {
		for k, hits := range rl.hits {
			if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
				delete(rl.hits, k)
			}
		}
		rl.lastSweep = now
	}

	kept := rl.hits[key][:0]
	for _, ts := range rl.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= rl.limit {
		rl.hits[key] = kept
		return false
	}
	rl.hits[key] = append(kept, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	// APIToken guards the mutating and data endpoints. Empty disables the
	// check, which is only sensible for local development.
	APIToken string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	repo        *database.Repository
	service     *engine.Service
	learner     *learning.Engine
	trainer     *engine.Trainer
	candles     marketdata.Provider
	detector    *smc.Detector
	hub         *WSHub
	config      ServerConfig
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	service *engine.Service,
	learner *learning.Engine,
	trainer *engine.Trainer,
	candles marketdata.Provider,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-API-Token"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		repo:        repo,
		service:     service,
		learner:     learner,
		trainer:     trainer,
		candles:     candles,
		detector:    smc.NewDetector(),
		hub:         NewWSHub(),
		config:      config,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	router.Use(server.metricsMiddleware())
	server.setupRoutes()

	go server.hub.Run()

	return server
}

// metricsMiddleware records request durations by route and status.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, fmt.Sprintf("%d", c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// tokenMiddleware enforces the shared-secret header.
func (s *Server) tokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APIToken == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Token") != s.config.APIToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware limits requests per client and endpoint, so one
// busy caller cannot exhaust an endpoint for everyone else.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(c.ClientIP() + " " + path) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	authorized := s.router.Group("/", s.tokenMiddleware(), s.rateLimitMiddleware())
	{
		authorized.POST("/analyze", s.handleAnalyze)
		authorized.POST("/predict", s.handlePredict)
		authorized.GET("/predictions", s.handleListPredictions)
		authorized.GET("/models", s.handleListModels)
		authorized.POST("/models/train", s.handleTrain)
		authorized.GET("/learning/stats", s.handleLearningStats)
		authorized.POST("/learning/process", s.handleProcessLearning)
		authorized.POST("/learning/reset", s.handleResetLearning)
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
