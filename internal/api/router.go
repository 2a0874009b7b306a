// Package api exposes the read-only status HTTP surface: health,
// watcher stats, latest listings and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"earnwatch/internal/domain"
	"earnwatch/internal/logger"
	"earnwatch/internal/watcher"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceName          = "earnwatch"
	serviceVersion       = "1.0.0"
)

// StatusStore provides persisted listing data for the API.
type StatusStore interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context) (*domain.StoreStats, error)
	GetLatest(ctx context.Context, limit int) ([]domain.StoredListing, error)
}

// CycleMetrics provides the Redis-backed cycle counters.
type CycleMetrics interface {
	Counters(ctx context.Context) (map[string]int64, error)
	LastCycleAt(ctx context.Context) (*time.Time, error)
}

// Router holds the API dependencies.
type Router struct {
	store       StatusStore
	metrics     CycleMetrics
	state       *watcher.RunState
	redisClient redis.UniversalClient
	logger      logger.Logger
	debug       bool
}

// NewRouter creates a new API router. redisClient may be nil when
// Redis-backed metrics are disabled.
func NewRouter(store StatusStore, metrics CycleMetrics, state *watcher.RunState, redisClient redis.UniversalClient, debug bool, log logger.Logger) *Router {
	return &Router{
		store:       store,
		metrics:     metrics,
		state:       state,
		redisClient: redisClient,
		logger:      log,
		debug:       debug,
	}
}

// SetupRoutes builds the gin engine with all routes registered.
func (r *Router) SetupRoutes() *gin.Engine {
	if !r.debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", r.healthCheck)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	v1.GET("/stats", r.getStats)
	v1.GET("/listings/latest", r.getLatestListings)

	return engine
}

// healthCheck reports service liveness plus dependency connectivity.
// A failing dependency degrades the status but still answers 200 so
// orchestrators can read the detail.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.store.Ping(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	if r.redisClient != nil {
		redisConnected := true
		redisHealth := gin.H{}
		if err := r.redisClient.Ping(ctx).Err(); err != nil {
			redisConnected = false
			redisHealth["error"] = err.Error()
			health["status"] = healthStatusDegraded
		}
		redisHealth["connected"] = redisConnected
		health["redis"] = redisHealth
	}

	c.JSON(http.StatusOK, health)
}
