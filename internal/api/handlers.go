package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"earnwatch/internal/logger"
)

const (
	defaultLatestLimit = 10
	maxLatestLimit     = 100
)

// getStats handles GET /api/v1/stats: a combined view of in-process
// run state, persisted store aggregates and cycle counters.
func (r *Router) getStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := r.store.GetStats(ctx)
	if err != nil {
		r.logger.Error("Failed to get store stats",
			logger.Error(err),
			logger.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve statistics",
		})
		return
	}

	resp := gin.H{
		"run":   r.state.Snapshot(),
		"store": stats,
	}

	// Cycle counters are best effort: a Redis outage must not take
	// the stats endpoint down with it.
	if counters, countersErr := r.metrics.Counters(ctx); countersErr != nil {
		r.logger.Warn("Failed to read cycle counters", logger.Error(countersErr))
	} else if counters != nil {
		cycles := gin.H{"counters": counters}
		if lastCycle, lastErr := r.metrics.LastCycleAt(ctx); lastErr == nil && lastCycle != nil {
			cycles["last_cycle_at"] = lastCycle
		}
		resp["cycles"] = cycles
	}

	c.JSON(http.StatusOK, resp)
}

// getLatestListings handles GET /api/v1/listings/latest?limit=N.
func (r *Router) getLatestListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLatestLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLatestLimit
	}
	if limit > maxLatestLimit {
		limit = maxLatestLimit
	}

	listings, err := r.store.GetLatest(c.Request.Context(), limit)
	if err != nil {
		r.logger.Error("Failed to get latest listings",
			logger.Error(err),
			logger.Int("limit", limit),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve listings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}
