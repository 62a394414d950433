package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
)

// BrokerProbe reports whether the job broker connection is open.
type BrokerProbe interface {
	IsHealthy() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  cache.Store
	broker BrokerProbe // nil when the queue is not configured
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(store cache.Store, broker BrokerProbe) *HealthHandler {
	return &HealthHandler{
		store:  store,
		broker: broker,
	}
}

// HandleHealth checks the cache backend and, when configured, the broker.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"cache":  "unhealthy",
			"error":  err.Error(),
			"time":   time.Now(),
		})
		return
	}

	body := gin.H{
		"status": "UP",
		"cache":  "healthy",
		"time":   time.Now(),
	}
	if h.broker != nil {
		if !h.broker.IsHealthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "DOWN",
				"cache":    "healthy",
				"rabbitmq": "unhealthy",
				"time":     time.Now(),
			})
			return
		}
		body["rabbitmq"] = "healthy"
	}

	c.JSON(http.StatusOK, body)
}
