// Package handler provides HTTP request handlers for the application.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/internal/service/enrich"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// HealthProbe reports whether the LLM backend is reachable.
type HealthProbe interface {
	Healthy(ctx context.Context) (bool, string)
}

// LLMHandler handles stream page, summary, and cache admin requests.
type LLMHandler struct {
	service *enrich.Service
	probe   HealthProbe
}

// NewLLMHandler creates a new LLMHandler instance.
func NewLLMHandler(service *enrich.Service, probe HealthProbe) *LLMHandler {
	return &LLMHandler{
		service: service,
		probe:   probe,
	}
}

// HandleStreams returns one page of a year's streams.
func (h *LLMHandler) HandleStreams(c *gin.Context) {
	var req models.PaginatedStreamsRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	logger.Log.Info("Stream page requested",
		zap.Int("year", req.Year),
		zap.Int("page", req.Page),
		zap.Int("perPage", req.PerPage),
		zap.Bool("includeDetails", req.IncludeDetails),
	)

	resp, err := h.service.GetPage(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleSummarizeYear generates the yearly activity summary.
func (h *LLMHandler) HandleSummarizeYear(c *gin.Context) {
	var req models.YearSummaryRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.service.SummarizeYear(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleSummarize summarizes arbitrary text.
func (h *LLMHandler) HandleSummarize(c *gin.Context) {
	var req models.SummaryRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.service.SummarizeText(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleLLMHealth reports LLM reachability. Always 200; the body carries
// the verdict so dashboards can poll it without alert noise.
func (h *LLMHandler) HandleLLMHealth(c *gin.Context) {
	healthy, message := h.probe.Healthy(c.Request.Context())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"message": message,
		"time":    time.Now(),
	})
}

// HandleCacheStats reports cache entry counts and age bounds.
func (h *LLMHandler) HandleCacheStats(c *gin.Context) {
	stats, err := h.service.CacheStats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleCacheClear purges entries past the expiry window. Idempotent.
func (h *LLMHandler) HandleCacheClear(c *gin.Context) {
	purged, err := h.service.PurgeExpired(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	logger.Log.Info("Cache purge completed", zap.Int64("purged", purged))
	c.JSON(http.StatusOK, gin.H{
		"purged": purged,
		"time":   time.Now(),
	})
}

func badRequest(c *gin.Context, message string) {
	logger.Log.Warn("Invalid request payload",
		zap.String("path", c.Request.URL.Path),
		zap.String("message", message),
	)
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:    http.StatusBadRequest,
		Error:     "Bad Request",
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

func handleError(c *gin.Context, err error) {
	switch err.(type) {
	case *enrich.ValidationError:
		logger.Log.Warn("Validation error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:    http.StatusBadRequest,
			Error:     "Bad Request",
			Message:   err.Error(),
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	case *enrich.UpstreamUnavailableError:
		logger.Log.Error("Upstream unavailable",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Status:    http.StatusBadGateway,
			Error:     "Bad Gateway",
			Message:   err.Error(),
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	default:
		logger.Log.Error("Unexpected error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:    http.StatusInternalServerError,
			Error:     "Internal Server Error",
			Message:   "An unexpected error occurred",
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
	}
}
