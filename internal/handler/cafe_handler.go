package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// CafeSource scrapes the fan cafe for profile and article data.
type CafeSource interface {
	Profile(ctx context.Context) (*models.CafeProfile, error)
	Articles(ctx context.Context, menuID, page int) (*models.CafeArticlesResponse, error)
}

// CafeHandler proxies Naver Cafe pages.
type CafeHandler struct {
	cafe CafeSource
}

// NewCafeHandler creates a new CafeHandler instance.
func NewCafeHandler(cafe CafeSource) *CafeHandler {
	return &CafeHandler{cafe: cafe}
}

// HandleProfile returns the cafe name, icon, and member count.
func (h *CafeHandler) HandleProfile(c *gin.Context) {
	profile, err := h.cafe.Profile(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// HandleArticles returns one page of a board's article list.
func (h *CafeHandler) HandleArticles(c *gin.Context) {
	menuID, err := strconv.Atoi(c.Param("menuID"))
	if err != nil || menuID < 0 {
		badRequest(c, "menuID must be a non-negative integer")
		return
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		badRequest(c, "page must be a positive integer")
		return
	}

	articles, err := h.cafe.Articles(c.Request.Context(), menuID, page)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, articles)
}

// The cafe endpoints proxy a single upstream, so every scrape failure is
// a gateway error.
func (h *CafeHandler) upstreamError(c *gin.Context, err error) {
	logger.Log.Error("Cafe scrape failed",
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
}
