package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

const recentVideoCount = 5

// ChannelSource retrieves channel metadata and recent uploads.
type ChannelSource interface {
	FetchChannel(ctx context.Context) (*models.ChannelInfo, error)
	RecentVideos(ctx context.Context, maxResults int64) ([]models.VideoCard, error)
}

// YouTubeHandler serves the channel dashboard card.
type YouTubeHandler struct {
	channels ChannelSource
}

// NewYouTubeHandler creates a new YouTubeHandler instance.
func NewYouTubeHandler(channels ChannelSource) *YouTubeHandler {
	return &YouTubeHandler{channels: channels}
}

// HandleChannelInfo returns the configured channel's metadata plus its
// most recent uploads. A recent-videos failure degrades to an empty list
// rather than failing the card.
func (h *YouTubeHandler) HandleChannelInfo(c *gin.Context) {
	ctx := c.Request.Context()

	info, err := h.channels.FetchChannel(ctx)
	if err != nil {
		h.handleError(c, err)
		return
	}

	recent, err := h.channels.RecentVideos(ctx, recentVideoCount)
	if err != nil {
		logger.Log.Warn("Recent videos fetch failed",
			zap.Error(err),
			zap.String("channelId", info.ChannelID),
		)
		recent = []models.VideoCard{}
	}
	info.RecentVideos = recent

	c.JSON(http.StatusOK, info)
}

func (h *YouTubeHandler) handleError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	label := "Bad Gateway"

	switch {
	case errors.Is(err, youtube.ErrNotFound):
		status = http.StatusNotFound
		label = "Not Found"
	case errors.Is(err, youtube.ErrRateLimited):
		status = http.StatusTooManyRequests
		label = "Too Many Requests"
	}

	logger.Log.Error("Channel info request failed",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
	)
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     label,
		Message:   err.Error(),
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}
