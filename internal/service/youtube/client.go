// Package youtube wraps the YouTube Data API v3 for video, comment, and
// channel lookups.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/uhafan/stream-dashboard-go/internal/models"
)

// Sentinel errors so callers can distinguish a dead video from a flaky
// upstream.
var (
	ErrNotFound    = errors.New("youtube: video not found")
	ErrRateLimited = errors.New("youtube: quota exceeded")
	ErrTransient   = errors.New("youtube: transient upstream error")
)

// Quota costs per operation, from the API documentation.
const (
	costVideosList         = 1
	costCommentThreadsList = 1
	costChannelsList       = 1
	costSearchList         = 100
)

// Client wraps the YouTube Data API v3 client. Once the estimated quota
// spend reaches dailyQuota, every call short-circuits with ErrRateLimited
// so callers fall back to cached records for the rest of the window.
type Client struct {
	service    *youtube.Service
	channelID  string
	dailyQuota int64 // 0 disables the threshold
	quotaUsed  atomic.Int64
}

// NewClient creates a new YouTube API client.
func NewClient(ctx context.Context, apiKey, channelID string, dailyQuota int64, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{service: service, channelID: channelID, dailyQuota: dailyQuota}, nil
}

// QuotaUsed reports the estimated quota units spent since startup.
func (c *Client) QuotaUsed() int64 {
	return c.quotaUsed.Load()
}

func (c *Client) quotaExceeded() bool {
	return c.dailyQuota > 0 && c.quotaUsed.Load() >= c.dailyQuota
}

// FetchVideo retrieves metadata for a single video.
func (c *Client) FetchVideo(ctx context.Context, videoID string) (*models.Stream, error) {
	if c.quotaExceeded() {
		return nil, ErrRateLimited
	}

	call := c.service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoID).
		Context(ctx)

	resp, err := call.Do()
	c.quotaUsed.Add(costVideosList)
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	return mapVideo(resp.Items[0]), nil
}

// FetchComments retrieves up to maxResults top-level comments for a video,
// ordered by relevance. Videos with comments disabled yield an empty slice.
func (c *Client) FetchComments(ctx context.Context, videoID string, maxResults int64) ([]string, error) {
	if c.quotaExceeded() {
		return nil, ErrRateLimited
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	call := c.service.CommentThreads.
		List([]string{"snippet"}).
		VideoId(videoID).
		Order("relevance").
		MaxResults(maxResults).
		TextFormat("plainText").
		Context(ctx)

	resp, err := call.Do()
	c.quotaUsed.Add(costCommentThreadsList)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 403 && !isQuotaError(apiErr) {
			// Comments disabled on the video.
			return nil, nil
		}
		return nil, mapAPIError(err)
	}

	comments := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil || item.Snippet.TopLevelComment == nil ||
			item.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		comments = append(comments, item.Snippet.TopLevelComment.Snippet.TextDisplay)
	}
	return comments, nil
}

// FetchChannel retrieves the channel card for the configured channel.
func (c *Client) FetchChannel(ctx context.Context) (*models.ChannelInfo, error) {
	if c.channelID == "" {
		return nil, fmt.Errorf("channel ID not configured")
	}
	if c.quotaExceeded() {
		return nil, ErrRateLimited
	}

	call := c.service.Channels.
		List([]string{"snippet", "statistics"}).
		Id(c.channelID).
		Context(ctx)

	resp, err := call.Do()
	c.quotaUsed.Add(costChannelsList)
	if err != nil {
		return nil, mapAPIError(err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrNotFound
	}

	ch := resp.Items[0]
	info := &models.ChannelInfo{ChannelID: ch.Id}
	if ch.Snippet != nil {
		info.ChannelName = ch.Snippet.Title
		info.Description = ch.Snippet.Description
		info.CustomURL = ch.Snippet.CustomUrl
		info.PublishedAt = ch.Snippet.PublishedAt
		info.Country = ch.Snippet.Country
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.High != nil {
			info.ThumbnailURL = ch.Snippet.Thumbnails.High.Url
		}
	}
	if ch.Statistics != nil {
		info.SubscriberCount = ch.Statistics.SubscriberCount
		info.VideoCount = ch.Statistics.VideoCount
		info.ViewCount = ch.Statistics.ViewCount
	}
	return info, nil
}

// RecentVideos lists the channel's latest uploads for the channel card.
func (c *Client) RecentVideos(ctx context.Context, maxResults int64) ([]models.VideoCard, error) {
	if c.channelID == "" {
		return nil, fmt.Errorf("channel ID not configured")
	}
	if c.quotaExceeded() {
		return nil, ErrRateLimited
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	call := c.service.Search.
		List([]string{"snippet"}).
		ChannelId(c.channelID).
		Order("date").
		Type("video").
		MaxResults(maxResults).
		Context(ctx)

	resp, err := call.Do()
	c.quotaUsed.Add(costSearchList)
	if err != nil {
		return nil, mapAPIError(err)
	}

	cards := make([]models.VideoCard, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		card := models.VideoCard{
			Title:    item.Snippet.Title,
			VideoURL: "https://www.youtube.com/watch?v=" + item.Id.VideoId,
		}
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Medium != nil {
			card.ThumbnailURL = item.Snippet.Thumbnails.Medium.Url
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func mapVideo(video *youtube.Video) *models.Stream {
	rec := &models.Stream{VideoID: video.Id}

	if video.Snippet != nil {
		rec.Title = strPtr(video.Snippet.Title)
		if url := pickThumbnail(video.Snippet.Thumbnails); url != "" {
			rec.Thumbnail = strPtr(url)
		}
		// Keep at most five tags; listings carry dozens.
		if len(video.Snippet.Tags) > 5 {
			rec.Tags = video.Snippet.Tags[:5]
		} else {
			rec.Tags = video.Snippet.Tags
		}
	}

	if video.ContentDetails != nil && video.ContentDetails.Duration != "" {
		rec.Duration = strPtr(video.ContentDetails.Duration)
	}

	if video.Statistics != nil {
		rec.ViewCount = i64Ptr(int64(video.Statistics.ViewCount))
		rec.LikeCount = i64Ptr(int64(video.Statistics.LikeCount))
		rec.CommentCount = i64Ptr(int64(video.Statistics.CommentCount))
	}

	return rec
}

// pickThumbnail prefers the largest rendition available.
func pickThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*youtube.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}

func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	switch {
	case apiErr.Code == 404:
		return ErrNotFound
	case isQuotaError(apiErr):
		return ErrRateLimited
	case apiErr.Code >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, apiErr.Code)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, apiErr)
	}
}

func isQuotaError(apiErr *googleapi.Error) bool {
	if apiErr.Code == 429 {
		return true
	}
	if apiErr.Code != 403 {
		return false
	}
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/(?:live|shorts|embed)/([0-9A-Za-z_-]{11})`),
}

// ExtractVideoID pulls the 11-character video id out of any of the URL
// shapes the link repository has used over the years.
func ExtractVideoID(url string) (string, bool) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var durationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseDuration converts an ISO-8601 video duration (PT1H30M5S) to a
// time.Duration. Returns false for anything it cannot parse.
func ParseDuration(iso string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(iso)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}

	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		d += time.Duration(min) * time.Minute
	}
	if m[3] != "" {
		s, _ := strconv.Atoi(m[3])
		d += time.Duration(s) * time.Second
	}
	return d, true
}

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }
