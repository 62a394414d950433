// Package models contains the data models and DTOs for the stream dashboard service.
package models

import (
	"time"
)

// CacheSchemaVersion is stamped on every cached record so future schema
// changes can migrate or discard old rows.
const CacheSchemaVersion = 1

// StreamEntry is one row of the live-link repository listing: a calendar
// date and the stream URL. Membership and ordering for a year come from
// these entries alone.
type StreamEntry struct {
	Date string `json:"date"`
	URL  string `json:"url"`
}

// Stream is one enrichable livestream record. Base fields come from the
// YouTube Data API, annotation fields from the local LLM. Every field past
// the identity triple is optional: a nil pointer means the upstream never
// provided it or the record has not been annotated yet.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Stream struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
	Date    string `json:"date"` // YYYY-MM-DD, used for year partitioning and ordering

	// Base attributes (YouTube Data API)
	Title        *string  `json:"title,omitempty"`
	Thumbnail    *string  `json:"thumbnail,omitempty"`
	ViewCount    *int64   `json:"view_count,omitempty"`
	LikeCount    *int64   `json:"like_count,omitempty"`
	CommentCount *int64   `json:"comment_count,omitempty"`
	Duration     *string  `json:"duration,omitempty"` // ISO-8601, e.g. PT1H30M
	Tags         []string `json:"tags,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`

	// Annotation attributes (LLM)
	AISummary       *string  `json:"ai_summary,omitempty"`
	Highlights      []string `json:"highlights,omitempty"`
	Sentiment       *string  `json:"sentiment,omitempty"`
	EngagementScore *float64 `json:"engagement_score,omitempty"`
	Category        *string  `json:"category,omitempty"`

	// Freshness bookkeeping, not exposed over the API
	FetchedAt     *time.Time `json:"-"`
	AnnotatedAt   *time.Time `json:"-"`
	SchemaVersion int        `json:"-"`
}

// HasBase reports whether the record carries fetched base attributes.
func (s *Stream) HasBase() bool {
	return s.Title != nil
}

// HasAnnotations reports whether the record has been annotated at least once.
func (s *Stream) HasAnnotations() bool {
	return s.AnnotatedAt != nil
}

// IsFresh reports whether the base attributes are within the freshness
// window relative to now. A record that was never fetched is not fresh.
func (s *Stream) IsFresh(now time.Time, window time.Duration) bool {
	if s.FetchedAt == nil {
		return false
	}
	return now.Sub(*s.FetchedAt) < window
}

// PaginatedStreamsRequest asks for one page of a year's streams.
type PaginatedStreamsRequest struct {
	Year               int  `json:"year"`
	Page               int  `json:"page"`
	PerPage            int  `json:"per_page"`
	IncludeDetails     bool `json:"include_details"`
	RefreshAnnotations bool `json:"refresh_annotations"`
}

// PaginatedStreamsResponse is one page plus pagination metadata computed
// from the full year listing, not the slice.
type PaginatedStreamsResponse struct {
	Streams      []Stream `json:"streams"`
	TotalStreams int      `json:"total_streams"`
	CurrentPage  int      `json:"current_page"`
	TotalPages   int      `json:"total_pages"`
	PerPage      int      `json:"per_page"`
}

// YearSummaryRequest asks for an AI-generated summary of a year's streams.
type YearSummaryRequest struct {
	Year                    int    `json:"year"`
	DateFilter              string `json:"date_filter,omitempty"` // YYYY-MM-DD prefix
	IncludeDetailedAnalysis bool   `json:"include_detailed_analysis"`
	MaxVideosToAnalyze      int    `json:"max_videos_to_analyze"`
}

// EngagementStats aggregates view/like/comment counts over the analyzed videos.
type EngagementStats struct {
	TotalViews    int64 `json:"total_views"`
	TotalLikes    int64 `json:"total_likes"`
	TotalComments int64 `json:"total_comments"`
	AverageViews  int64 `json:"average_views"`
}

// YearSummaryResponse carries the generated summary; CommonKeywords and
// EngagementStats are only present when detailed analysis was requested.
type YearSummaryResponse struct {
	Entries        []StreamEntry    `json:"entries"`
	Summary        string           `json:"summary"`
	TotalStreams   int              `json:"total_streams"`
	CommonKeywords []string         `json:"common_keywords,omitempty"`
	Engagement     *EngagementStats `json:"engagement_stats,omitempty"`
}

// SummaryRequest asks for a free-text summary.
type SummaryRequest struct {
	Content     string   `json:"content"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// SummaryResponse is the free-text summary result.
type SummaryResponse struct {
	Summary        string `json:"summary"`
	OriginalLength int    `json:"original_length"`
	SummaryLength  int    `json:"summary_length"`
}

// CacheStats describes the state of the response cache.
type CacheStats struct {
	EntryCount      int64      `json:"entry_count"`
	OldestFetchedAt *time.Time `json:"oldest_fetched_at,omitempty"`
	NewestFetchedAt *time.Time `json:"newest_fetched_at,omitempty"`
}

// VideoCard is a compact recent-video entry on the channel card.
type VideoCard struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	VideoURL     string `json:"video_url"`
}

// ChannelInfo is the channel dashboard card.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ChannelInfo struct {
	ChannelID       string      `json:"channel_id"`
	ChannelName     string      `json:"channel_name"`
	Description     string      `json:"description"`
	CustomURL       string      `json:"custom_url,omitempty"`
	ThumbnailURL    string      `json:"thumbnail_url"`
	PublishedAt     string      `json:"published_at"`
	ViewCount       uint64      `json:"view_count"`
	SubscriberCount uint64      `json:"subscriber_count"`
	VideoCount      uint64      `json:"video_count"`
	Country         string      `json:"country,omitempty"`
	RecentVideos    []VideoCard `json:"recent_videos,omitempty"`
}

// CafeProfile is the scraped forum profile card.
type CafeProfile struct {
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
	Members   string `json:"members"`
}

// CafeArticle is one scraped forum post listing row.
type CafeArticle struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Date   string `json:"date"`
	Link   string `json:"link"`
	Image  string `json:"image,omitempty"`
	Text   string `json:"text,omitempty"`
}

// CafeArticlesResponse wraps one page of forum posts.
type CafeArticlesResponse struct {
	Result []CafeArticle `json:"result"`
	Page   int           `json:"page"`
}

// ErrorResponse is the JSON error envelope for all endpoints.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}
