// Package enrich orchestrates page assembly: resolve a year's stream list,
// consult the cache, fetch and annotate misses, and paginate.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
	"github.com/uhafan/stream-dashboard-go/internal/metrics"
	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/internal/service/lmstudio"
	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// Year sanity bounds. The link repository fetch is the authoritative
// membership test; this only rejects obvious nonsense before any I/O.
const (
	minYear = 2000
	maxYear = 2100
)

const (
	maxCommentsPerVideo = 20
	maxKeywordsPerVideo = 10
)

// LinkSource resolves a year to its ordered stream entries.
type LinkSource interface {
	FetchYear(ctx context.Context, year int) ([]models.StreamEntry, error)
}

// RecordFetcher retrieves base attributes and comments for a video.
type RecordFetcher interface {
	FetchVideo(ctx context.Context, videoID string) (*models.Stream, error)
	FetchComments(ctx context.Context, videoID string, maxResults int64) ([]string, error)
}

// Annotator generates summaries and sentiment verdicts.
type Annotator interface {
	Complete(ctx context.Context, prompt string, opt lmstudio.Option) (string, error)
	AnalyzeSentiment(ctx context.Context, text string) lmstudio.Sentiment
}

// JobPublisher enqueues asynchronous annotation refresh jobs.
type JobPublisher interface {
	PublishAnnotationJob(ctx context.Context, videoID, mode string) (string, error)
}

// Options tunes the orchestrator.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Options struct {
	Concurrency int           // bounded fan-out per page, default 5
	CallTimeout time.Duration // per external call, default 20s
	PageTimeout time.Duration // whole page assembly, default 2m
	ServeStale  bool          // serve expired cache entries when refetch fails
}

// Service is the enrichment orchestrator.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Service struct {
	store     cache.Store
	links     LinkSource
	fetcher   RecordFetcher
	annotator Annotator
	jobs      JobPublisher // nil means refresh runs synchronously
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

// New creates the orchestrator. fetcher, annotator, and jobs may be nil;
// the corresponding enrichment steps are then skipped.
func New(store cache.Store, links LinkSource, fetcher RecordFetcher, annotator Annotator, jobs JobPublisher, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 20 * time.Second
	}
	if opts.PageTimeout == 0 {
		opts.PageTimeout = 2 * time.Minute
	}

	return &Service{
		store:     store,
		links:     links,
		fetcher:   fetcher,
		annotator: annotator,
		jobs:      jobs,
		opts:      opts,
		log:       logger.Named("enrich"),
		now:       time.Now,
	}
}

// GetPage assembles one page of a year's streams. Individual record
// failures degrade to identity-only rows; only an unreachable link
// repository fails the whole page.
func (s *Service) GetPage(ctx context.Context, req *models.PaginatedStreamsRequest) (*models.PaginatedStreamsResponse, error) {
	if req.Year < minYear || req.Year > maxYear {
		return nil, &ValidationError{Message: fmt.Sprintf("year %d out of range", req.Year)}
	}
	if req.Page < 1 {
		return nil, &ValidationError{Message: "page must be >= 1"}
	}
	if req.PerPage < 1 || req.PerPage > 100 {
		return nil, &ValidationError{Message: "per_page must be between 1 and 100"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.PageTimeout)
	defer cancel()

	start := s.now()
	entries, err := s.links.FetchYear(ctx, req.Year)
	if err != nil {
		return nil, &UpstreamUnavailableError{Upstream: "link repository", Cause: err}
	}

	records := toRecords(entries)
	sortRecords(records)

	total := len(records)
	totalPages := (total + req.PerPage - 1) / req.PerPage

	lo := (req.Page - 1) * req.PerPage
	hi := lo + req.PerPage
	if lo > total {
		lo = total
	}
	if hi > total {
		hi = total
	}
	page := records[lo:hi]

	if req.IncludeDetails {
		s.enrichPage(ctx, page, req.RefreshAnnotations)
		// Completion order is irrelevant; re-sort for determinism.
		sortRecords(page)
	}

	metrics.PageAssemblyDuration.Observe(s.now().Sub(start).Seconds())

	return &models.PaginatedStreamsResponse{
		Streams:      page,
		TotalStreams: total,
		CurrentPage:  req.Page,
		TotalPages:   totalPages,
		PerPage:      req.PerPage,
	}, nil
}

func toRecords(entries []models.StreamEntry) []models.Stream {
	records := make([]models.Stream, 0, len(entries))
	for _, entry := range entries {
		rec := models.Stream{URL: entry.URL, Date: entry.Date}
		if id, ok := youtube.ExtractVideoID(entry.URL); ok {
			rec.VideoID = id
		} else {
			// Non-video links keep the URL as their identity and are
			// never enriched.
			rec.VideoID = entry.URL
		}
		records = append(records, rec)
	}
	return records
}

func sortRecords(records []models.Stream) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].VideoID < records[j].VideoID
	})
}

// enrichPage fills base and annotation fields for every record in the
// slice, bounded fan-out. Workers never return errors; a failed record is
// left base-only or identity-only.
func (s *Service) enrichPage(ctx context.Context, page []models.Stream, refresh bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i := range page {
		g.Go(func() error {
			s.enrichRecord(gctx, &page[i], refresh)
			return nil
		})
	}

	// Workers only fail via context cancellation, which they swallow.
	_ = g.Wait()
}

func (s *Service) enrichRecord(ctx context.Context, rec *models.Stream, refresh bool) {
	if _, ok := youtube.ExtractVideoID(rec.URL); !ok {
		return
	}
	if ctx.Err() != nil {
		return
	}

	cached := s.cachedRecord(ctx, rec.VideoID)

	if refresh && s.jobs != nil {
		if _, err := s.jobs.PublishAnnotationJob(ctx, rec.VideoID, "refresh"); err != nil {
			s.log.Warn("enqueue annotation refresh failed",
				zap.String("video_id", rec.VideoID), zap.Error(err))
		}
	}

	now := s.now()
	if cached != nil && cached.HasBase() && cached.IsFresh(now, cache.FreshWindow) {
		merge(rec, cached)
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
		if !s.fetchBase(ctx, rec, cached) {
			return
		}
	}

	syncRefresh := refresh && s.jobs == nil
	if rec.AnnotatedAt == nil || syncRefresh {
		s.annotate(ctx, rec)
	}
}

// serveStale falls back to the stale cached copy when a base fetch is not
// possible. Reports whether the record ended up with base attributes.
func (s *Service) serveStale(rec *models.Stream, stale *models.Stream) bool {
	if stale != nil && s.opts.ServeStale && stale.HasBase() {
		merge(rec, stale)
		return true
	}
	return false
}

func (s *Service) cachedRecord(ctx context.Context, videoID string) *models.Stream {
	cached, err := s.store.Get(ctx, videoID)
	if err != nil {
		// Cache trouble degrades to a miss; the fetch path still works.
		s.log.Warn("cache read failed", zap.String("video_id", videoID), zap.Error(err))
		return nil
	}
	return cached
}

// fetchBase pulls base attributes from the record fetcher and caches them.
// Returns false when the record ends up without base attributes. A missing
// fetcher counts as a failed fetch, so the stale copy is still served.
func (s *Service) fetchBase(ctx context.Context, rec *models.Stream, stale *models.Stream) bool {
	if s.fetcher == nil {
		return s.serveStale(rec, stale)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	start := s.now()
	fetched, err := s.fetcher.FetchVideo(callCtx, rec.VideoID)
	metrics.FetchDuration.Observe(s.now().Sub(start).Seconds())
	if err != nil {
		metrics.FetchErrors.Inc()
		s.log.Warn("video fetch failed", zap.String("video_id", rec.VideoID), zap.Error(err))
		return s.serveStale(rec, stale)
	}

	now := s.now()
	rec.Title = fetched.Title
	rec.Thumbnail = fetched.Thumbnail
	rec.ViewCount = fetched.ViewCount
	rec.LikeCount = fetched.LikeCount
	rec.CommentCount = fetched.CommentCount
	rec.Duration = fetched.Duration
	rec.Tags = fetched.Tags
	rec.FetchedAt = &now

	title := ""
	if rec.Title != nil {
		title = *rec.Title
	}
	keywordText := title + " " + strings.Join(rec.Tags, " ")
	rec.Keywords = ExtractKeywords(keywordText, maxKeywordsPerVideo)

	// Keep whatever annotations the stale entry had; a base refresh must
	// not drop them from the response.
	if stale != nil && stale.HasAnnotations() {
		rec.AISummary = stale.AISummary
		rec.Highlights = stale.Highlights
		rec.Sentiment = stale.Sentiment
		rec.EngagementScore = stale.EngagementScore
		rec.Category = stale.Category
		rec.AnnotatedAt = stale.AnnotatedAt
	}

	if err := s.store.Put(ctx, rec); err != nil {
		s.log.Warn("cache write failed", zap.String("video_id", rec.VideoID), zap.Error(err))
	}
	return true
}

// annotate generates AI fields for a record that already has base
// attributes. Failure leaves the annotation fields unset.
func (s *Service) annotate(ctx context.Context, rec *models.Stream) {
	if s.annotator == nil || !rec.HasBase() {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var comments []string
	if s.fetcher != nil {
		var err error
		comments, err = s.fetcher.FetchComments(callCtx, rec.VideoID, maxCommentsPerVideo)
		if err != nil {
			s.log.Debug("comment fetch failed", zap.String("video_id", rec.VideoID), zap.Error(err))
		}
	}

	title := *rec.Title
	summary, err := s.annotator.Complete(callCtx, streamSummaryPrompt(title, rec.Tags, rec.Keywords, comments),
		lmstudio.Option{})
	metrics.AnnotationCalls.Inc()
	if err != nil {
		metrics.AnnotationErrors.Inc()
		s.log.Warn("annotation failed", zap.String("video_id", rec.VideoID), zap.Error(err))
		return
	}

	sentiment := s.annotator.AnalyzeSentiment(callCtx, title+" "+summary).String()
	category := Categorize(title, rec.Tags, rec.Keywords)
	highlights := ExtractHighlights(comments, title)

	var score float64
	if rec.ViewCount != nil {
		var likes, cmts int64
		if rec.LikeCount != nil {
			likes = *rec.LikeCount
		}
		if rec.CommentCount != nil {
			cmts = *rec.CommentCount
		}
		durMin := 0
		if rec.Duration != nil {
			durMin = DurationMinutes(*rec.Duration)
		}
		score = EngagementScore(*rec.ViewCount, likes, cmts, durMin)
	}

	now := s.now()
	rec.AISummary = &summary
	rec.Highlights = highlights
	rec.Sentiment = &sentiment
	rec.EngagementScore = &score
	rec.Category = &category
	rec.AnnotatedAt = &now

	// Annotation-only write so the base field group is left alone.
	annotationOnly := &models.Stream{
		VideoID:         rec.VideoID,
		URL:             rec.URL,
		Date:            rec.Date,
		AISummary:       rec.AISummary,
		Highlights:      rec.Highlights,
		Sentiment:       rec.Sentiment,
		EngagementScore: rec.EngagementScore,
		Category:        rec.Category,
		AnnotatedAt:     rec.AnnotatedAt,
	}
	if err := s.store.Put(ctx, annotationOnly); err != nil {
		s.log.Warn("annotation cache write failed", zap.String("video_id", rec.VideoID), zap.Error(err))
	}
}

// AnnotateVideo regenerates annotations for one cached video. Used by the
// queue worker. mode "refresh" regenerates even when annotations exist.
func (s *Service) AnnotateVideo(ctx context.Context, videoID, mode string) error {
	rec, err := s.store.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil || !rec.HasBase() {
		// Nothing to annotate against; fetch base first.
		rec = &models.Stream{VideoID: videoID, URL: "https://www.youtube.com/watch?v=" + videoID}
		if !s.fetchBase(ctx, rec, nil) {
			return fmt.Errorf("video %s has no base attributes", videoID)
		}
	}

	if rec.HasAnnotations() && mode != "refresh" {
		return nil
	}

	s.annotate(ctx, rec)
	if rec.AnnotatedAt == nil {
		return fmt.Errorf("annotation produced no output for %s", videoID)
	}
	return nil
}

// merge copies enrichable fields from a cached record, keeping the
// receiver's identity triple.
func merge(dst *models.Stream, src *models.Stream) {
	dst.Title = src.Title
	dst.Thumbnail = src.Thumbnail
	dst.ViewCount = src.ViewCount
	dst.LikeCount = src.LikeCount
	dst.CommentCount = src.CommentCount
	dst.Duration = src.Duration
	dst.Tags = src.Tags
	dst.Keywords = src.Keywords
	dst.AISummary = src.AISummary
	dst.Highlights = src.Highlights
	dst.Sentiment = src.Sentiment
	dst.EngagementScore = src.EngagementScore
	dst.Category = src.Category
	dst.FetchedAt = src.FetchedAt
	dst.AnnotatedAt = src.AnnotatedAt
	dst.SchemaVersion = src.SchemaVersion
}

func streamSummaryPrompt(title string, tags, keywords, comments []string) string {
	allTags := strings.Join(append(append([]string{}, tags...), keywords...), ", ")
	if allTags == "" {
		allTags = "없음"
	}

	commentsText := "없음"
	if len(comments) > 0 {
		limit := len(comments)
		if limit > 10 {
			limit = 10
		}
		commentsText = strings.Join(comments[:limit], " ")
		if runes := []rune(commentsText); len(runes) > 300 {
			commentsText = string(runes[:300])
		}
	}

	return fmt.Sprintf(`
다음 라이브 스트림 정보를 바탕으로 한국어로 2-3문장의 간결한 요약을 작성해주세요:

제목: %s
주요 태그/키워드: %s
시청자 댓글 요약: %s

요약 조건:
1. 스트림의 주요 내용과 특징을 간결하게 설명
2. 시청자들의 반응이나 하이라이트가 있다면 포함
3. 한국어로만 작성, 2-3문장 이내
4. 구체적이고 흥미로운 내용 위주로 작성

요약:`, title, allTags, commentsText)
}
