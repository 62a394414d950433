package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/internal/service/lmstudio"
	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
)

const defaultMaxVideosToAnalyze = 20

// SummarizeYear produces an AI summary of a year's streaming activity,
// optionally backed by per-video engagement analysis.
func (s *Service) SummarizeYear(ctx context.Context, req *models.YearSummaryRequest) (*models.YearSummaryResponse, error) {
	if req.Year < minYear || req.Year > maxYear {
		return nil, &ValidationError{Message: fmt.Sprintf("year %d out of range", req.Year)}
	}

	entries, err := s.links.FetchYear(ctx, req.Year)
	if err != nil {
		return nil, &UpstreamUnavailableError{Upstream: "link repository", Cause: err}
	}

	if req.DateFilter != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if strings.HasPrefix(entry.Date, req.DateFilter) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if len(entries) == 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("%d년 라이브 스트림 데이터가 없습니다", req.Year)}
	}

	resp := &models.YearSummaryResponse{
		Entries:      entries,
		TotalStreams: len(entries),
	}

	if req.IncludeDetailedAnalysis {
		maxVideos := req.MaxVideosToAnalyze
		if maxVideos <= 0 {
			maxVideos = defaultMaxVideosToAnalyze
		}
		resp.CommonKeywords, resp.Engagement = s.analyzeVideos(ctx, entries, maxVideos)
	}

	summary := s.yearSummary(ctx, req.Year, entries, resp.CommonKeywords, resp.Engagement)
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summary generation produced no output for %d", req.Year)
	}
	resp.Summary = strings.TrimSpace(summary)

	return resp, nil
}

// analyzeVideos fetches up to maxVideos records and aggregates engagement
// counts and common keywords. Individual fetch failures are skipped.
func (s *Service) analyzeVideos(ctx context.Context, entries []models.StreamEntry, maxVideos int) ([]string, *models.EngagementStats) {
	if s.fetcher == nil {
		return nil, nil
	}
	if maxVideos > len(entries) {
		maxVideos = len(entries)
	}

	analyzed := make([]*models.Stream, maxVideos)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range maxVideos {
		g.Go(func() error {
			videoID, ok := youtube.ExtractVideoID(entries[i].URL)
			if !ok {
				return nil
			}

			rec := &models.Stream{VideoID: videoID, URL: entries[i].URL, Date: entries[i].Date}
			if cached := s.cachedRecord(gctx, videoID); cached != nil && cached.HasBase() &&
				cached.IsFresh(s.now(), cache.FreshWindow) {
				merge(rec, cached)
			} else if !s.fetchBase(gctx, rec, nil) {
				return nil
			}
			analyzed[i] = rec
			return nil
		})
	}
	_ = g.Wait()

	stats := &models.EngagementStats{}
	var analyzedCount int64
	var keywordText strings.Builder

	for _, rec := range analyzed {
		if rec == nil || !rec.HasBase() {
			continue
		}
		analyzedCount++
		if rec.ViewCount != nil {
			stats.TotalViews += *rec.ViewCount
		}
		if rec.LikeCount != nil {
			stats.TotalLikes += *rec.LikeCount
		}
		if rec.CommentCount != nil {
			stats.TotalComments += *rec.CommentCount
		}
		keywordText.WriteString(*rec.Title)
		keywordText.WriteString(" ")
		keywordText.WriteString(strings.Join(rec.Tags, " "))
		keywordText.WriteString(" ")
	}

	if analyzedCount == 0 {
		return nil, nil
	}
	stats.AverageViews = stats.TotalViews / analyzedCount

	return ExtractKeywords(keywordText.String(), 10), stats
}

// yearSummary asks the LLM for the year overview and falls back to a
// statistical Korean summary when the model is down or drifts into
// English.
func (s *Service) yearSummary(ctx context.Context, year int, entries []models.StreamEntry, keywords []string, stats *models.EngagementStats) string {
	if s.annotator == nil {
		return statisticalSummary(year, entries, stats)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	summary, err := s.annotator.Complete(callCtx, yearSummaryPrompt(year, entries, keywords, stats), lmstudio.Option{})
	if err != nil {
		s.log.Warn("year summary failed, using statistical fallback",
			zap.Int("year", year), zap.Error(err))
		return statisticalSummary(year, entries, stats)
	}

	if degenerateSummary(summary) {
		return statisticalSummary(year, entries, stats)
	}
	return summary
}

// degenerateSummary detects model output that ignored the Korean-only
// instruction or collapsed to nothing.
func degenerateSummary(summary string) bool {
	trimmed := strings.TrimSpace(summary)
	if len([]rune(trimmed)) < 10 {
		return true
	}
	for _, marker := range []string{"Okay", "Let me", "Based on", "The stream"} {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return false
}

func statisticalSummary(year int, entries []models.StreamEntry, stats *models.EngagementStats) string {
	if len(entries) == 0 {
		return fmt.Sprintf("%d년에는 라이브 스트림 기록이 없습니다.", year)
	}

	first := entries[0].Date
	last := entries[len(entries)-1].Date

	summary := fmt.Sprintf(
		"%d년에 총 %d회의 라이브 스트림이 진행되었습니다. 활동 기간은 %s부터 %s까지이며, 꾸준한 방송 활동을 보여주었습니다.",
		year, len(entries), first, last)

	if stats != nil {
		summary += fmt.Sprintf(
			" 분석된 영상들의 평균 조회수는 %d회이며, 총 %d개의 좋아요를 받았습니다.",
			stats.AverageViews, stats.TotalLikes)
	}
	return summary
}

func yearSummaryPrompt(year int, entries []models.StreamEntry, keywords []string, stats *models.EngagementStats) string {
	limit := len(entries)
	if limit > 20 {
		limit = 20
	}
	dates := make([]string, limit)
	for i := range limit {
		dates[i] = entries[i].Date
	}

	additional := ""
	if stats != nil {
		additional = fmt.Sprintf(`

추가 분석 데이터:
- 총 조회수: %d회
- 총 좋아요: %d개
- 주요 키워드: %s
`, stats.TotalViews, stats.TotalLikes, strings.Join(keywords, ", "))
	}

	return fmt.Sprintf(`
%d년에 총 %d회의 라이브 스트림이 진행되었습니다. 주요 날짜는 %s 등입니다.
%s
이 데이터를 바탕으로 다음을 한국어로 3-4문장으로 요약해주세요:
1. 월별 활동량과 패턴
2. 가장 활발했던 시기
3. 전체적인 스트리밍 특징
4. 시청자 반응 및 참여도 (데이터가 있는 경우)

답변은 한국어로만 작성하고 구체적인 수치를 포함해주세요.
`, year, len(entries), strings.Join(dates, ", "), additional)
}

// SummarizeText summarizes arbitrary text through the LLM.
func (s *Service) SummarizeText(ctx context.Context, req *models.SummaryRequest) (*models.SummaryResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, &ValidationError{Message: "content is required"}
	}
	if s.annotator == nil {
		return nil, &UpstreamUnavailableError{Upstream: "lm studio", Cause: fmt.Errorf("annotator not configured")}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	prompt := fmt.Sprintf("다음 내용을 한국어로 간결하게 요약해주세요:\n\n%s\n\n요약:", req.Content)
	summary, err := s.annotator.Complete(callCtx, prompt, lmstudio.Option{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, &UpstreamUnavailableError{Upstream: "lm studio", Cause: err}
	}

	return &models.SummaryResponse{
		Summary:        summary,
		OriginalLength: len([]rune(req.Content)),
		SummaryLength:  len([]rune(summary)),
	}, nil
}

// CacheStats exposes the cache state for the admin endpoint.
func (s *Service) CacheStats(ctx context.Context) (*models.CacheStats, error) {
	return s.store.Stats(ctx)
}

// PurgeExpired removes entries past the expiry window. Idempotent; a
// second call finds nothing to remove.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	ids, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.store.Purge(ctx, ids)
}
