package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/uhafan/stream-dashboard-go/internal/cache"
	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/internal/service/enrich"
	"github.com/uhafan/stream-dashboard-go/internal/service/lmstudio"
	"github.com/uhafan/stream-dashboard-go/internal/service/youtube"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	// Initialize logger to prevent nil pointer errors
	_ = logger.Init("error", "")
}

type stubLinks struct {
	entries []models.StreamEntry
	err     error
}

func (s *stubLinks) FetchYear(context.Context, int) ([]models.StreamEntry, error) {
	return s.entries, s.err
}

type stubAnnotator struct {
	summary string
	err     error
}

func (s *stubAnnotator) Complete(context.Context, string, lmstudio.Option) (string, error) {
	return s.summary, s.err
}

func (s *stubAnnotator) AnalyzeSentiment(context.Context, string) lmstudio.Sentiment {
	return lmstudio.Sentiment{Type: "neutral", Score: 0.5, Description: "중립적인 반응의 스트림"}
}

type stubProbe struct {
	healthy bool
	message string
}

func (s *stubProbe) Healthy(context.Context) (bool, string) {
	return s.healthy, s.message
}

type stubChannels struct {
	info      *models.ChannelInfo
	infoErr   error
	recent    []models.VideoCard
	recentErr error
}

func (s *stubChannels) FetchChannel(context.Context) (*models.ChannelInfo, error) {
	return s.info, s.infoErr
}

func (s *stubChannels) RecentVideos(context.Context, int64) ([]models.VideoCard, error) {
	return s.recent, s.recentErr
}

type stubCafe struct {
	profile  *models.CafeProfile
	articles *models.CafeArticlesResponse
	err      error
}

func (s *stubCafe) Profile(context.Context) (*models.CafeProfile, error) {
	return s.profile, s.err
}

func (s *stubCafe) Articles(context.Context, int, int) (*models.CafeArticlesResponse, error) {
	return s.articles, s.err
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestService(t *testing.T, links *stubLinks, annotator *stubAnnotator) *enrich.Service {
	t.Helper()
	var a enrich.Annotator
	if annotator != nil {
		a = annotator
	}
	return enrich.New(newTestStore(t), links, nil, a, nil, enrich.Options{})
}

func postJSON(router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func testRouter(t *testing.T, links *stubLinks, annotator *stubAnnotator) *gin.Engine {
	t.Helper()
	svc := newTestService(t, links, annotator)
	return NewRouter(Handlers{
		LLM:    NewLLMHandler(svc, &stubProbe{healthy: true, message: "LM Studio is running"}),
		Health: NewHealthHandler(newTestStore(t), nil),
	})
}

func TestHandleStreams(t *testing.T) {
	links := &stubLinks{entries: []models.StreamEntry{
		{Date: "2024-03-01", URL: "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		{Date: "2024-01-15", URL: "https://www.youtube.com/watch?v=bbbbbbbbbbb"},
	}}
	router := testRouter(t, links, nil)

	w := postJSON(router, "/api/v1/llm/streams",
		models.PaginatedStreamsRequest{Year: 2024, Page: 1, PerPage: 10})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp models.PaginatedStreamsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TotalStreams != 2 || len(resp.Streams) != 2 {
		t.Errorf("response = %+v, want 2 streams", resp)
	}
	if resp.Streams[0].Date != "2024-01-15" {
		t.Errorf("first stream date = %s, want 2024-01-15", resp.Streams[0].Date)
	}
}

func TestHandleStreamsValidation(t *testing.T) {
	router := testRouter(t, &stubLinks{}, nil)

	w := postJSON(router, "/api/v1/llm/streams",
		models.PaginatedStreamsRequest{Year: 2024, Page: 1, PerPage: 0})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if resp.Error != "Bad Request" || resp.Path != "/api/v1/llm/streams" {
		t.Errorf("error response = %+v", resp)
	}
}

func TestHandleStreamsMalformedBody(t *testing.T) {
	router := testRouter(t, &stubLinks{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/llm/streams",
		bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleStreamsUpstreamDown(t *testing.T) {
	links := &stubLinks{err: errors.New("connection refused")}
	router := testRouter(t, links, nil)

	w := postJSON(router, "/api/v1/llm/streams",
		models.PaginatedStreamsRequest{Year: 2024, Page: 1, PerPage: 10})

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if resp.Error != "Bad Gateway" {
		t.Errorf("Error = %q, want Bad Gateway", resp.Error)
	}
}

func TestHandleSummarizeYear(t *testing.T) {
	links := &stubLinks{entries: []models.StreamEntry{
		{Date: "2024-01-05", URL: "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
	}}
	annotator := &stubAnnotator{summary: "2024년 활동을 요약한 내용입니다."}
	router := testRouter(t, links, annotator)

	w := postJSON(router, "/api/v1/llm/summarize-live-streams",
		models.YearSummaryRequest{Year: 2024})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp models.YearSummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Summary == "" || resp.TotalStreams != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleSummarize(t *testing.T) {
	annotator := &stubAnnotator{summary: "요약입니다."}
	router := testRouter(t, &stubLinks{}, annotator)

	w := postJSON(router, "/api/v1/llm/summarize",
		models.SummaryRequest{Content: "요약할 원본 텍스트"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp models.SummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Summary != "요약입니다." {
		t.Errorf("Summary = %q", resp.Summary)
	}
}

func TestHandleSummarizeEmptyContent(t *testing.T) {
	router := testRouter(t, &stubLinks{}, &stubAnnotator{summary: "x"})

	w := postJSON(router, "/api/v1/llm/summarize", models.SummaryRequest{Content: ""})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleLLMHealth(t *testing.T) {
	tests := []struct {
		name       string
		probe      *stubProbe
		wantStatus string
	}{
		{"reachable", &stubProbe{healthy: true, message: "LM Studio is running"}, "healthy"},
		{"unreachable", &stubProbe{healthy: false, message: "Cannot connect to LM Studio"}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &stubLinks{}, nil)
			router := NewRouter(Handlers{
				LLM:    NewLLMHandler(svc, tt.probe),
				Health: NewHealthHandler(newTestStore(t), nil),
			})

			w := get(router, "/api/v1/llm/health")

			// Always 200; the body carries the verdict.
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}

			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %v, want %s", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestHandleCacheAdmin(t *testing.T) {
	router := testRouter(t, &stubLinks{}, nil)

	w := get(router, "/api/v1/llm/cache/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d: %s", w.Code, w.Body.String())
	}

	var stats models.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.EntryCount != 0 {
		t.Errorf("EntryCount = %d, want 0 for fresh store", stats.EntryCount)
	}

	// Clearing an empty cache is a no-op, not an error.
	for range 2 {
		w = postJSON(router, "/api/v1/llm/cache/clear", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("clear status = %d: %s", w.Code, w.Body.String())
		}
	}
}

func TestHandleChannelInfo(t *testing.T) {
	channels := &stubChannels{
		info: &models.ChannelInfo{ChannelID: "UCtest", ChannelName: "우하"},
		recent: []models.VideoCard{
			{Title: "최근 방송", VideoURL: "https://www.youtube.com/watch?v=aaaaaaaaaaa"},
		},
	}

	router := NewRouter(Handlers{
		LLM:     NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
		Health:  NewHealthHandler(newTestStore(t), nil),
		YouTube: NewYouTubeHandler(channels),
	})

	w := get(router, "/api/v1/youtube/channel-info")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var info models.ChannelInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal info: %v", err)
	}
	if info.ChannelID != "UCtest" || len(info.RecentVideos) != 1 {
		t.Errorf("info = %+v", info)
	}
}

func TestHandleChannelInfoRecentVideosDegrade(t *testing.T) {
	channels := &stubChannels{
		info:      &models.ChannelInfo{ChannelID: "UCtest"},
		recentErr: youtube.ErrTransient,
	}

	router := NewRouter(Handlers{
		LLM:     NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
		Health:  NewHealthHandler(newTestStore(t), nil),
		YouTube: NewYouTubeHandler(channels),
	})

	w := get(router, "/api/v1/youtube/channel-info")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want recent-videos failure to degrade", w.Code)
	}

	var info models.ChannelInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal info: %v", err)
	}
	if len(info.RecentVideos) != 0 {
		t.Errorf("RecentVideos = %+v, want empty", info.RecentVideos)
	}
}

func TestHandleChannelInfoErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", youtube.ErrNotFound, http.StatusNotFound},
		{"rate limited", youtube.ErrRateLimited, http.StatusTooManyRequests},
		{"transient", youtube.ErrTransient, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Handlers{
				LLM:     NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
				Health:  NewHealthHandler(newTestStore(t), nil),
				YouTube: NewYouTubeHandler(&stubChannels{infoErr: tt.err}),
			})

			w := get(router, "/api/v1/youtube/channel-info")
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleCafe(t *testing.T) {
	cafe := &stubCafe{
		profile: &models.CafeProfile{Name: "우하하", Members: "1,234명"},
		articles: &models.CafeArticlesResponse{
			Result: []models.CafeArticle{{Title: "공지", Author: "운영자"}},
			Page:   1,
		},
	}

	router := NewRouter(Handlers{
		LLM:    NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
		Health: NewHealthHandler(newTestStore(t), nil),
		Cafe:   NewCafeHandler(cafe),
	})

	w := get(router, "/api/v1/cafe/profile")
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d: %s", w.Code, w.Body.String())
	}

	w = get(router, "/api/v1/cafe/articles/5/1")
	if w.Code != http.StatusOK {
		t.Fatalf("articles status = %d: %s", w.Code, w.Body.String())
	}

	var resp models.CafeArticlesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal articles: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].Title != "공지" {
		t.Errorf("articles = %+v", resp)
	}
}

func TestHandleCafeBadParams(t *testing.T) {
	router := NewRouter(Handlers{
		LLM:    NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
		Health: NewHealthHandler(newTestStore(t), nil),
		Cafe:   NewCafeHandler(&stubCafe{}),
	})

	for _, path := range []string{
		"/api/v1/cafe/articles/abc/1",
		"/api/v1/cafe/articles/5/0",
	} {
		w := get(router, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleCafeUpstreamDown(t *testing.T) {
	router := NewRouter(Handlers{
		LLM:    NewLLMHandler(newTestService(t, &stubLinks{}, nil), &stubProbe{healthy: true}),
		Health: NewHealthHandler(newTestStore(t), nil),
		Cafe:   NewCafeHandler(&stubCafe{err: errors.New("blocked by naver")}),
	})

	w := get(router, "/api/v1/cafe/profile")
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := testRouter(t, &stubLinks{}, nil)

	w := get(router, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d: %s", w.Code, w.Body.String())
	}

	w = get(router, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestOptionalRoutesUnregistered(t *testing.T) {
	router := testRouter(t, &stubLinks{}, nil)

	for _, path := range []string{
		"/api/v1/youtube/channel-info",
		"/api/v1/cafe/profile",
	} {
		w := get(router, path)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want %d without handler", path, w.Code, http.StatusNotFound)
		}
	}
}
