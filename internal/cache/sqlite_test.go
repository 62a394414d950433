package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/uhafan/stream-dashboard-go/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string       { return &s }
func i64Ptr(n int64) *int64         { return &n }
func f64Ptr(f float64) *float64     { return &f }
func timePtr(t time.Time) *time.Time { return &t }

func baseRecord(videoID string, fetchedAt time.Time) *models.Stream {
	return &models.Stream{
		VideoID:      videoID,
		URL:          "https://www.youtube.com/watch?v=" + videoID,
		Date:         "2024-03-15",
		Title:        strPtr("봄맞이 저챗"),
		Thumbnail:    strPtr("https://i.ytimg.com/vi/" + videoID + "/maxresdefault.jpg"),
		ViewCount:    i64Ptr(15000),
		LikeCount:    i64Ptr(1200),
		CommentCount: i64Ptr(340),
		Duration:     strPtr("PT2H15M"),
		Tags:         []string{"저챗", "토크"},
		Keywords:     []string{"봄", "근황"},
		FetchedAt:    timePtr(fetchedAt),
	}
}

func TestSQLiteStoreGetAbsent(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Get(context.Background(), "nope1234567")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Get() = %+v, want nil for absent key", rec)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fetchedAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	in := baseRecord("dQw4w9WgXcQ", fetchedAt)

	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	out, err := store.Get(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out == nil {
		t.Fatal("Get() = nil, want stored record")
	}

	if out.URL != in.URL {
		t.Errorf("URL = %q, want %q", out.URL, in.URL)
	}
	if out.Date != in.Date {
		t.Errorf("Date = %q, want %q", out.Date, in.Date)
	}
	if out.Title == nil || *out.Title != *in.Title {
		t.Errorf("Title = %v, want %q", out.Title, *in.Title)
	}
	if out.ViewCount == nil || *out.ViewCount != 15000 {
		t.Errorf("ViewCount = %v, want 15000", out.ViewCount)
	}
	if len(out.Tags) != 2 || out.Tags[0] != "저챗" {
		t.Errorf("Tags = %v, want %v", out.Tags, in.Tags)
	}
	if out.FetchedAt == nil || !out.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", out.FetchedAt, fetchedAt)
	}
	if out.AnnotatedAt != nil {
		t.Errorf("AnnotatedAt = %v, want nil before annotation", out.AnnotatedAt)
	}
	if out.SchemaVersion != models.CacheSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", out.SchemaVersion, models.CacheSchemaVersion)
	}
}

// An annotation-only put must not disturb previously stored base fields,
// and a base-only refresh must not wipe annotations.
func TestSQLiteStoreFieldGroupMerge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fetchedAt := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	if err := store.Put(ctx, baseRecord("abcGHI_-123", fetchedAt)); err != nil {
		t.Fatalf("Put(base) error = %v", err)
	}

	annotatedAt := time.Now().Truncate(time.Second)
	annotation := &models.Stream{
		VideoID:         "abcGHI_-123",
		URL:             "https://www.youtube.com/watch?v=abcGHI_-123",
		Date:            "2024-03-15",
		AISummary:       strPtr("시청자들과 봄 근황을 나눈 저챗 방송입니다."),
		Highlights:      []string{"🔥 오늘 진짜 레전드", "😂 개웃기네"},
		Sentiment:       strPtr("긍정적"),
		EngagementScore: f64Ptr(7.82),
		Category:        strPtr("🗣️ 토크"),
		AnnotatedAt:     timePtr(annotatedAt),
	}
	if err := store.Put(ctx, annotation); err != nil {
		t.Fatalf("Put(annotation) error = %v", err)
	}

	out, err := store.Get(ctx, "abcGHI_-123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out == nil {
		t.Fatal("Get() = nil, want merged record")
	}

	// Base group untouched by the annotation write.
	if out.Title == nil || *out.Title != "봄맞이 저챗" {
		t.Errorf("Title = %v, want base title preserved", out.Title)
	}
	if out.ViewCount == nil || *out.ViewCount != 15000 {
		t.Errorf("ViewCount = %v, want 15000 preserved", out.ViewCount)
	}
	if out.FetchedAt == nil || !out.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v preserved", out.FetchedAt, fetchedAt)
	}

	// Annotation group landed.
	if out.AISummary == nil || *out.AISummary != *annotation.AISummary {
		t.Errorf("AISummary = %v, want %q", out.AISummary, *annotation.AISummary)
	}
	if out.EngagementScore == nil || *out.EngagementScore != 7.82 {
		t.Errorf("EngagementScore = %v, want 7.82", out.EngagementScore)
	}
	if len(out.Highlights) != 2 {
		t.Errorf("Highlights = %v, want 2 entries", out.Highlights)
	}
	if out.AnnotatedAt == nil || !out.AnnotatedAt.Equal(annotatedAt) {
		t.Errorf("AnnotatedAt = %v, want %v", out.AnnotatedAt, annotatedAt)
	}

	// Base refresh leaves annotations in place.
	refetched := baseRecord("abcGHI_-123", time.Now().Truncate(time.Second))
	refetched.Title = strPtr("봄맞이 저챗 (다시보기)")
	if err := store.Put(ctx, refetched); err != nil {
		t.Fatalf("Put(refetch) error = %v", err)
	}

	out, err = store.Get(ctx, "abcGHI_-123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.Title == nil || *out.Title != "봄맞이 저챗 (다시보기)" {
		t.Errorf("Title = %v, want refreshed title", out.Title)
	}
	if out.AISummary == nil || *out.AISummary != *annotation.AISummary {
		t.Errorf("AISummary = %v, want annotation preserved across base refresh", out.AISummary)
	}
}

func TestSQLiteStoreFreshness(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		fetchedAt *time.Time
		want      bool
	}{
		{"just under window", timePtr(now.Add(-(FreshWindow - time.Minute))), true},
		{"just over window", timePtr(now.Add(-(FreshWindow + time.Minute))), false},
		{"never fetched", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.Stream{VideoID: "v", FetchedAt: tt.fetchedAt}
			if got := rec.IsFresh(now, FreshWindow); got != tt.want {
				t.Errorf("IsFresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSQLiteStoreListExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Three entries straddling the expiry window. last_accessed is forced
	// to match fetched_at since Put stamps it with the wall clock.
	entries := []struct {
		id  string
		age time.Duration
	}{
		{"expired00001", 49 * time.Hour},
		{"fresh0000002", 47 * time.Hour},
		{"recent000003", time.Hour},
	}
	for _, e := range entries {
		ts := now.Add(-e.age)
		if err := store.Put(ctx, baseRecord(e.id, ts)); err != nil {
			t.Fatalf("Put(%s) error = %v", e.id, err)
		}
		if _, err := store.conn.Exec(
			"UPDATE stream_cache SET last_accessed = ? WHERE video_id = ?",
			ts.Unix(), e.id); err != nil {
			t.Fatalf("forcing last_accessed: %v", err)
		}
	}

	ids, err := store.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "expired00001" {
		t.Errorf("ListExpired() = %v, want [expired00001]", ids)
	}
}

// A read inside the expiry window rescues an otherwise stale entry because
// it bumps last_accessed.
func TestSQLiteStoreGetBumpsLastAccessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ts := now.Add(-49 * time.Hour)
	if err := store.Put(ctx, baseRecord("rescued00001", ts)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.conn.Exec(
		"UPDATE stream_cache SET last_accessed = ? WHERE video_id = ?",
		ts.Unix(), "rescued00001"); err != nil {
		t.Fatalf("forcing last_accessed: %v", err)
	}

	if _, err := store.Get(ctx, "rescued00001"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	ids, err := store.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	for _, id := range ids {
		if id == "rescued00001" {
			t.Errorf("ListExpired() includes rescued00001 after a recent read")
		}
	}
}

func TestSQLiteStorePurge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"purge0000001", "purge0000002"} {
		if err := store.Put(ctx, baseRecord(id, time.Now())); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	n, err := store.Purge(ctx, []string{"purge0000001", "purge0000002", "never0000003"})
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() = %d, want 2", n)
	}

	// Purging already-absent ids is a no-op, not an error.
	n, err = store.Purge(ctx, []string{"purge0000001"})
	if err != nil {
		t.Fatalf("Purge() second call error = %v", err)
	}
	if n != 0 {
		t.Errorf("Purge() second call = %d, want 0", n)
	}

	n, err = store.Purge(ctx, nil)
	if err != nil {
		t.Fatalf("Purge(nil) error = %v", err)
	}
	if n != 0 {
		t.Errorf("Purge(nil) = %d, want 0", n)
	}
}

func TestSQLiteStoreStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 0 {
		t.Errorf("EntryCount = %d, want 0", stats.EntryCount)
	}
	if stats.OldestFetchedAt != nil || stats.NewestFetchedAt != nil {
		t.Errorf("empty store stats = %+v, want nil timestamps", stats)
	}

	oldest := time.Now().Add(-10 * time.Hour).Truncate(time.Second)
	newest := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := store.Put(ctx, baseRecord("stats0000001", oldest)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, baseRecord("stats0000002", newest)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", stats.EntryCount)
	}
	if stats.OldestFetchedAt == nil || !stats.OldestFetchedAt.Equal(oldest) {
		t.Errorf("OldestFetchedAt = %v, want %v", stats.OldestFetchedAt, oldest)
	}
	if stats.NewestFetchedAt == nil || !stats.NewestFetchedAt.Equal(newest) {
		t.Errorf("NewestFetchedAt = %v, want %v", stats.NewestFetchedAt, newest)
	}
}
