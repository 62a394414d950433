package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhafan/stream-dashboard-go/internal/models"
)

// PostgresStore is the cache backend for deployments that already run
// Postgres. Same contract as the SQLite store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres wraps an existing connection pool and ensures the cache table
// exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stream_cache (
			video_id         VARCHAR(16) PRIMARY KEY,
			url              TEXT NOT NULL,
			date             VARCHAR(10) NOT NULL,
			title            TEXT,
			thumbnail        TEXT,
			view_count       BIGINT,
			like_count       BIGINT,
			comment_count    BIGINT,
			duration         VARCHAR(32),
			tags             TEXT[],
			keywords         TEXT[],
			ai_summary       TEXT,
			highlights       TEXT[],
			sentiment        TEXT,
			engagement_score DOUBLE PRECISION,
			category         TEXT,
			fetched_at       TIMESTAMPTZ,
			annotated_at     TIMESTAMPTZ,
			last_accessed    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			schema_version   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_stream_cache_date ON stream_cache(date);
		CREATE INDEX IF NOT EXISTS idx_stream_cache_fetched_at ON stream_cache(fetched_at);
	`)
	if err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, videoID string) (*models.Stream, error) {
	var (
		rec         models.Stream
		fetchedAt   *time.Time
		annotatedAt *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT video_id, url, date, title, thumbnail,
		       view_count, like_count, comment_count, duration,
		       tags, keywords,
		       ai_summary, highlights, sentiment, engagement_score, category,
		       fetched_at, annotated_at, schema_version
		FROM stream_cache WHERE video_id = $1`, videoID,
	).Scan(
		&rec.VideoID, &rec.URL, &rec.Date, &rec.Title, &rec.Thumbnail,
		&rec.ViewCount, &rec.LikeCount, &rec.CommentCount, &rec.Duration,
		&rec.Tags, &rec.Keywords,
		&rec.AISummary, &rec.Highlights, &rec.Sentiment, &rec.EngagementScore, &rec.Category,
		&fetchedAt, &annotatedAt, &rec.SchemaVersion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}

	rec.FetchedAt = fetchedAt
	rec.AnnotatedAt = annotatedAt

	_, _ = s.pool.Exec(ctx,
		"UPDATE stream_cache SET last_accessed = NOW() WHERE video_id = $1", videoID)

	return &rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *models.Stream) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stream_cache (video_id, url, date, last_accessed, schema_version)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (video_id) DO UPDATE SET
			url = EXCLUDED.url,
			date = EXCLUDED.date,
			last_accessed = NOW()`,
		rec.VideoID, rec.URL, rec.Date, models.CacheSchemaVersion)
	if err != nil {
		return unavailable("put", err)
	}

	if rec.FetchedAt != nil {
		_, err = s.pool.Exec(ctx, `
			UPDATE stream_cache SET
				title = $2, thumbnail = $3,
				view_count = $4, like_count = $5, comment_count = $6,
				duration = $7, tags = $8, keywords = $9, fetched_at = $10
			WHERE video_id = $1`,
			rec.VideoID, rec.Title, rec.Thumbnail,
			rec.ViewCount, rec.LikeCount, rec.CommentCount,
			rec.Duration, rec.Tags, rec.Keywords, *rec.FetchedAt)
		if err != nil {
			return unavailable("put", err)
		}
	}

	if rec.AnnotatedAt != nil {
		_, err = s.pool.Exec(ctx, `
			UPDATE stream_cache SET
				ai_summary = $2, highlights = $3, sentiment = $4,
				engagement_score = $5, category = $6, annotated_at = $7
			WHERE video_id = $1`,
			rec.VideoID, rec.AISummary, rec.Highlights, rec.Sentiment,
			rec.EngagementScore, rec.Category, *rec.AnnotatedAt)
		if err != nil {
			return unavailable("put", err)
		}
	}

	return nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-ExpiryWindow)

	rows, err := s.pool.Query(ctx, `
		SELECT video_id FROM stream_cache
		WHERE fetched_at IS NOT NULL AND fetched_at < $1 AND last_accessed < $1
		ORDER BY fetched_at`, cutoff)
	if err != nil {
		return nil, unavailable("list_expired", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list_expired", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list_expired", err)
	}
	return ids, nil
}

func (s *PostgresStore) Purge(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		"DELETE FROM stream_cache WHERE video_id = ANY($1)", ids)
	if err != nil {
		return 0, unavailable("purge", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.CacheStats, error) {
	stats := &models.CacheStats{}
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at) FROM stream_cache",
	).Scan(&stats.EntryCount, &stats.OldestFetchedAt, &stats.NewestFetchedAt)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	return stats, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
