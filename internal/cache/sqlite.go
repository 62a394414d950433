package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uhafan/stream-dashboard-go/internal/models"
)

// SQLiteStore is the default single-file cache backend.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite creates or opens the cache database at the given path.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrateSQLite(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &SQLiteStore{conn: conn, path: dbPath}, nil
}

// migrateSQLite brings the schema up to the current version, tracked with
// PRAGMA user_version.
func migrateSQLite(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version >= models.CacheSchemaVersion {
		return nil
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS stream_cache (
			video_id         TEXT PRIMARY KEY,
			url              TEXT NOT NULL,
			date             TEXT NOT NULL,
			title            TEXT,
			thumbnail        TEXT,
			view_count       INTEGER,
			like_count       INTEGER,
			comment_count    INTEGER,
			duration         TEXT,
			tags             TEXT,
			keywords         TEXT,
			ai_summary       TEXT,
			highlights       TEXT,
			sentiment        TEXT,
			engagement_score REAL,
			category         TEXT,
			fetched_at       INTEGER,
			annotated_at     INTEGER,
			last_accessed    INTEGER NOT NULL,
			schema_version   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_stream_cache_date ON stream_cache(date);
		CREATE INDEX IF NOT EXISTS idx_stream_cache_fetched_at ON stream_cache(fetched_at);
	`); err != nil {
		return fmt.Errorf("creating stream_cache: %w", err)
	}

	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", models.CacheSchemaVersion)); err != nil {
		return fmt.Errorf("stamping schema version: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, videoID string) (*models.Stream, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT video_id, url, date, title, thumbnail,
		       view_count, like_count, comment_count, duration,
		       tags, keywords,
		       ai_summary, highlights, sentiment, engagement_score, category,
		       fetched_at, annotated_at, schema_version
		FROM stream_cache WHERE video_id = ?`, videoID)

	rec, err := scanStream(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}

	// Touch last_accessed so the expiry sweep spares recently read entries.
	// A failed touch is not worth failing the read over.
	_, _ = s.conn.ExecContext(ctx,
		"UPDATE stream_cache SET last_accessed = ? WHERE video_id = ?",
		time.Now().Unix(), videoID)

	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *models.Stream) error {
	now := time.Now().Unix()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO stream_cache (video_id, url, date, last_accessed, schema_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			url = excluded.url,
			date = excluded.date,
			last_accessed = excluded.last_accessed`,
		rec.VideoID, rec.URL, rec.Date, now, models.CacheSchemaVersion)
	if err != nil {
		return unavailable("put", err)
	}

	if rec.FetchedAt != nil {
		_, err = s.conn.ExecContext(ctx, `
			UPDATE stream_cache SET
				title = ?, thumbnail = ?,
				view_count = ?, like_count = ?, comment_count = ?,
				duration = ?, tags = ?, keywords = ?, fetched_at = ?
			WHERE video_id = ?`,
			rec.Title, rec.Thumbnail,
			rec.ViewCount, rec.LikeCount, rec.CommentCount,
			rec.Duration, marshalList(rec.Tags), marshalList(rec.Keywords),
			rec.FetchedAt.Unix(), rec.VideoID)
		if err != nil {
			return unavailable("put", err)
		}
	}

	if rec.AnnotatedAt != nil {
		_, err = s.conn.ExecContext(ctx, `
			UPDATE stream_cache SET
				ai_summary = ?, highlights = ?, sentiment = ?,
				engagement_score = ?, category = ?, annotated_at = ?
			WHERE video_id = ?`,
			rec.AISummary, marshalList(rec.Highlights), rec.Sentiment,
			rec.EngagementScore, rec.Category,
			rec.AnnotatedAt.Unix(), rec.VideoID)
		if err != nil {
			return unavailable("put", err)
		}
	}

	return nil
}

func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-ExpiryWindow).Unix()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT video_id FROM stream_cache
		WHERE fetched_at IS NOT NULL AND fetched_at < ? AND last_accessed < ?
		ORDER BY fetched_at`, cutoff, cutoff)
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

func (s *SQLiteStore) Purge(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM stream_cache WHERE video_id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, unavailable("purge", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.CacheStats, error) {
	var (
		count  int64
		oldest sql.NullInt64
		newest sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at) FROM stream_cache",
	).Scan(&count, &oldest, &newest)
	if err != nil {
		return nil, unavailable("stats", err)
	}

	stats := &models.CacheStats{EntryCount: count}
	if oldest.Valid {
		t := time.Unix(oldest.Int64, 0).UTC()
		stats.OldestFetchedAt = &t
	}
	if newest.Valid {
		t := time.Unix(newest.Int64, 0).UTC()
		stats.NewestFetchedAt = &t
	}
	return stats, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*models.Stream, error) {
	var (
		rec         models.Stream
		tags        sql.NullString
		keywords    sql.NullString
		highlights  sql.NullString
		fetchedAt   sql.NullInt64
		annotatedAt sql.NullInt64
	)

	err := row.Scan(
		&rec.VideoID, &rec.URL, &rec.Date, &rec.Title, &rec.Thumbnail,
		&rec.ViewCount, &rec.LikeCount, &rec.CommentCount, &rec.Duration,
		&tags, &keywords,
		&rec.AISummary, &highlights, &rec.Sentiment, &rec.EngagementScore, &rec.Category,
		&fetchedAt, &annotatedAt, &rec.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}

	rec.Tags = unmarshalList(tags)
	rec.Keywords = unmarshalList(keywords)
	rec.Highlights = unmarshalList(highlights)

	if fetchedAt.Valid {
		t := time.Unix(fetchedAt.Int64, 0).UTC()
		rec.FetchedAt = &t
	}
	if annotatedAt.Valid {
		t := time.Unix(annotatedAt.Int64, 0).UTC()
		rec.AnnotatedAt = &t
	}

	return &rec, nil
}

func marshalList(list []string) *string {
	if list == nil {
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func unmarshalList(col sql.NullString) []string {
	if !col.Valid || col.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(col.String), &list); err != nil {
		return nil
	}
	return list
}
