// Package cache stores merged stream records keyed by video id. The cache
// is a performance layer, never a correctness dependency: callers degrade to
// upstream fetches when it fails.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/uhafan/stream-dashboard-go/internal/models"
)

const (
	// FreshWindow is how long base attributes are served without a re-fetch.
	FreshWindow = 24 * time.Hour

	// ExpiryWindow is how long a stale, unaccessed entry survives before
	// the cleanup sweep removes it.
	ExpiryWindow = 48 * time.Hour
)

// UnavailableError reports a storage failure. The orchestrator treats a Get
// returning this as a cache miss and a Put returning it as a logged no-op.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// Store is the response cache contract.
//
// Put is an upsert with field-group merge: the identity columns are always
// written, the base group only when rec.FetchedAt is set, and the annotation
// group only when rec.AnnotatedAt is set. A put carrying one group never
// nulls out the other. Concurrent writers for the same id are last-write-wins
// per group.
type Store interface {
	// Get returns the stored record regardless of freshness, or (nil, nil)
	// when the id is absent. Reading bumps the entry's last-accessed time.
	Get(ctx context.Context, videoID string) (*models.Stream, error)

	// Put upserts the record per the field-group rules above.
	Put(ctx context.Context, rec *models.Stream) error

	// ListExpired returns ids whose fetch time exceeds the expiry window
	// and that have not been accessed inside it.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)

	// Purge removes the listed entries and returns how many existed.
	// Purging an absent id is a no-op.
	Purge(ctx context.Context, ids []string) (int64, error)

	// Stats reports entry count and the oldest/newest fetch times.
	Stats(ctx context.Context) (*models.CacheStats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
