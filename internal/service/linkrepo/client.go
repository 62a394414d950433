// Package linkrepo fetches and parses the hosted markdown listing of
// livestream links. One file per year, one row per stream.
package linkrepo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// ErrUnavailable indicates the listing could not be fetched. A year with no
// published file and an unreachable host look the same to callers.
var ErrUnavailable = errors.New("link repository unavailable")

// Client fetches year listings from the link repository.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a link repository client. baseURL is the directory
// holding the readme-{year}.md files.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Named("linkrepo"),
	}
}

// FetchYear downloads and parses the listing for one year. Entries come
// back in file order; rows that match neither accepted format are skipped.
func (c *Client) FetchYear(ctx context.Context, year int) ([]models.StreamEntry, error) {
	url := fmt.Sprintf("%s/readme-%d.md", c.baseURL, year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("listing fetch failed", zap.Int("year", year), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("listing fetch returned non-200",
			zap.Int("year", year), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	entries, err := ParseListing(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	c.log.Debug("listing fetched", zap.Int("year", year), zap.Int("entries", len(entries)))
	return entries, nil
}

var (
	// | 2024-01-05 | [방송제목](https://youtube.com/watch?v=...) |
	tableRowRe = regexp.MustCompile(`^\|\s*(\d{4}-\d{2}-\d{2})\s*\|\s*\[[^\]]*\]\(([^)\s]+)\)\s*\|`)
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ParseListing extracts stream entries from a year listing. Two row formats
// are accepted: markdown table rows with a bracketed link, and plain
// tab-separated date/URL pairs kept from the listing's earliest years.
func ParseListing(r io.Reader) ([]models.StreamEntry, error) {
	var entries []models.StreamEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if m := tableRowRe.FindStringSubmatch(line); m != nil {
			entries = append(entries, models.StreamEntry{Date: m[1], URL: m[2]})
			continue
		}

		if entry, ok := parseTabRow(line); ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}

	return entries, nil
}

func parseTabRow(line string) (models.StreamEntry, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return models.StreamEntry{}, false
	}

	date := strings.TrimSpace(fields[0])
	url := strings.TrimSpace(fields[len(fields)-1])
	if !dateRe.MatchString(date) || !strings.HasPrefix(url, "http") {
		return models.StreamEntry{}, false
	}

	return models.StreamEntry{Date: date, URL: url}, true
}
