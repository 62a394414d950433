// Package cafe scrapes the fan cafe's public pages. The desktop article
// pages still ship EUC-KR, so responses go through a charset decoder
// before parsing.
package cafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/uhafan/stream-dashboard-go/internal/models"
	"github.com/uhafan/stream-dashboard-go/pkg/logger"
)

// ErrUnavailable indicates the cafe did not answer or answered non-200.
var ErrUnavailable = errors.New("cafe unavailable")

// Scraper fetches and parses fan cafe pages.
type Scraper struct {
	baseURL    string
	clubID     string
	userAgent  string
	httpClient *http.Client
	log        *zap.Logger
}

// NewScraper creates a cafe scraper for one cafe (club) id.
func NewScraper(baseURL, clubID, userAgent string, timeout time.Duration) *Scraper {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		clubID:     clubID,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Named("cafe"),
	}
}

func (s *Scraper) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.8,en-US;q=0.5,en;q=0.3")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("cafe fetch failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body := decodeBody(resp)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// decodeBody converts legacy EUC-KR pages to UTF-8. Pages already served
// as UTF-8 pass through untouched.
func decodeBody(resp *http.Response) io.Reader {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(ct, "euc-kr") || strings.Contains(ct, "ms949") ||
		!strings.Contains(ct, "utf-8") {
		return transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
	}
	return resp.Body
}

// Profile scrapes the cafe profile card.
func (s *Scraper) Profile(ctx context.Context) (*models.CafeProfile, error) {
	url := fmt.Sprintf("%s/CafeProfileView.nhn?clubid=%s", s.baseURL, s.clubID)

	doc, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	profile := &models.CafeProfile{
		Name:    strings.TrimSpace(doc.Find(".cafe_name").First().Text()),
		Members: strings.TrimSpace(doc.Find("#main-area > div > table > tbody > tr:nth-child(14) > td > span:nth-child(1)").First().Text()),
	}
	if src, ok := doc.Find(".mcafe_icon img").First().Attr("src"); ok {
		profile.Thumbnail = src
	}

	if profile.Name == "" {
		return nil, fmt.Errorf("%w: profile markup not recognized", ErrUnavailable)
	}
	return profile, nil
}

// Articles scrapes one page of a board's article list.
func (s *Scraper) Articles(ctx context.Context, menuID, page int) (*models.CafeArticlesResponse, error) {
	url := fmt.Sprintf(
		"%s/ArticleList.nhn?search.clubid=%s&userDisplay=50&search.boardtype=C&search.cafeId=%s&search.page=%d&search.menuid=%d",
		s.baseURL, s.clubID, s.clubID, page, menuID)

	doc, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	articles := parseArticleList(doc)
	return &models.CafeArticlesResponse{Result: articles, Page: page}, nil
}

var whitespaceReplacer = strings.NewReplacer("\n", " ", "\t", " ", "\r", " ")

func parseArticleList(doc *goquery.Document) []models.CafeArticle {
	var articles []models.CafeArticle

	doc.Find("#main-area > .article-movie-sub > li").Each(func(_ int, li *goquery.Selection) {
		anchor := li.Find("a").First()

		article := models.CafeArticle{
			Title:  squeeze(li.Find(".inner").First().Text()),
			Author: strings.TrimSpace(li.Find(".m-tcol-c").First().Text()),
			Date:   strings.TrimSpace(li.Find(".date").First().Text()),
			Text:   squeeze(anchor.Text()),
		}
		if href, ok := anchor.Attr("href"); ok {
			article.Link = "https://m.cafe.naver.com" + href
		}
		if src, ok := li.Find(".movie-img img").First().Attr("src"); ok {
			article.Image = src
		}

		articles = append(articles, article)
	})

	return articles
}

// squeeze collapses runs of whitespace into single spaces.
func squeeze(s string) string {
	return strings.Join(strings.Fields(whitespaceReplacer.Replace(s)), " ")
}
