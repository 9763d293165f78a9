package static

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly"

	"tender-scraper/config"
	"tender-scraper/utils"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var errEmptyPage = errors.New("empty HTML content retrieved")

// Source fetches server-rendered pages over plain HTTP. It suits saved
// pages and pre-rendered mirrors of the search site, not the live
// JavaScript application.
type Source struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig
}

// New creates a Source.
func New(cfg *config.Config, logger *utils.Logger) *Source {
	return &Source{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
	}
}

// FetchListing downloads the configured search results page.
func (s *Source) FetchListing(ctx context.Context) (string, error) {
	return s.fetch(ctx, "search-page", s.cfg.SearchURL)
}

// FetchDetail downloads the detail page of one notice.
func (s *Source) FetchDetail(ctx context.Context, noticeID string) (string, error) {
	return s.fetch(ctx, "detail-"+noticeID, s.cfg.DetailURL(noticeID))
}

func (s *Source) fetch(ctx context.Context, name, pageURL string) (string, error) {
	var content string

	err := s.retry.Do(ctx, name, func(ctx context.Context) error {
		c := colly.NewCollector(colly.UserAgent(userAgent))
		c.SetRequestTimeout(s.cfg.PageTimeout())

		var body []byte
		var fetchErr error

		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept-Language", "en")
		})
		c.OnResponse(func(r *colly.Response) {
			body = r.Body
		})
		c.OnError(func(r *colly.Response, err error) {
			fetchErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
		})

		if err := c.Visit(pageURL); err != nil && fetchErr == nil {
			fetchErr = fmt.Errorf("visit %s: %w", pageURL, err)
		}
		c.Wait()

		if fetchErr != nil {
			return fetchErr
		}
		if strings.TrimSpace(string(body)) == "" {
			return errEmptyPage
		}

		content = string(body)
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("[static] %s: %d bytes", name, len(content))
	return content, nil
}
