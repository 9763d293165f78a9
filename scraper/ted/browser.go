package ted

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"tender-scraper/config"
	"tender-scraper/services"
	"tender-scraper/utils"
)

const (
	// Angular components that mark a rendered page.
	searchReadySelector = "app-notice-summary"
	detailReadySelector = "app-notice-detail"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var errEmptyPage = errors.New("empty HTML content retrieved")

// Browser renders TED pages in headless Chrome. It implements
// services.PageSource.
type Browser struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  *utils.RetryConfig

	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// New creates a Browser. Call Start before fetching.
func New(cfg *config.Config, logger *utils.Logger) *Browser {
	return &Browser{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Start launches the browser process.
func (b *Browser) Start(ctx context.Context) error {
	chromeBin := findChromeBinary(b.cfg.ChromeBin)
	b.logger.Info("[ted] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("%w: start browser: %v", services.ErrSourceUnavailable, err)
	}

	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelBrowser = cancelBrowser
	return nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	if b.cancelBrowser != nil {
		b.cancelBrowser()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}

// FetchListing renders the configured search results page.
func (b *Browser) FetchListing(ctx context.Context) (string, error) {
	return b.fetch(ctx, "search-page", b.cfg.SearchURL, searchReadySelector)
}

// FetchDetail renders the detail page of one notice.
func (b *Browser) FetchDetail(ctx context.Context, noticeID string) (string, error) {
	return b.fetch(ctx, "detail-"+noticeID, b.cfg.DetailURL(noticeID), detailReadySelector)
}

// fetch loads pageURL in a fresh tab and returns the document's outer HTML.
// A missing ready marker is tolerated: whatever rendered is returned.
func (b *Browser) fetch(ctx context.Context, name, pageURL, readySelector string) (string, error) {
	if !b.alive() {
		return "", fmt.Errorf("%w: browser is not running", services.ErrSourceUnavailable)
	}

	var content string
	err := b.retry.Do(ctx, name, func(ctx context.Context) error {
		tabCtx, cancel := chromedp.NewContext(b.browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.PageTimeout())
		defer cancelTimeout()

		stop := context.AfterFunc(ctx, cancelTimeout)
		defer stop()

		if err := chromedp.Run(tabCtx, chromedp.Navigate(pageURL)); err != nil {
			return fmt.Errorf("navigate %s: %w", pageURL, err)
		}

		waitCtx, cancelWait := context.WithTimeout(tabCtx, b.cfg.WaitTimeout())
		if err := chromedp.Run(waitCtx, chromedp.WaitReady(readySelector, chromedp.ByQuery)); err != nil {
			b.logger.Warn("[ted] %s: %s not rendered (%v), continuing with partial page", name, readySelector, err)
		}
		cancelWait()

		var html string
		if err := chromedp.Run(tabCtx,
			chromedp.Sleep(b.cfg.Settle()),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("read %s: %w", pageURL, err)
		}
		if strings.TrimSpace(html) == "" {
			return errEmptyPage
		}

		content = html
		return nil
	})
	if err != nil {
		if !b.alive() {
			return "", fmt.Errorf("%w: %v", services.ErrSourceUnavailable, err)
		}
		return "", err
	}

	b.logger.Debug("[ted] %s: %d bytes", name, len(content))
	return content, nil
}

func (b *Browser) alive() bool {
	return b.browserCtx != nil && b.browserCtx.Err() == nil
}

// findChromeBinary locates Chrome/Chromium, preferring the configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
