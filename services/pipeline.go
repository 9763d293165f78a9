package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"tender-scraper/models"
	"tender-scraper/utils"
)

var (
	// ErrSourceUnavailable marks a page source that can no longer fetch
	// anything. It halts the batch.
	ErrSourceUnavailable = errors.New("page source unavailable")
	// ErrNoNotices is returned when the listing yields no records at all.
	ErrNoNotices = errors.New("no notices found in listing")

	noticeNumberRegexp = regexp.MustCompile(`^\d+-\d+$`)
)

// PageSource retrieves rendered pages.
type PageSource interface {
	FetchListing(ctx context.Context) (string, error)
	FetchDetail(ctx context.Context, noticeID string) (string, error)
}

// ListingExtractor turns a search results page into basic records.
type ListingExtractor interface {
	Parse(ctx context.Context, rawHTML string) ([]models.BasicRecord, error)
}

// DetailExtractor turns a notice detail page into a detail record.
type DetailExtractor interface {
	Parse(ctx context.Context, rawHTML, noticeID string) (models.DetailRecord, error)
}

// Pipeline drives one batch: listing, per-notice detail retrieval and merge.
type Pipeline struct {
	source      PageSource
	listing     ListingExtractor
	detail      DetailExtractor
	concurrency int
	rateLimit   time.Duration
	logger      *utils.Logger
	now         func() time.Time
}

// NewPipeline wires a Pipeline. concurrency below 2 processes notices one
// at a time; rateLimit spaces detail fetches.
func NewPipeline(source PageSource, listing ListingExtractor, detail DetailExtractor,
	concurrency int, rateLimit time.Duration, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		source:      source,
		listing:     listing,
		detail:      detail,
		concurrency: concurrency,
		rateLimit:   rateLimit,
		logger:      logger,
		now:         time.Now,
	}
}

// ValidNoticeNumber reports whether id has the "digits-digits" shape.
func ValidNoticeNumber(id string) bool {
	return noticeNumberRegexp.MatchString(id)
}

// Run fetches the listing page and processes it.
func (p *Pipeline) Run(ctx context.Context) ([]models.MergedRecord, error) {
	p.logger.Info("[pipeline] Fetching search results...")
	listingHTML, err := p.source.FetchListing(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return p.Process(ctx, listingHTML)
}

// Process extracts basic records from listingHTML and enriches each with
// its detail page. Per-record failures are recorded on the record. A fatal
// source failure or cancellation stops the batch; the records completed up
// to that point are returned together with the error. Output order follows
// the listing.
func (p *Pipeline) Process(ctx context.Context, listingHTML string) ([]models.MergedRecord, error) {
	basics, err := p.listing.Parse(ctx, listingHTML)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	basics = p.dedupe(basics)
	if len(basics) == 0 {
		return nil, ErrNoNotices
	}
	p.logger.Info("[pipeline] Extracted %d notices, scraping details...", len(basics))

	var (
		results  = make([]*models.MergedRecord, len(basics))
		pool     = utils.NewWorkerPool(p.concurrency, p.rateLimit)
		halted   atomic.Bool
		haltOnce sync.Once
		haltErr  error
	)

	for i, basic := range basics {
		i, basic := i, basic
		if halted.Load() || ctx.Err() != nil {
			break
		}

		if !ValidNoticeNumber(basic.Identifier) {
			rec := models.NewMergedRecord(basic)
			rec.Error = fmt.Sprintf("invalid notice number format: %q", basic.Identifier)
			p.logger.Warn("[pipeline] Skipping %q: invalid notice number format", basic.Identifier)
			results[i] = &rec
			continue
		}

		pool.Submit(func() {
			if halted.Load() {
				return
			}
			rec, fatal := p.processOne(ctx, i+1, len(basics), basic)
			results[i] = &rec
			if fatal != nil {
				haltOnce.Do(func() {
					haltErr = fatal
					halted.Store(true)
				})
			}
		})
	}
	pool.Wait()

	if haltErr == nil && ctx.Err() != nil {
		haltErr = ctx.Err()
	}

	records := make([]models.MergedRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}

	if haltErr != nil {
		p.logger.Error("[pipeline] Batch halted after %d/%d notices: %v", len(records), len(basics), haltErr)
		return records, haltErr
	}
	return records, nil
}

// processOne fetches, parses and merges a single notice. The returned error
// is non-nil only for failures that must stop the batch.
func (p *Pipeline) processOne(ctx context.Context, n, total int, basic models.BasicRecord) (models.MergedRecord, error) {
	rec := models.NewMergedRecord(basic)
	rec.SetExtra("scraped_at", p.now().UTC().Format(time.RFC3339))

	p.logger.Info("[pipeline] Scraping detail %d/%d: %s", n, total, basic.Identifier)

	detailHTML, err := p.source.FetchDetail(ctx, basic.Identifier)
	if err != nil {
		rec.Error = fmt.Sprintf("failed to retrieve detail page: %v", err)
		if errors.Is(err, ErrSourceUnavailable) || ctx.Err() != nil {
			return rec, err
		}
		p.logger.Warn("[pipeline] %s: %v", basic.Identifier, err)
		return rec, nil
	}

	detail, err := p.detail.Parse(ctx, detailHTML, basic.Identifier)
	if err != nil {
		rec.Error = fmt.Sprintf("parsing failed: %v", err)
		p.logger.Warn("[pipeline] %s: %v", basic.Identifier, err)
		return rec, nil
	}

	rec.Apply(detail)
	return rec, nil
}

func (p *Pipeline) dedupe(basics []models.BasicRecord) []models.BasicRecord {
	seen := utils.NewStringSet()
	out := make([]models.BasicRecord, 0, len(basics))
	for _, b := range basics {
		if !seen.Add(b.Identifier) {
			p.logger.Debug("[pipeline] Dropping duplicate notice %s", b.Identifier)
			continue
		}
		out = append(out, b)
	}
	return out
}
