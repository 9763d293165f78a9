package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tender-scraper/models"
	"tender-scraper/utils"
)

// Listing markup. The css-* classes are generated by the site's styling
// library and are the only stable hooks the results table offers.
const (
	resultsBodySelector = "tbody.CustomReactClasses-MuiTableBody-root"
	resultsRowSelector  = "tr.CustomReactClasses-MuiTableRow-root"
	noticeLinkSelector  = "a.css-q5fadx"
	descriptionSelector = "li.css-1evkt30"
	dateItemSelector    = "li.css-v9egcd"
	dateSpanSelector    = "span.css-v9egcd"
	minListingCells     = 6
	deadlineSeparator   = " / "
)

// ErrNoResultsTable is returned when the listing page has no results table.
var ErrNoResultsTable = errors.New("results table not found")

// Localizer translates a text fragment to English, returning it unchanged
// when translation is not needed or fails.
type Localizer interface {
	Localize(ctx context.Context, text string) string
}

// ListingParser turns a search results page into basic records.
type ListingParser struct {
	localizer Localizer
	logger    *utils.Logger
}

// NewListingParser creates a ListingParser. A nil localizer leaves text as-is.
func NewListingParser(localizer Localizer, logger *utils.Logger) *ListingParser {
	return &ListingParser{localizer: localizer, logger: logger}
}

// Parse extracts one BasicRecord per results row that carries an identifier.
func (p *ListingParser) Parse(ctx context.Context, rawHTML string) ([]models.BasicRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("listing: parse html: %w", err)
	}

	body := doc.Find(resultsBodySelector).First()
	if body.Length() == 0 {
		return nil, ErrNoResultsTable
	}

	rows := body.ChildrenFiltered(resultsRowSelector)
	p.logger.Info("[listing] Found %d potential notices on the page", rows.Length())

	records := make([]models.BasicRecord, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		rec, ok := p.ParseRow(ctx, row)
		if !ok || rec.Identifier == unknown {
			return
		}
		records = append(records, rec)
	})

	return records, nil
}

// ParseRow extracts a BasicRecord from a single results row. Rows with fewer
// than six cells, or with neither identifier nor description, are not records.
func (p *ListingParser) ParseRow(ctx context.Context, row *goquery.Selection) (models.BasicRecord, bool) {
	rec := models.NewBasicRecord()

	cells := row.ChildrenFiltered("td")
	if cells.Length() < minListingCells {
		return rec, false
	}

	if link := cells.Eq(1).Find(noticeLinkSelector).First(); link.Length() > 0 {
		rec.Identifier = orUnknown(NormaliseText(link.Text()))
	}

	if item := cells.Eq(2).Find("ul").First().Find(descriptionSelector).First(); item.Length() > 0 {
		var parts []string
		item.ChildrenFiltered("span").Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, s.Text())
		})
		if desc := NormaliseText(strings.Join(parts, "")); desc != "" {
			rec.Description = p.localize(ctx, desc)
		}
	}

	rec.Country = orUnknown(NormaliseText(cells.Eq(3).Text()))

	if pub := cells.Eq(4).Find("ul").First().Find(dateItemSelector).First(); pub.Length() > 0 {
		rec.PublicationDate = orUnknown(NormaliseText(pub.Text()))
	}

	rec.Deadline = deadlines(cells.Eq(5))

	if rec.Identifier == unknown && rec.Description == unknown {
		return rec, false
	}
	return rec, true
}

// deadlines joins every listed deadline so multi-lot rows keep all of them.
func deadlines(cell *goquery.Selection) string {
	if list := cell.Find("ul").First(); list.Length() > 0 {
		var dates []string
		list.Find(dateItemSelector).Each(func(_ int, li *goquery.Selection) {
			if d := NormaliseText(li.Text()); d != "" {
				dates = append(dates, d)
			}
		})
		return orUnknown(strings.Join(dates, deadlineSeparator))
	}
	if span := cell.Find(dateSpanSelector).First(); span.Length() > 0 {
		return orUnknown(NormaliseText(span.Text()))
	}
	return unknown
}

func (p *ListingParser) localize(ctx context.Context, text string) string {
	if p.localizer == nil {
		return text
	}
	return p.localizer.Localize(ctx, text)
}
