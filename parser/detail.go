package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tender-scraper/models"
	"tender-scraper/utils"
)

// Detail page markup.
const (
	summarySelector        = "section#summary"
	summaryBlockSelector   = "div.summary-section"
	sectionContentSelector = "div.section-content"
	formatsSelector        = "div#formats-accordion"
	pdfContainerSelector   = "div.css-188ozac"
	pdfLinkSelector        = "a#EN.download-pdf"
	orgPrefix              = "ORG-"
	rolesHeader            = "Roles of this organisation"
	noticeInfoSectionKey   = "auxiliary|text|notice-information"
)

var (
	buyerSectionKeys     = []string{"auxiliary|text|buyer", "Part I: Contracting authority"}
	procedureSectionKeys = []string{"auxiliary|text|procedure", "Part II: Object"}

	lotHeaderRegexp = regexp.MustCompile(`^LOT-\d+`)
)

// ErrEmptyDocument is returned for a detail page with no content at all.
var ErrEmptyDocument = errors.New("empty document")

// Converter turns a printed amount and currency code into a display string
// in the configured target currency.
type Converter interface {
	ConvertText(ctx context.Context, amountText, currency string) string
}

// DetailParser extracts a DetailRecord from a notice detail page.
type DetailParser struct {
	localizer Localizer
	converter Converter
	logger    *utils.Logger
}

// NewDetailParser creates a DetailParser. A nil localizer or converter
// disables translation or conversion respectively.
func NewDetailParser(localizer Localizer, converter Converter, logger *utils.Logger) *DetailParser {
	return &DetailParser{localizer: localizer, converter: converter, logger: logger}
}

// Parse extracts every detail field it can locate. Each field tries the
// compact summary block first and the full section scan second; a field that
// neither finds stays Unknown. Only a document that cannot be walked at all
// yields an error, in which case the returned record carries no data.
func (p *DetailParser) Parse(ctx context.Context, rawHTML, noticeID string) (rec models.DetailRecord, err error) {
	rec = models.NewDetailRecord()
	if strings.TrimSpace(rawHTML) == "" {
		return rec, ErrEmptyDocument
	}

	defer func() {
		if r := recover(); r != nil {
			rec = models.NewDetailRecord()
			err = fmt.Errorf("detail %s: parsing failed: %v", noticeID, r)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rec, fmt.Errorf("detail %s: parse html: %w", noticeID, err)
	}

	if name, ok := Cascade(doc, summaryBuyer("Buyer"), buyerSection("Official name")); ok {
		rec.BuyerName = p.localize(ctx, name)
	}
	if email, ok := Cascade(doc, summaryBuyer("Email"), buyerSection("Email")); ok {
		rec.BuyerEmail = email
	}

	if money, ok := Cascade[Money](doc, summaryValue, procedureValue); ok {
		rec.ValueOriginal = money.Amount
		rec.CurrencyOriginal = money.Currency
		if p.converter != nil {
			rec.ValueConverted = p.converter.ConvertText(ctx, money.Amount, money.Currency)
		}
	}

	if start, ok := Cascade(doc, summaryLotDate("Start date"), procedureDate("Start date")); ok {
		rec.StartDate = start
	}
	if end, ok := Cascade(doc, summaryLotDate("Duration end date"), procedureDate("End date")); ok {
		rec.EndDate = end
	}

	if link, ok := pdfLink(doc); ok {
		rec.PDFLink = link
	}

	rec.Organisations = p.organisations(ctx, doc)

	if id, ok := tenderID(doc); ok {
		rec.TenderID = p.localize(ctx, id)
	}

	p.logger.Debug("[detail] %s: buyer=%q value=%q %q window=%s..%s orgs=%d",
		noticeID, rec.BuyerName, rec.ValueOriginal, rec.CurrencyOriginal,
		rec.StartDate, rec.EndDate, len(rec.Organisations))

	return rec, nil
}

func summaryBuyer(label string) Strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		block := doc.Find(summarySelector).First().Find(summaryBlockSelector).First()
		if block.Length() == 0 {
			return "", false
		}
		return found(LabelValue(block, label))
	}
}

func buyerSection(label string) Strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		content := SectionContent(FirstSectionByKey(doc.Selection, buyerSectionKeys...))
		if BoldStartingWith(content, orgPrefix).Length() == 0 {
			return "", false
		}
		return found(LabelValue(content, label))
	}
}

func summaryValue(doc *goquery.Document) (Money, bool) {
	summary := doc.Find(summarySelector).First()
	return moneyFrom(LabelsContaining(summary, "Estimated value", "Total value").First())
}

func procedureValue(doc *goquery.Document) (Money, bool) {
	section := FirstSectionByKey(doc.Selection, procedureSectionKeys...)
	return moneyFrom(LabelsContaining(section, "Estimated total value", "Total value").First())
}

func moneyFrom(label *goquery.Selection) (Money, bool) {
	spans := DataSpans(label)
	if spans.Length() < 2 {
		return Money{}, false
	}
	m := Money{
		Amount:   TextOrLinkText(spans.Eq(0)),
		Currency: TextOrLinkText(spans.Eq(1)),
	}
	if _, ok := found(m.Amount); !ok {
		return Money{}, false
	}
	return m, true
}

// summaryLotDate reads a date from the summary block that follows the first
// "LOT-n" header.
func summaryLotDate(label string) Strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		header := doc.Find(summarySelector).First().Find("span.bold").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return lotHeaderRegexp.MatchString(strings.TrimSpace(s.Text()))
		}).First()
		if header.Length() == 0 {
			return "", false
		}
		dates := header.Closest("div").NextAllFiltered(summaryBlockSelector).First()
		if dates.Length() == 0 {
			return "", false
		}
		return found(LabelValue(dates, label))
	}
}

// procedureDate reads a date from the block holding the procedure section's
// duration labels.
func procedureDate(label string) Strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		section := FirstSectionByKey(doc.Selection, procedureSectionKeys...)
		dateLabel := LabelsContaining(section, "Start date", "Duration").First()
		if dateLabel.Length() == 0 {
			return "", false
		}
		container := dateLabel.ParentsFiltered("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !s.HasClass("section-content")
		}).First()
		if container.Length() == 0 {
			return "", false
		}
		return found(LabelValue(container, label))
	}
}

// pdfLink finds the English PDF download under the formats accordion.
func pdfLink(doc *goquery.Document) (string, bool) {
	header := doc.Find(formatsSelector).First().Find("h4").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "PDF"
	}).First()
	if header.Length() == 0 {
		return "", false
	}
	href, ok := header.Closest(pdfContainerSelector).Find(pdfLinkSelector).First().Attr("href")
	if !ok {
		return "", false
	}
	return found(strings.TrimSpace(href))
}

func (p *DetailParser) organisations(ctx context.Context, doc *goquery.Document) []models.Organisation {
	orgs := []models.Organisation{}

	doc.Find(sectionContentSelector).Each(func(_ int, section *goquery.Selection) {
		idTag := BoldStartingWith(section, orgPrefix).First()
		if idTag.Length() == 0 {
			return
		}

		name := LabelValue(section, "Official name")
		if name == unknown {
			return
		}

		orgs = append(orgs, models.Organisation{
			OrgID:              TextOrLinkText(idTag),
			OfficialName:       p.localize(ctx, name),
			RegistrationNumber: LabelValue(section, "Registration number"),
			Roles:              roles(section),
		})
	})

	return orgs
}

// roles collects the declared roles of one organisation, deduplicated and sorted.
func roles(section *goquery.Selection) []string {
	header := section.Find("span.bold").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), rolesHeader)
	}).First()
	if header.Length() == 0 {
		return []string{}
	}

	container := header.Closest("div")
	if container.Length() == 0 || container.Find("span.label").Length() == 0 {
		if sibling := header.NextAllFiltered("div").First(); sibling.Find("span.label").Length() > 0 {
			container = sibling
		}
	}

	set := make(map[string]struct{})
	container.Find("span.label").Each(func(_ int, s *goquery.Selection) {
		if role := NormaliseText(s.Text()); role != "" {
			set[role] = struct{}{}
		}
	})

	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// tenderID joins the two parts of "Notice identifier/version" as "id - version".
func tenderID(doc *goquery.Document) (string, bool) {
	content := SectionContent(SectionByKey(doc.Selection, noticeInfoSectionKey))
	spans := DataSpans(LabelsContaining(content, "Notice identifier/version").First())
	if spans.Length() == 0 {
		return "", false
	}

	first := TextOrLinkText(spans.Eq(0))
	second := ""
	if spans.Length() >= 2 {
		second = TextOrLinkText(spans.Eq(1))
	}
	return found(strings.Trim(first+" - "+second, " -"))
}

func (p *DetailParser) localize(ctx context.Context, text string) string {
	if p.localizer == nil {
		return text
	}
	return p.localizer.Localize(ctx, text)
}
