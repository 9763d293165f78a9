package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"tender-scraper/models"
	"tender-scraper/parser"
	"tender-scraper/utils"
)

type fakeSource struct {
	listing    string
	listingErr error
	pages      map[string]string
	errs       map[string]error

	mu      sync.Mutex
	fetched []string
}

func (s *fakeSource) FetchListing(context.Context) (string, error) {
	return s.listing, s.listingErr
}

func (s *fakeSource) FetchDetail(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, id)
	s.mu.Unlock()
	if err, ok := s.errs[id]; ok {
		return "", err
	}
	return s.pages[id], nil
}

type staticListing struct {
	records []models.BasicRecord
	err     error
}

func (l staticListing) Parse(context.Context, string) ([]models.BasicRecord, error) {
	return l.records, l.err
}

type stubDetail struct {
	err error
}

func (d stubDetail) Parse(_ context.Context, rawHTML, _ string) (models.DetailRecord, error) {
	rec := models.NewDetailRecord()
	if d.err != nil {
		return rec, d.err
	}
	rec.BuyerName = rawHTML
	return rec, nil
}

func basic(id string) models.BasicRecord {
	b := models.NewBasicRecord()
	b.Identifier = id
	b.Description = "notice " + id
	return b
}

func newTestPipeline(src PageSource, listing ListingExtractor, detail DetailExtractor) *Pipeline {
	p := NewPipeline(src, listing, detail, 1, 0, utils.Discard())
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

const e2eListing = `<html><body><table>
<tbody class="CustomReactClasses-MuiTableBody-root">
  <tr class="CustomReactClasses-MuiTableRow-root"><td>#</td><td>Notice</td><td>Description</td></tr>
  <tr class="CustomReactClasses-MuiTableRow-root">
    <td></td>
    <td><a class="css-q5fadx" href="/en/notice/-/detail/654321-2024">654321-2024</a></td>
    <td><ul><li class="css-1evkt30"><span>Supply of adalimumab</span></li></ul></td>
    <td>Portugal</td>
    <td><ul><li class="css-v9egcd">10/01/2024</li></ul></td>
    <td><span class="css-v9egcd">12/02/2024</span></td>
  </tr>
</tbody></table></body></html>`

const e2eDetail = `<html><body>
<section id="summary">
  <div class="summary-section">
    <div><span class="label">Buyer</span><span class="data">Hospital de Santa Maria</span></div>
    <div><span class="label">Email</span><span class="data">compras@hsm.pt</span></div>
  </div>
  <div class="summary-section">
    <div><span class="label">Estimated value excluding VAT</span><span class="data">1.000,00</span><span class="data">EUR</span></div>
  </div>
  <div><span class="bold">LOT-0001</span></div>
  <div class="summary-section">
    <div><span class="label">Start date</span><span class="data">01/04/2024</span></div>
    <div><span class="label">Duration end date</span><span class="data">31/03/2025</span></div>
  </div>
</section>
<div id="formats-accordion">
  <div class="css-188ozac"><h4>PDF</h4><a id="EN" class="download-pdf" href="https://ted.europa.eu/en/notice/654321-2024/pdf">EN</a></div>
</div>
<div id="section1"><span data-labels-key="auxiliary|text|buyer">Buyer</span></div>
<div class="section-content">
  <span class="bold">ORG-0001</span>
  <div><span class="label">Official name</span><span class="data">Hospital de Santa Maria</span></div>
  <div><span class="label">Registration number</span><span class="data">PT-500000000</span></div>
  <div>
    <span class="bold">Roles of this organisation</span>
    <div><span class="label">Buyer</span><span class="label">Buyer</span><span class="label">Payer</span></div>
  </div>
</div>
<div id="section10"><span data-labels-key="auxiliary|text|notice-information">Notice information</span></div>
<div class="section-content">
  <div><span class="label">Notice identifier/version</span><span class="data">8c1d7e2a-0f3b</span><span class="data">01</span></div>
</div>
</body></html>`

func TestProcessEndToEnd(t *testing.T) {
	logger := utils.Discard()
	rates := &fakeRates{tables: map[string]map[string]float64{"EUR": {"INR": 90}}}
	converter := NewConverter(rates, "INR", time.Second, logger)
	localizer := NewLocalizer(&fakeTranslator{err: errors.New("offline")}, time.Second, logger)

	src := &fakeSource{pages: map[string]string{"654321-2024": e2eDetail}}
	p := newTestPipeline(src,
		parser.NewListingParser(localizer, logger),
		parser.NewDetailParser(localizer, converter, logger))

	records, err := p.Process(context.Background(), e2eListing)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Failed() {
		t.Fatalf("unexpected error marker %q", rec.Error)
	}

	want := map[string]string{
		"identifier":        "654321-2024",
		"description":       "Supply of adalimumab",
		"country":           "Portugal",
		"publication_date":  "10/01/2024",
		"deadline":          "12/02/2024",
		"buyer_name":        "Hospital de Santa Maria",
		"buyer_email":       "compras@hsm.pt",
		"tender_id":         "8c1d7e2a-0f3b - 01",
		"value_original":    "1.000,00",
		"currency_original": "EUR",
		"value_converted":   "90,000.00 INR",
		"start_date":        "01/04/2024",
		"end_date":          "31/03/2025",
		"pdf_link":          "https://ted.europa.eu/en/notice/654321-2024/pdf",
	}
	row := rec.Row(nil)
	for i, col := range models.Columns {
		if w, ok := want[col]; ok && row[i] != w {
			t.Errorf("%s: got %q, want %q", col, row[i], w)
		}
	}

	if len(rec.Organisations) != 1 {
		t.Fatalf("organisations: got %d, want 1", len(rec.Organisations))
	}
	org := rec.Organisations[0]
	if org.OrgID != "ORG-0001" || org.RegistrationNumber != "PT-500000000" {
		t.Errorf("organisation: %+v", org)
	}
	if want := []string{"Buyer", "Payer"}; !reflect.DeepEqual(org.Roles, want) {
		t.Errorf("roles: got %v, want %v", org.Roles, want)
	}
	if rec.Extra["scraped_at"] != "2024-03-01T12:00:00Z" {
		t.Errorf("scraped_at: got %q", rec.Extra["scraped_at"])
	}
}

func TestProcessInvalidNoticeNumberSkipsFetch(t *testing.T) {
	src := &fakeSource{}
	p := newTestPipeline(src, staticListing{records: []models.BasicRecord{basic("ABC123")}}, stubDetail{})

	records, err := p.Process(context.Background(), "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if !strings.Contains(records[0].Error, "invalid notice number format") {
		t.Errorf("Error: got %q", records[0].Error)
	}
	if records[0].Description != "notice ABC123" {
		t.Errorf("basic fields should be kept, got %+v", records[0].BasicRecord)
	}
	if len(src.fetched) != 0 {
		t.Errorf("detail fetched for invalid id: %v", src.fetched)
	}
}

func TestProcessPerRecordFailures(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{"1-2024": "Buyer One", "3-2024": "Buyer Three"},
		errs:  map[string]error{"2-2024": errors.New("navigation timeout")},
	}
	listing := staticListing{records: []models.BasicRecord{basic("1-2024"), basic("2-2024"), basic("x"), basic("3-2024")}}
	p := newTestPipeline(src, listing, stubDetail{})

	records, err := p.Process(context.Background(), "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var ids []string
	for _, r := range records {
		ids = append(ids, r.Identifier)
	}
	if want := []string{"1-2024", "2-2024", "x", "3-2024"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("order: got %v, want %v", ids, want)
	}

	if records[0].BuyerName != "Buyer One" || records[0].Failed() {
		t.Errorf("record 1: %+v", records[0])
	}
	if !strings.Contains(records[1].Error, "navigation timeout") || records[1].BuyerName != models.Unknown {
		t.Errorf("record 2: error=%q buyer=%q", records[1].Error, records[1].BuyerName)
	}
	if !records[2].Failed() {
		t.Error("record 3 should carry an error marker")
	}
	if records[3].BuyerName != "Buyer Three" {
		t.Errorf("record 4: %+v", records[3])
	}
}

func TestProcessDetailParseFailure(t *testing.T) {
	src := &fakeSource{pages: map[string]string{"1-2024": "<html>"}}
	p := newTestPipeline(src, staticListing{records: []models.BasicRecord{basic("1-2024")}},
		stubDetail{err: errors.New("tree walk failed")})

	records, err := p.Process(context.Background(), "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.HasPrefix(records[0].Error, "parsing failed") {
		t.Errorf("Error: got %q", records[0].Error)
	}
	if records[0].Identifier != "1-2024" {
		t.Errorf("Identifier: got %q", records[0].Identifier)
	}
}

func TestProcessHaltsOnUnavailableSource(t *testing.T) {
	src := &fakeSource{
		pages: map[string]string{"1-2024": "Buyer One", "3-2024": "Buyer Three"},
		errs:  map[string]error{"2-2024": fmt.Errorf("%w: browser crashed", ErrSourceUnavailable)},
	}
	listing := staticListing{records: []models.BasicRecord{basic("1-2024"), basic("2-2024"), basic("3-2024")}}
	p := newTestPipeline(src, listing, stubDetail{})

	records, err := p.Process(context.Background(), "")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want the 2 completed before the halt", len(records))
	}
	if records[0].BuyerName != "Buyer One" || !records[1].Failed() {
		t.Errorf("records: %+v", records)
	}
	for _, id := range src.fetched {
		if id == "3-2024" {
			t.Error("fetch attempted after the source became unavailable")
		}
	}
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	src := &fakeSource{pages: map[string]string{"1-2024": "Buyer One"}}
	p := newTestPipeline(src, staticListing{records: []models.BasicRecord{basic("1-2024")}}, stubDetail{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := p.Process(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want none", len(records))
	}
}

func TestProcessBatchFailures(t *testing.T) {
	cases := []struct {
		name    string
		listing staticListing
		want    error
	}{
		{"listing error", staticListing{err: parser.ErrNoResultsTable}, parser.ErrNoResultsTable},
		{"no notices", staticListing{}, ErrNoNotices},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := &fakeSource{}
			records, err := newTestPipeline(src, c.listing, stubDetail{}).Process(context.Background(), "")
			if !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
			if records != nil || len(src.fetched) != 0 {
				t.Errorf("no detail work expected, got records=%v fetched=%v", records, src.fetched)
			}
		})
	}
}

func TestProcessDropsDuplicateNotices(t *testing.T) {
	src := &fakeSource{pages: map[string]string{"1-2024": "Buyer One"}}
	listing := staticListing{records: []models.BasicRecord{basic("1-2024"), basic("1-2024")}}

	records, err := newTestPipeline(src, listing, stubDetail{}).Process(context.Background(), "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(records) != 1 || len(src.fetched) != 1 {
		t.Errorf("got %d records and %d fetches, want 1 each", len(records), len(src.fetched))
	}
}

func TestRunListingFetchError(t *testing.T) {
	src := &fakeSource{listingErr: ErrSourceUnavailable}
	_, err := newTestPipeline(src, staticListing{}, stubDetail{}).Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("got %v, want ErrSourceUnavailable", err)
	}
}

func TestProcessConcurrentKeepsListingOrder(t *testing.T) {
	pages := map[string]string{}
	var listed []models.BasicRecord
	for i := 1; i <= 8; i++ {
		id := fmt.Sprintf("%d-2024", i)
		pages[id] = "Buyer " + id
		listed = append(listed, basic(id))
	}
	src := &fakeSource{pages: pages}
	p := NewPipeline(src, staticListing{records: listed}, stubDetail{}, 4, 0, utils.Discard())

	records, err := p.Process(context.Background(), "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, r := range records {
		if r.Identifier != listed[i].Identifier || r.BuyerName != "Buyer "+listed[i].Identifier {
			t.Errorf("record %d: got %s/%s", i, r.Identifier, r.BuyerName)
		}
	}
}
