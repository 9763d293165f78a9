package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"tender-scraper/models"
	"tender-scraper/utils"
)

// ReportService summarises a finished batch.
type ReportService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger, out: os.Stdout}
}

// Generate counts outcomes across records.
func (s *ReportService) Generate(records []models.MergedRecord) *models.Report {
	report := &models.Report{
		RecordsByCountry: make(map[string]int),
		Errors:           make(map[string]string),
	}

	report.TotalRecords = len(records)
	for _, r := range records {
		if r.Failed() {
			report.Failed++
			report.Errors[r.Identifier] = r.Error
		} else {
			report.Succeeded++
		}
		if r.BuyerName != models.Unknown {
			report.WithBuyer++
		}
		if r.ValueOriginal != models.Unknown {
			report.WithValue++
		}
		if r.ValueConverted != models.Unknown && !strings.HasPrefix(r.ValueConverted, models.Unknown+" ") {
			report.WithConversion++
		}
		report.Organisations += len(r.Organisations)
		if r.Country != models.Unknown && r.Country != "" {
			report.RecordsByCountry[r.Country]++
		}
	}

	return report
}

func (s *ReportService) Print(r *models.Report) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	w := s.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  TENDER SCRAPE SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Notices processed      : \033[1m%d\033[0m\n", r.TotalRecords)
	fmt.Fprintf(w, "  Successfully scraped   : \033[1;32m%d\033[0m\n", r.Succeeded)
	fmt.Fprintf(w, "  With errors            : \033[1;31m%d\033[0m\n", r.Failed)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Field Coverage\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Buyer found            : %d\n", r.WithBuyer)
	fmt.Fprintf(w, "  Value found            : %d\n", r.WithValue)
	fmt.Fprintf(w, "  Value converted        : %d\n", r.WithConversion)
	fmt.Fprintf(w, "  Organisations listed   : %d\n", r.Organisations)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Notices by Country\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.RecordsByCountry) == 0 {
		fmt.Fprintf(w, "  No country data\n")
	} else {
		for _, cc := range countriesByCount(r.RecordsByCountry) {
			bar := strings.Repeat("█", cc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(cc.country, 28), bar, cc.count)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "\033[1;33m  Errors\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		ids := make([]string, 0, len(r.Errors))
		for id := range r.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "  %-14s %s\n", id, truncate(r.Errors[id], 60))
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type countryCount struct {
	country string
	count   int
}

// countriesByCount orders countries by count descending, then by name.
func countriesByCount(m map[string]int) []countryCount {
	out := make([]countryCount, 0, len(m))
	for c, n := range m {
		out = append(out, countryCount{c, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].country < out[j].country
	})
	return out
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
