package ted

import (
	"context"
	"errors"
	"testing"

	"tender-scraper/config"
	"tender-scraper/services"
	"tender-scraper/utils"
)

func TestFindChromeBinaryPrefersConfigured(t *testing.T) {
	t.Setenv("CHROME_BIN", "/from/env")

	if got := findChromeBinary("/opt/chrome"); got != "/opt/chrome" {
		t.Errorf("configured: got %q", got)
	}
	if got := findChromeBinary(""); got != "/from/env" {
		t.Errorf("env: got %q", got)
	}
}

func TestFetchWithoutStartIsUnavailable(t *testing.T) {
	cfg := &config.Config{
		SearchURL:         config.DefaultSearchURL,
		DetailURLTemplate: config.DefaultDetailURLTemplate,
		MaxRetries:        1,
	}
	b := New(cfg, utils.Discard())

	if _, err := b.FetchListing(context.Background()); !errors.Is(err, services.ErrSourceUnavailable) {
		t.Errorf("FetchListing: got %v, want ErrSourceUnavailable", err)
	}
	if _, err := b.FetchDetail(context.Background(), "123456-2024"); !errors.Is(err, services.ErrSourceUnavailable) {
		t.Errorf("FetchDetail: got %v, want ErrSourceUnavailable", err)
	}
	b.Close()
}

var _ services.PageSource = (*Browser)(nil)
