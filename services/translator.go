package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tender-scraper/models"
	"tender-scraper/utils"
)

const (
	// DefaultTranslateURL is the public endpoint used by GoogleTranslator.
	DefaultTranslateURL = "https://translate.googleapis.com/translate_a/single"

	maxTranslateChars = 5000
)

var (
	ErrEmptyTranslation = errors.New("empty translation")
	ErrTextTooLong      = errors.New("text too long to translate")
)

// Translator translates text between languages. source may be "auto".
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// NeedsTranslation reports whether text contains any non-ASCII rune.
// Pure-ASCII text is assumed to be English already, which misses
// ASCII-only foreign text.
func NeedsTranslation(text string) bool {
	for _, r := range text {
		if r >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

// Localizer renders free text in English on a best-effort basis. It never
// fails: any translation problem returns the input unchanged.
type Localizer struct {
	translator Translator
	timeout    time.Duration
	logger     *utils.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewLocalizer creates a Localizer. A nil translator makes Localize the identity.
func NewLocalizer(translator Translator, timeout time.Duration, logger *utils.Logger) *Localizer {
	return &Localizer{
		translator: translator,
		timeout:    timeout,
		logger:     logger,
		cache:      make(map[string]string),
	}
}

// Localize returns text in English, or text itself when it is empty,
// Unknown, pure ASCII, or cannot be translated.
func (l *Localizer) Localize(ctx context.Context, text string) string {
	if l == nil || l.translator == nil {
		return text
	}
	if text == "" || text == models.Unknown || !NeedsTranslation(text) {
		return text
	}

	l.mu.Lock()
	cached, ok := l.cache[text]
	l.mu.Unlock()
	if ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	translated, err := l.translator.Translate(ctx, text, "auto", "en")
	if err != nil {
		l.logger.Warn("[translate] Keeping original text: %v", err)
		return text
	}
	translated = strings.TrimSpace(translated)
	if translated == "" {
		return text
	}

	l.mu.Lock()
	l.cache[text] = translated
	l.mu.Unlock()
	return translated
}

// GoogleTranslator calls the public translate_a/single endpoint.
type GoogleTranslator struct {
	endpoint   string
	httpClient *http.Client
}

// NewGoogleTranslator creates a translator for endpoint, or
// DefaultTranslateURL when endpoint is empty.
func NewGoogleTranslator(endpoint string, timeout time.Duration) *GoogleTranslator {
	if endpoint == "" {
		endpoint = DefaultTranslateURL
	}
	return &GoogleTranslator{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Translate implements Translator.
func (g *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if utf8.RuneCountInString(text) > maxTranslateChars {
		return "", ErrTextTooLong
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: unexpected status %d", resp.StatusCode)
	}

	// [[["translated","original",...],...],null,"de",...]
	var payload []any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("translate: decode: %w", err)
	}
	if len(payload) == 0 {
		return "", ErrEmptyTranslation
	}

	segments, _ := payload[0].([]any)
	var b strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyTranslation
	}
	return b.String(), nil
}
