package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tender-scraper/models"
	"tender-scraper/utils"
)

var (
	// ErrInvalidAmount is returned when an amount string holds no parsable number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoRates is returned when a rate response carries no rate table.
	ErrNoRates = errors.New("no exchange rates in response")

	// amountNoiseRegexp matches everything except digits and separators.
	amountNoiseRegexp = regexp.MustCompile(`[^\d,.]`)

	amountPrinter = message.NewPrinter(language.English)
)

// NormalizeAmount parses a free-form amount such as "1.234,56 EUR" or
// "1,234.56". When both separators occur the rightmost one is the decimal
// separator; a lone comma is treated as the decimal separator.
//
//	"1.234,56" → 1234.56
//	"1,234.56" → 1234.56
//	"12,5"     → 12.5
func NormalizeAmount(text string) (float64, error) {
	cleaned := amountNoiseRegexp.ReplaceAllString(text, "")

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if dot < comma {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case comma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return amount, nil
}

// FormatAmount renders an amount with thousands grouping and two decimals,
// followed by the currency code: "1,234.56 EUR".
func FormatAmount(amount float64, currency string) string {
	return amountPrinter.Sprintf("%.2f %s", amount, currency)
}

// Conversion is the outcome of a currency conversion. When Converted is
// false, Amount still holds the original amount and Display explains why.
type Conversion struct {
	Display   string
	Amount    float64
	Converted bool
}

// RateSource returns the exchange rates for one base currency, keyed by
// target currency code.
type RateSource interface {
	Rates(ctx context.Context, base string) (map[string]float64, error)
}

// Converter converts amounts between currencies on a best-effort basis.
// Rate tables are cached per base currency for the converter's lifetime.
type Converter struct {
	rates   RateSource
	target  string
	timeout time.Duration
	logger  *utils.Logger

	mu    sync.Mutex
	cache map[string]map[string]float64
}

// NewConverter creates a Converter whose ConvertText targets the given currency.
func NewConverter(rates RateSource, target string, timeout time.Duration, logger *utils.Logger) *Converter {
	return &Converter{
		rates:   rates,
		target:  currencyCode(target),
		timeout: timeout,
		logger:  logger,
		cache:   make(map[string]map[string]float64),
	}
}

// Convert converts amount from one currency to another. It never fails:
// lookup problems yield a Conversion carrying the unconverted amount.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) Conversion {
	from, to = currencyCode(from), currencyCode(to)

	if from == "" || from == models.Unknown || amount == 0 {
		return Conversion{Display: models.Unknown + " (no currency or amount)"}
	}
	if from == to {
		return Conversion{Display: FormatAmount(amount, to), Amount: amount, Converted: true}
	}

	table, err := c.lookup(ctx, from)
	if err != nil {
		c.logger.Warn("[currency] Rate lookup for %s failed: %v", from, err)
		return Conversion{Display: models.Unknown + " (rate lookup failed)", Amount: amount}
	}

	rate, ok := table[to]
	if !ok || rate <= 0 {
		c.logger.Warn("[currency] No %s rate in %s table", to, from)
		return Conversion{Display: fmt.Sprintf("%s (no rate for %s)", models.Unknown, to), Amount: amount}
	}

	converted := amount * rate
	return Conversion{Display: FormatAmount(converted, to), Amount: converted, Converted: true}
}

// ConvertText normalizes a printed amount and converts it to the target
// currency, returning the display string.
func (c *Converter) ConvertText(ctx context.Context, amountText, currency string) string {
	amount, err := NormalizeAmount(amountText)
	if err != nil {
		c.logger.Debug("[currency] %v", err)
		return fmt.Sprintf("%s (invalid amount: %s)", models.Unknown, amountText)
	}
	return c.Convert(ctx, amount, currency, c.target).Display
}

func (c *Converter) lookup(ctx context.Context, base string) (map[string]float64, error) {
	c.mu.Lock()
	table, ok := c.cache[base]
	c.mu.Unlock()
	if ok {
		return table, nil
	}

	if c.rates == nil {
		return nil, errors.New("no rate source configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	table, err := c.rates.Rates(ctx, base)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[base] = table
	c.mu.Unlock()
	return table, nil
}

func currencyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ExchangeRateClient fetches rate tables from an exchangerate-api style
// endpoint: GET {baseURL}{CODE} → {"rates": {"INR": 90.1, ...}}.
type ExchangeRateClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewExchangeRateClient creates a client for the given endpoint prefix.
func NewExchangeRateClient(baseURL string, timeout time.Duration) *ExchangeRateClient {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ExchangeRateClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Rates returns the rate table for base.
func (c *ExchangeRateClient) Rates(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+currencyCode(base), nil)
	if err != nil {
		return nil, fmt.Errorf("rates: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("rates: decode: %w", err)
	}
	if len(body.Rates) == 0 {
		return nil, ErrNoRates
	}
	return body.Rates, nil
}
