package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultSearchURL lists 2024 notices mentioning Adalimumab.
	DefaultSearchURL = "https://ted.europa.eu/en/search/result?FT=Adalimumab&search-scope=ALL&onlyLatestVersions=false&publicationDateFrom=20240101&publicationDateTo=20241231&page=1"
	// DefaultDetailURLTemplate is expanded by DetailURL; {id} is the notice number.
	DefaultDetailURLTemplate = "https://ted.europa.eu/en/notice/-/detail/{id}"

	FetchModeBrowser = "browser"
	FetchModeStatic  = "static"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	SearchURL         string
	DetailURLTemplate string
	FetchMode         string

	ChromeBin      string
	Headless       bool
	PageTimeoutSec int
	WaitTimeoutSec int
	SettleMs       int

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	HTTPTimeoutSec int

	TargetCurrency   string
	ExchangeRateURL  string
	TranslateEnabled bool
	TranslateURL     string

	CSVOutputPath string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MongoURI        string
	MongoDB         string
	MongoCollection string

	LogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		SearchURL:         getEnv("SEARCH_URL", DefaultSearchURL),
		DetailURLTemplate: getEnv("DETAIL_URL_TEMPLATE", DefaultDetailURLTemplate),
		FetchMode:         strings.ToLower(getEnv("FETCH_MODE", FetchModeBrowser)),

		ChromeBin:      getEnv("CHROME_BIN", ""),
		Headless:       getEnvBool("HEADLESS", true),
		PageTimeoutSec: getEnvInt("PAGE_TIMEOUT_SEC", 60),
		WaitTimeoutSec: getEnvInt("WAIT_TIMEOUT_SEC", 30),
		SettleMs:       getEnvInt("SETTLE_MS", 2000),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		HTTPTimeoutSec: getEnvInt("HTTP_TIMEOUT_SEC", 10),

		TargetCurrency:   getEnv("TARGET_CURRENCY", "INR"),
		ExchangeRateURL:  getEnv("EXCHANGE_RATE_URL", "https://api.exchangerate-api.com/v4/latest/"),
		TranslateEnabled: getEnvBool("TRANSLATE_ENABLED", true),
		TranslateURL:     getEnv("TRANSLATE_URL", "https://translate.googleapis.com/translate_a/single"),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/ted_notices.csv"),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "tender_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDB:         getEnv("MONGO_DB", "tenders"),
		MongoCollection: getEnv("MONGO_COLLECTION", "notices"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// DetailURL expands DetailURLTemplate for a notice number.
func (c *Config) DetailURL(noticeID string) string {
	return strings.ReplaceAll(c.DetailURLTemplate, "{id}", url.PathEscape(noticeID))
}

// PageTimeout bounds one page load including retries' individual attempts.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSec) * time.Second
}

// WaitTimeout bounds the wait for a page's marker element.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSec) * time.Second
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
