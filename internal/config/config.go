package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// minWriteTimeout leaves room for a bulk update that uses the full ten
// attempts, which waits 42s between attempts on its own.
const minWriteTimeout = 45 * time.Second

// Config represents the full application configuration surface.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Store        StoreConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Bulk         BulkConfig
	Pricing      PricingConfig
	Discount     DiscountConfig
	Cart         CartConfig
	Sheets       SheetsConfig
	AuditWebhook AuditWebhookConfig
	Auth         AuthConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port         string
	WriteTimeout time.Duration
}

// LogConfig overrides the production log level.
type LogConfig struct {
	Level string
}

// StoreConfig selects the backing store.
type StoreConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// RedisConfig is optional; an empty Addr keeps snapshots, request claims and
// locks in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LedgerConfig holds the daily ledger settings.
type LedgerConfig struct {
	Timezone      string
	SaveAttempts  int
	Concurrency   int
	RetentionDays int
	PurgeCron     string
	SummaryCron   string
}

// BulkConfig holds the bulk engine defaults.
type BulkConfig struct {
	MaxRetries int
}

// PricingConfig bounds cart and ledger quantities.
type PricingConfig struct {
	QuantityMin float64
	QuantityMax float64
}

// DiscountConfig is the store-wide cart discount.
type DiscountConfig struct {
	Enabled   bool
	Percent   float64
	MinAmount float64
}

// CartConfig holds cart snapshot settings.
type CartConfig struct {
	SnapshotTTL time.Duration
}

// SheetsConfig contains configuration required to export audit rows to
// Google Sheets. Export is disabled when SpreadsheetID is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	AuditRange      string
}

// AuditWebhookConfig configures the optional audit forwarder.
type AuditWebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// AuthConfig holds the admin bearer token.
type AuthConfig struct {
	AdminToken string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	p := &parser{}
	cfg := &Config{
		Server: ServerConfig{
			Port:         getenvWithDefault("APP_PORT", "8080"),
			WriteTimeout: p.duration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getenvWithDefault("STORE_DRIVER", DriverMongoDB)),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "freshledger"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.int("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			Timezone:      getenvWithDefault("TIMEZONE", "Asia/Dhaka"),
			SaveAttempts:  p.int("LEDGER_SAVE_ATTEMPTS", 3),
			Concurrency:   p.int("LEDGER_SAVE_CONCURRENCY", 4),
			RetentionDays: p.int("LEDGER_RETENTION_DAYS", 0),
			PurgeCron:     getenvWithDefault("LEDGER_PURGE_CRON", "30 2 * * *"),
			SummaryCron:   getenvWithDefault("LEDGER_SUMMARY_CRON", "5 0 * * *"),
		},
		Bulk: BulkConfig{
			MaxRetries: p.int("BULK_MAX_RETRIES", 3),
		},
		Pricing: PricingConfig{
			QuantityMin: p.float("QUANTITY_MIN", 0.1),
			QuantityMax: p.float("QUANTITY_MAX", 1000),
		},
		Discount: DiscountConfig{
			Enabled:   p.bool("DISCOUNT_ENABLED", false),
			Percent:   p.float("DISCOUNT_PERCENT", 0),
			MinAmount: p.float("DISCOUNT_MIN_AMOUNT", 0),
		},
		Cart: CartConfig{
			SnapshotTTL: p.duration("CART_SNAPSHOT_TTL", 24*time.Hour),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_AUDIT_ID"),
			AuditRange:      getenvWithDefault("GOOGLE_SHEET_AUDIT_RANGE", "Audit!A:H"),
		},
		AuditWebhook: AuditWebhookConfig{
			URL:     os.Getenv("AUDIT_WEBHOOK_URL"),
			Token:   os.Getenv("AUDIT_WEBHOOK_TOKEN"),
			Timeout: p.duration("AUDIT_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			AdminToken: os.Getenv("ADMIN_API_TOKEN"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if strings.EqualFold(cfg.Ledger.SummaryCron, "off") {
		cfg.Ledger.SummaryCron = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.Server.WriteTimeout < minWriteTimeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must be at least %s", minWriteTimeout)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", DriverMongoDB, DriverMemory)
	}

	if c.Auth.AdminToken == "" {
		return errors.New("ADMIN_API_TOKEN must be provided")
	}

	if c.Ledger.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	switch {
	case c.Ledger.SaveAttempts < 1:
		return errors.New("LEDGER_SAVE_ATTEMPTS must be at least 1")
	case c.Ledger.Concurrency < 1:
		return errors.New("LEDGER_SAVE_CONCURRENCY must be at least 1")
	case c.Ledger.RetentionDays < 0:
		return errors.New("LEDGER_RETENTION_DAYS must not be negative")
	case c.Ledger.RetentionDays > 0 && c.Ledger.PurgeCron == "":
		return errors.New("LEDGER_PURGE_CRON must be provided when retention is enabled")
	}

	if c.Bulk.MaxRetries < 1 || c.Bulk.MaxRetries > 10 {
		return errors.New("BULK_MAX_RETRIES must be between 1 and 10")
	}

	if c.Pricing.QuantityMin <= 0 || c.Pricing.QuantityMax < c.Pricing.QuantityMin {
		return errors.New("QUANTITY_MIN must be positive and not above QUANTITY_MAX")
	}

	if c.Discount.Percent < 0 || c.Discount.Percent > 100 {
		return errors.New("DISCOUNT_PERCENT must be between 0 and 100")
	}
	if c.Discount.MinAmount < 0 {
		return errors.New("DISCOUNT_MIN_AMOUNT must not be negative")
	}

	if c.Sheets.SpreadsheetID != "" && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when GOOGLE_SHEET_AUDIT_ID is set")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser collects the first malformed variable so Load can report it once.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != "" && p.err == nil
}

func (p *parser) fail(key, value string, err error) {
	p.err = fmt.Errorf("%s has invalid value %q: %w", key, value, err)
}

func (p *parser) int(key string, fallback int) int {
	value, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	value, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	value, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return d
}
