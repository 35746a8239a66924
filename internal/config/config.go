package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// HTTP Server
	Port       string
	AgencyName string

	// Storage
	DataBackend  string
	DataDir      string
	ArchiveDir   string
	InvoiceDir   string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Object storage mirror, disabled without a bucket
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// HTTP sessions and throttling
	SessionTTL     time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Workers
	RolloverDay      int
	RolloverInterval time.Duration
	SyncInterval     time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// source resolves a key. Environment variables win over the config file.
type source struct {
	file map[string]string
}

// Load reads the configuration from the environment only.
func Load() *Config {
	return load(source{})
}

// LoadFile reads a TOML file and overlays it under the environment. An empty
// path behaves like Load.
//
// Keys are the environment names, case-insensitive. Tables flatten with an
// underscore, so [s3] bucket = "x" is S3_BUCKET.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load(), nil
	}
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	file := make(map[string]string)
	flatten("", raw, file)
	return load(source{file: file}), nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = fmt.Sprint(v)
	}
}

func load(src source) *Config {
	cfg := &Config{
		Port:       src.getEnv("PORT", "8081"),
		AgencyName: src.getEnv("AGENCY_NAME", "Creative Agency"),

		DataBackend:  src.getEnv("DATA_BACKEND", "csv"),
		DataDir:      src.getEnv("DATA_DIR", "./data"),
		ArchiveDir:   src.getEnv("ARCHIVE_DIR", ""),
		InvoiceDir:   src.getEnv("INVOICE_DIR", "./invoices"),
		SQLiteDBPath: src.getEnv("SQLITE_DB_PATH", "./data/ledger.db"),

		AMQPURL:      src.getEnv("AMQP_URL", ""),
		AMQPExchange: src.getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    src.getEnv("AMQP_QUEUE", "mirror_tables"),

		GoogleSpreadsheetID:      src.getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: src.getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: src.getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", src.getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		S3Bucket:    src.getEnv("S3_BUCKET", ""),
		S3Region:    src.getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  src.getEnv("S3_ENDPOINT", ""),
		S3Prefix:    src.getEnv("S3_PREFIX", ""),
		S3AccessKey: src.getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: src.getEnv("S3_SECRET_KEY", ""),
		S3PathStyle: src.getEnvBool("S3_PATH_STYLE", false),

		SessionTTL:     src.getEnvDuration("SESSION_TTL", 30*time.Minute),
		RateLimitRPS:   src.getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: src.getEnvInt("RATE_LIMIT_BURST", 20),

		RolloverDay:      src.getEnvInt("ROLLOVER_DAY", 1),
		RolloverInterval: src.getEnvDuration("ROLLOVER_INTERVAL", time.Hour),
		SyncInterval:     src.getEnvDuration("SYNC_INTERVAL", 5*time.Minute),

		LogLevel:  src.getEnv("LOG_LEVEL", "info"),
		LogFormat: src.getEnv("LOG_FORMAT", "text"),
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.DataDir, "archives")
	}
	return cfg
}

var (
	validBackends   = []string{"csv", "memory", "sqlite", "sheets"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !oneOf(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "csv":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using csv backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		errors = append(errors, c.validateServiceAccount()...)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.S3Bucket != "" {
		if c.S3Region == "" {
			errors = append(errors, "S3 region is required when S3 bucket is set")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errors = append(errors, "S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid S3 endpoint '%s': must be an absolute URL", c.S3Endpoint))
			}
		}
	}

	if c.SessionTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 second", c.SessionTTL))
	}
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.RolloverDay < 1 || c.RolloverDay > 28 {
		errors = append(errors, fmt.Sprintf("invalid rollover day %d: must be between 1 and 28", c.RolloverDay))
	}
	if c.RolloverInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 second", c.RolloverInterval))
	}
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if !oneOf(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !oneOf(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateMirror checks the settings the sheets mirror worker needs on top
// of Validate.
func (c *Config) ValidateMirror() error {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the sheets mirror")
	}
	errors = append(errors, c.validateServiceAccount()...)
	if c.DataBackend == "sheets" {
		errors = append(errors, "the sheets mirror needs a primary backend other than sheets")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateServiceAccount() []string {
	if c.GoogleServiceAccountJSON != "" {
		return nil
	}
	if c.GoogleServiceAccountFile == "" {
		return []string{"either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets"}
	}
	if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
		return []string{fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile)}
	}
	return nil
}

func oneOf(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s source) getEnvInt(key string, defaultValue int) int {
	if value := s.lookup(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (s source) getEnvFloat(key string, defaultValue float64) float64 {
	if value := s.lookup(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func (s source) getEnvBool(key string, defaultValue bool) bool {
	if value := s.lookup(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (s source) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.lookup(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
