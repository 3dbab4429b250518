package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Shopify   ShopifyConfig   `json:"shopify" yaml:"shopify"`
	Features  FeaturesConfig  `json:"features" yaml:"features"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `json:"port" yaml:"port"`
	Host      string `json:"host" yaml:"host"`
	EnableTLS bool   `json:"enable_tls" yaml:"enable_tls"`
	CertFile  string `json:"cert_file" yaml:"cert_file"`
	KeyFile   string `json:"key_file" yaml:"key_file"`
}

// DatabaseConfig selects the store. Path is used by sqlite3, DSN by postgres.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path" yaml:"path"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size" yaml:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins" yaml:"allowed_origins"`
}

// RateLimitConfig allows Rate requests per Window seconds for each client.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Rate    int  `json:"rate" yaml:"rate"`
	Window  int  `json:"window" yaml:"window"`
}

// CacheConfig configures the campaign cache. An empty RedisAddr keeps the
// cache in process.
type CacheConfig struct {
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	TTLSeconds    int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// ShopifyConfig holds the Admin API settings used for catalog reads and gift orders.
type ShopifyConfig struct {
	APIVersion  string `json:"api_version" yaml:"api_version"`
	ShopDomain  string `json:"shop_domain" yaml:"shop_domain"`
	AccessToken string `json:"access_token" yaml:"access_token"`
	OrderMode   string `json:"order_mode" yaml:"order_mode"`
	AppURL      string `json:"app_url" yaml:"app_url"`
}

type FeaturesConfig struct {
	Cache        bool `json:"cache" yaml:"cache"`
	EventHooks   bool `json:"event_hooks" yaml:"event_hooks"`
	CommerceSync bool `json:"commerce_sync" yaml:"commerce_sync"`
	ForceDraft   bool `json:"force_draft" yaml:"force_draft"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// LoadConfig loads configuration from a .env file, environment variables and
// an optional JSON or YAML config file. Environment variables take precedence
// over config file values.
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "./influencer_gifting.db",
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 1 << 20,
			AllowedOrigins:     "*",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Tracing: TracingConfig{
			Endpoint:    "http://localhost:14268/api/traces",
			Environment: "development",
		},
		Shopify: ShopifyConfig{
			APIVersion: "2025-10",
			OrderMode:  "draft",
		},
		Features: FeaturesConfig{
			Cache:      true,
			EventHooks: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setBool(&cfg.Server.EnableTLS, "SERVER_ENABLE_TLS")
	setString(&cfg.Server.CertFile, "SERVER_CERT_FILE")
	setString(&cfg.Server.KeyFile, "SERVER_KEY_FILE")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setString(&cfg.Database.DSN, "DATABASE_URL")

	setInt64(&cfg.Security.MaxRequestBodySize, "MAX_REQUEST_BODY_SIZE")
	setString(&cfg.Security.AllowedOrigins, "ALLOWED_ORIGINS")

	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")

	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "REDIS_DB")
	setInt(&cfg.Cache.TTLSeconds, "CACHE_TTL_SECONDS")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "JAEGER_ENDPOINT")
	setString(&cfg.Tracing.Environment, "ENVIRONMENT")
	setFloat(&cfg.Tracing.SampleRatio, "TRACING_SAMPLE_RATIO")

	setString(&cfg.Shopify.APIVersion, "SHOPIFY_API_VERSION")
	setString(&cfg.Shopify.ShopDomain, "SHOPIFY_SHOP_DOMAIN")
	setString(&cfg.Shopify.AccessToken, "SHOPIFY_ACCESS_TOKEN")
	setString(&cfg.Shopify.OrderMode, "SHOPIFY_ORDER_MODE")
	setString(&cfg.Shopify.AppURL, "SHOPIFY_APP_URL")

	setBool(&cfg.Features.Cache, "FEATURE_CACHE")
	setBool(&cfg.Features.EventHooks, "FEATURE_EVENT_HOOKS")
	setBool(&cfg.Features.CommerceSync, "FEATURE_COMMERCE_SYNC")
	setBool(&cfg.Features.ForceDraft, "FEATURE_FORCE_DRAFT")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

func setInt64(dst *int64, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = f
		}
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Security.MaxRequestBodySize <= 0 {
		return fmt.Errorf("max request body size must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1")
	}

	switch c.Shopify.OrderMode {
	case "draft", "order":
	default:
		return fmt.Errorf("shopify order mode must be draft or order, got %q", c.Shopify.OrderMode)
	}

	if c.Features.CommerceSync && c.Shopify.APIVersion == "" {
		return fmt.Errorf("shopify api version is required when commerce sync is enabled")
	}

	return nil
}

// CORSOrigins splits the allowed origins list.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Security.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
