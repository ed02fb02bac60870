package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Connectors ConnectorsConfig `yaml:"connectors"`
	Compliance ComplianceConfig `yaml:"compliance"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Cache      CacheConfig      `yaml:"cache"`
	Events     EventsConfig     `yaml:"events"`
	Storage    StorageConfig    `yaml:"storage"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch     bool          `yaml:"cloudwatch"`
	Namespace      string        `yaml:"namespace"`
	DashboardName  string        `yaml:"dashboard_name"`
	Region         string        `yaml:"region"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
	DiskPath        string        `yaml:"disk_path"`
}

// RetryConfig drives exponential backoff: BaseDelay doubles per attempt up to MaxDelay.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ConnectorConfig carries the endpoint and venue-specific settings of one connector.
type ConnectorConfig struct {
	Enabled   bool               `yaml:"enabled"`
	BaseURL   string             `yaml:"base_url"`
	StreamURL string             `yaml:"stream_url"`
	Timeout   time.Duration      `yaml:"timeout"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Settings  map[string]float64 `yaml:"settings"`
}

type ConnectorsConfig struct {
	CME    ConnectorConfig `yaml:"cme"`
	Guyana ConnectorConfig `yaml:"guyana"`
	SGX    ConnectorConfig `yaml:"sgx"`
}

// RegulatorConfig describes one regulator endpoint. Secrets are normally
// injected from the environment rather than the YAML file.
type RegulatorConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
	Format        string        `yaml:"format"`
	BearerToken   string        `yaml:"bearer_token"`
	InstitutionID string        `yaml:"institution_id"`
	APIKey        string        `yaml:"api_key"`
}

type AuditConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn"`
}

type ComplianceConfig struct {
	AdminToken string          `yaml:"admin_token"`
	Retry      RetryConfig     `yaml:"retry"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Audit      AuditConfig     `yaml:"audit"`
	CFTC       RegulatorConfig `yaml:"cftc"`
	MAS        RegulatorConfig `yaml:"mas"`

	// Identifiers written into reports generated from routed orders.
	ReportingEntity    string `yaml:"reporting_entity"`
	InstitutionLicense string `yaml:"institution_license"`
	Counterparty       string `yaml:"counterparty"`
}

// FieldPaths are gjson paths used to pick values out of price payloads.
type FieldPaths struct {
	Items               string `yaml:"items"`
	Price               string `yaml:"price"`
	Volume              string `yaml:"volume"`
	Timestamp           string `yaml:"timestamp"`
	QualityDifferential string `yaml:"quality_differential"`
	SulfurContent       string `yaml:"sulfur_content"`
	APIGravity          string `yaml:"api_gravity"`
}

type TradeRulesConfig struct {
	PriceCap         float64 `yaml:"price_cap"`
	MaxSulfurContent float64 `yaml:"max_sulfur_content"`
	OpenHour         int     `yaml:"open_hour"`
	CloseHour        int     `yaml:"close_hour"`
	Timezone         string  `yaml:"timezone"`
}

type MarketDataConfig struct {
	Symbol        string           `yaml:"symbol"`
	SourceURL     string           `yaml:"source_url"`
	HistoricalURL string           `yaml:"historical_url"`
	APIKey        string           `yaml:"api_key"`
	PollInterval  time.Duration    `yaml:"poll_interval"`
	Timeout       time.Duration    `yaml:"timeout"`
	CacheTTL      time.Duration    `yaml:"cache_ttl"`
	HistoryLimit  int              `yaml:"history_limit"`
	Retry         RetryConfig      `yaml:"retry"`
	Fields        FieldPaths       `yaml:"fields"`
	TradeRules    TradeRulesConfig `yaml:"trade_rules"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type CacheConfig struct {
	Driver string      `yaml:"driver"` // memory, redis
	Redis  RedisConfig `yaml:"redis"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Buffer  int      `yaml:"buffer"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// Default returns the configuration used for any key the YAML file leaves out.
func Default() Config {
	return Config{
		App:     AppConfig{Name: "energylink", Version: "dev"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{Namespace: "EnergyLink", DashboardName: "EnergyLink", ReportInterval: 30 * time.Second},
		Dashboard: DashboardConfig{
			Address:         ":8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
		Connectors: ConnectorsConfig{
			CME:    ConnectorConfig{Enabled: true, Timeout: 10 * time.Second, RateLimit: RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}},
			Guyana: ConnectorConfig{Enabled: true, Timeout: 10 * time.Second, RateLimit: RateLimitConfig{RequestsPerSecond: 5, BurstSize: 2}},
			SGX:    ConnectorConfig{Enabled: true, Timeout: 10 * time.Second, RateLimit: RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}},
		},
		Compliance: ComplianceConfig{
			Retry:     RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
			RateLimit: RateLimitConfig{RequestsPerSecond: 5, BurstSize: 1},
			Audit:     AuditConfig{Driver: "memory"},
			CFTC:      RegulatorConfig{Timeout: 30 * time.Second, Format: "XML"},
			MAS:       RegulatorConfig{Timeout: 30 * time.Second, Format: "CSV"},
		},
		MarketData: MarketDataConfig{
			Symbol:       "GY_CRUDE",
			PollInterval: 30 * time.Second,
			Timeout:      10 * time.Second,
			CacheTTL:     5 * time.Minute,
			HistoryLimit: 100,
			Retry:        RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
			Fields: FieldPaths{
				Items:               "data",
				Price:               "price",
				Volume:              "volume",
				Timestamp:           "timestamp",
				QualityDifferential: "qualityDifferential",
				SulfurContent:       "sulfurContent",
				APIGravity:          "apiGravity",
			},
			TradeRules: TradeRulesConfig{PriceCap: 1000, MaxSulfurContent: 3.5, OpenHour: 6, CloseHour: 22, Timezone: "UTC"},
		},
		Cache:  CacheConfig{Driver: "memory", Redis: RedisConfig{Prefix: "energylink:"}},
		Events: EventsConfig{Kafka: KafkaConfig{Topic: "energylink.events", Buffer: 256}},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config, AppEnvironment()); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides injects secrets and deployment-specific endpoints from the
// environment so they never need to live in the YAML file.
func applyEnvOverrides(config *Config) {
	setFromEnv(&config.Compliance.AdminToken, "ADMIN_TOKEN")
	setFromEnv(&config.Compliance.CFTC.BearerToken, "CFTC_API_TOKEN")
	setFromEnv(&config.Compliance.MAS.InstitutionID, "MAS_INSTITUTION_ID")
	setFromEnv(&config.Compliance.MAS.APIKey, "MAS_API_KEY")
	setFromEnv(&config.Compliance.Audit.DSN, "AUDIT_DSN")
	setFromEnv(&config.MarketData.APIKey, "MARKET_DATA_API_KEY")
	setFromEnv(&config.Cache.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&config.Cache.Redis.Password, "REDIS_PASSWORD")

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		config.Events.Kafka.Brokers = strings.Split(v, ",")
	}

	if config.Storage.S3.Enabled {
		setFromEnv(&config.Storage.S3.AccessKeyID, "AWS_ACCESS_KEY_ID")
		setFromEnv(&config.Storage.S3.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
		setFromEnv(&config.Storage.S3.Region, "AWS_REGION")
		setFromEnv(&config.Storage.S3.Bucket, "S3_BUCKET")
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config, env string) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if IsProductionLike(env) && cfg.Compliance.AdminToken == "" {
		return fmt.Errorf("compliance.admin_token (or ADMIN_TOKEN) is required in %s", env)
	}

	retry := cfg.Compliance.Retry
	if retry.MaxAttempts <= 0 {
		return fmt.Errorf("compliance.retry.max_attempts must be greater than 0")
	}
	if retry.BaseDelay <= 0 || retry.MaxDelay < retry.BaseDelay {
		return fmt.Errorf("compliance.retry requires 0 < base_delay <= max_delay")
	}

	switch cfg.Compliance.Audit.Driver {
	case "memory":
	case "sqlite", "postgres":
		if cfg.Compliance.Audit.DSN == "" {
			return fmt.Errorf("compliance.audit.dsn is required for driver %q", cfg.Compliance.Audit.Driver)
		}
	default:
		return fmt.Errorf("compliance.audit.driver %q is not supported", cfg.Compliance.Audit.Driver)
	}

	for name, reg := range map[string]RegulatorConfig{"cftc": cfg.Compliance.CFTC, "mas": cfg.Compliance.MAS} {
		if f := strings.ToUpper(reg.Format); f != "XML" && f != "CSV" {
			return fmt.Errorf("compliance.%s.format must be XML or CSV", name)
		}
	}

	md := cfg.MarketData
	if md.PollInterval <= 0 {
		return fmt.Errorf("market_data.poll_interval must be greater than 0")
	}
	if md.CacheTTL <= 0 {
		return fmt.Errorf("market_data.cache_ttl must be greater than 0")
	}
	if md.HistoryLimit <= 0 {
		return fmt.Errorf("market_data.history_limit must be greater than 0")
	}

	switch cfg.Cache.Driver {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.driver is redis")
		}
	default:
		return fmt.Errorf("cache.driver %q is not supported", cfg.Cache.Driver)
	}

	if cfg.Events.Kafka.Enabled {
		if len(cfg.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Events.Kafka.Topic == "" {
			return fmt.Errorf("events.kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
