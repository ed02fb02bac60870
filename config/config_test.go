package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file for LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `app:
  name: "TestApp"
  version: "1.0"
market_data:
  symbol: "GY_CRUDE"
  poll_interval: 15s
compliance:
  cftc:
    endpoint: "https://cftc.example/reports"
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.MarketData.PollInterval != 15*time.Second {
		t.Errorf("unexpected poll interval: %s", cfg.MarketData.PollInterval)
	}
	if cfg.MarketData.CacheTTL != 5*time.Minute {
		t.Errorf("expected default cache ttl, got %s", cfg.MarketData.CacheTTL)
	}
	if cfg.Compliance.Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Compliance.Retry.MaxAttempts)
	}
	if cfg.Compliance.CFTC.Endpoint != "https://cftc.example/reports" {
		t.Errorf("unexpected cftc endpoint: %s", cfg.Compliance.CFTC.Endpoint)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("ADMIN_TOKEN", " secret ")
	t.Setenv("CFTC_API_TOKEN", "cftc-token")
	t.Setenv("MAS_INSTITUTION_ID", "MAS123456")
	t.Setenv("MARKET_DATA_API_KEY", "md-key")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Compliance.AdminToken != "secret" {
		t.Errorf("admin token not trimmed/overridden: %q", cfg.Compliance.AdminToken)
	}
	if cfg.Compliance.CFTC.BearerToken != "cftc-token" {
		t.Errorf("unexpected cftc token: %q", cfg.Compliance.CFTC.BearerToken)
	}
	if cfg.Compliance.MAS.InstitutionID != "MAS123456" {
		t.Errorf("unexpected institution id: %q", cfg.Compliance.MAS.InstitutionID)
	}
	if cfg.MarketData.APIKey != "md-key" {
		t.Errorf("unexpected api key: %q", cfg.MarketData.APIKey)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Events.Kafka.Brokers)
	}
}

func TestLoadConfigReportingIdentity(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	path := writeTempConfig(t, minimalConfig+`  reporting_entity: "5493001KJTIIGC8Y1R12"
  institution_license: "MAS123456"
  counterparty: "529900T8BM49AURSDO55"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	c := cfg.Compliance
	if c.ReportingEntity != "5493001KJTIIGC8Y1R12" || c.InstitutionLicense != "MAS123456" || c.Counterparty != "529900T8BM49AURSDO55" {
		t.Errorf("unexpected reporting identity: %q %q %q", c.ReportingEntity, c.InstitutionLicense, c.Counterparty)
	}
}

func TestProductionRequiresAdminToken(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ADMIN_TOKEN", "")

	_, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err == nil || !strings.Contains(err.Error(), "admin_token") {
		t.Fatalf("expected admin token error, got %v", err)
	}

	t.Setenv("ADMIN_TOKEN", "prod-secret")
	if _, err := LoadConfig(writeTempConfig(t, minimalConfig)); err != nil {
		t.Fatalf("expected success with admin token, got %v", err)
	}
}

func TestValidateConfigRejectsBadDrivers(t *testing.T) {
	cfg := Default()
	cfg.Cache.Driver = "memcached"
	if err := validateConfig(&cfg, EnvironmentDevelopment); err == nil {
		t.Error("expected unsupported cache driver error")
	}

	cfg = Default()
	cfg.Cache.Driver = "redis"
	if err := validateConfig(&cfg, EnvironmentDevelopment); err == nil {
		t.Error("expected missing redis addr error")
	}

	cfg = Default()
	cfg.Compliance.Audit.Driver = "postgres"
	if err := validateConfig(&cfg, EnvironmentDevelopment); err == nil {
		t.Error("expected missing dsn error")
	}

	cfg = Default()
	cfg.Compliance.MAS.Format = "JSON"
	if err := validateConfig(&cfg, EnvironmentDevelopment); err == nil {
		t.Error("expected report format error")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", " Stage ")
	if got := AppEnvironment(); got != EnvironmentStaging {
		t.Errorf("AppEnvironment() = %q, want staging", got)
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Error("staging should be production-like")
	}
	t.Setenv("APP_ENV", "")
	if got := AppEnvironment(); got != EnvironmentDevelopment {
		t.Errorf("AppEnvironment() = %q, want development", got)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Errorf("ResolveConfigPath(\"\") = %q", got)
	}
	if got := ResolveConfigPath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path should win, got %q", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
