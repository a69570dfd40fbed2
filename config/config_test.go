package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `app:
  name: "TestApp"
  version: "1.0"
engine:
  poll_interval: 5s
  error_backoff: 1s
risk:
  target_dollars: 50
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Engine.PollInterval.Std() != 5*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.Engine.PollInterval.Std())
	}
	if cfg.Risk.TargetDollars != 50 {
		t.Errorf("unexpected target dollars: %v", cfg.Risk.TargetDollars)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.StopPct != 0.10 {
		t.Errorf("unexpected stop pct: %v", cfg.Risk.StopPct)
	}
	if cfg.Strategy.Variant != "insider_simple" {
		t.Errorf("unexpected default variant: %s", cfg.Strategy.Variant)
	}
	if cfg.Broker.Snapshot.CloseHistory != 252 {
		t.Errorf("unexpected close history: %d", cfg.Broker.Snapshot.CloseHistory)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString("app:\n  version: \"1.0\"\n"); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected validation error for missing app.name")
	}
}

func TestLoadConfigUnknownVariant(t *testing.T) {
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	content := `app:
  name: "TestApp"
  version: "1.0"
strategy:
  variant: "arbitrage"
`
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if _, err := LoadConfig(f.Name()); err == nil {
		t.Fatalf("expected validation error for unknown strategy variant")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APCA_API_KEY_ID", "test-key")
	t.Setenv("APCA_API_SECRET_KEY", "test-secret")
	t.Setenv("SEC_USER_AGENT", "ops@example.com")

	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Broker.KeyID != "test-key" || cfg.Broker.SecretKey != "test-secret" {
		t.Errorf("broker credentials not taken from environment")
	}
	if cfg.Feed.UserAgent != "ops@example.com" {
		t.Errorf("feed user agent not taken from environment")
	}
}

func TestLoadConfigBadIndicatorPeriods(t *testing.T) {
	cases := []string{
		"rsi_period: 0",
		"macd_fast: 0",
		"macd_slow: 5\n    macd_fast: 12",
		"macd_signal: -1",
	}
	for _, override := range cases {
		f, err := os.CreateTemp("", "cfg-*.yml")
		if err != nil {
			t.Fatalf("create temp file: %v", err)
		}
		content := `app:
  name: "TestApp"
  version: "1.0"
strategy:
  momentum:
    ` + override + "\n"
		if _, err := f.WriteString(content); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
		f.Close()
		defer os.Remove(f.Name())

		if _, err := LoadConfig(f.Name()); err == nil {
			t.Errorf("expected validation error for %q", override)
		}
	}
}

func TestProductionRequiresBrokerCredentials(t *testing.T) {
	t.Setenv(appEnvVar, "production")
	t.Setenv("APCA_API_KEY_ID", "")
	t.Setenv("APCA_API_SECRET_KEY", "")

	path := writeTempConfig(t)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing credentials in production")
	}

	t.Setenv("APCA_API_KEY_ID", "live-key")
	t.Setenv("APCA_API_SECRET_KEY", "live-secret")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed with credentials present: %v", err)
	}
}

func TestAppEnvironment(t *testing.T) {
	t.Setenv(appEnvVar, "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Errorf("default environment = %q", env)
	}
	t.Setenv(appEnvVar, "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Errorf("alias not normalised: %q", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Errorf("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Errorf("development should not be production-like")
	}
}

func TestS3BucketValidation(t *testing.T) {
	valid := []string{"my-bucket", "logs.example", "abc"}
	invalid := []string{"ab", "-bad", "bad-", "double..dot", "UPPER"}
	for _, name := range valid {
		if !isValidS3Bucket(name) {
			t.Errorf("bucket %q should be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidS3Bucket(name) {
			t.Errorf("bucket %q should be invalid", name)
		}
	}
}
