package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "180s" or "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Feed     FeedConfig     `yaml:"feed"`
	Broker   BrokerConfig   `yaml:"broker"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Engine   EngineConfig   `yaml:"engine"`
	State    StateConfig    `yaml:"state"`
	Audit    AuditConfig    `yaml:"audit"`
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
	Enabled        bool     `yaml:"enabled"`
	Region         string   `yaml:"region"`
	Namespace      string   `yaml:"namespace"`
	Dashboard      string   `yaml:"dashboard"`
	ReportInterval Duration `yaml:"report_interval"`
}

type FeedConfig struct {
	URL               string   `yaml:"url"`
	UserAgent         string   `yaml:"user_agent"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

type BrokerConfig struct {
	BaseURL        string         `yaml:"base_url"`
	DataURL        string         `yaml:"data_url"`
	KeyID          string         `yaml:"key_id"`
	SecretKey      string         `yaml:"secret_key"`
	RequestTimeout Duration       `yaml:"request_timeout"`
	Snapshot       SnapshotConfig `yaml:"snapshot"`
	Stream         StreamConfig   `yaml:"stream"`
}

// SnapshotConfig sizes the market-data windows used to assemble a snapshot.
type SnapshotConfig struct {
	VolumeDays        int `yaml:"volume_days"`
	WeekLowDays       int `yaml:"week_low_days"`
	VolatilityMinutes int `yaml:"volatility_minutes"`
	CloseHistory      int `yaml:"close_history"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type StrategyConfig struct {
	Variant  string                 `yaml:"variant"`
	Insider  InsiderStrategyConfig  `yaml:"insider"`
	Momentum MomentumStrategyConfig `yaml:"momentum"`
}

type InsiderStrategyConfig struct {
	SignificantRoles      []string `yaml:"significant_roles"`
	MinSuccessRate        float64  `yaml:"min_success_rate"`
	MinAvgDailyVolume     float64  `yaml:"min_avg_daily_volume"`
	MaxBidAskSpread       float64  `yaml:"max_bid_ask_spread"`
	MaxPctSinceWeekLow    float64  `yaml:"max_pct_since_week_low"`
	MaxIntradayVolatility float64  `yaml:"max_intraday_volatility"`
	MaxSlippage           float64  `yaml:"max_slippage"`
}

type MomentumStrategyConfig struct {
	MinAvgDailyVolume float64 `yaml:"min_avg_daily_volume"`
	ShortWindow       int     `yaml:"short_window"`
	LongWindow        int     `yaml:"long_window"`
	RSIPeriod         int     `yaml:"rsi_period"`
	RSIMin            float64 `yaml:"rsi_min"`
	RSIMax            float64 `yaml:"rsi_max"`
	MACDFast          int     `yaml:"macd_fast"`
	MACDSlow          int     `yaml:"macd_slow"`
	MACDSignal        int     `yaml:"macd_signal"`
	MultiTFRequired   int     `yaml:"multi_tf_required"`
}

type RiskConfig struct {
	TargetDollars float64  `yaml:"target_dollars"`
	StopPct       float64  `yaml:"stop_pct"`
	ProfitPct     float64  `yaml:"profit_pct"`
	MaxHold       Duration `yaml:"max_hold"`
}

type EngineConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	ErrorBackoff Duration `yaml:"error_backoff"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type AuditConfig struct {
	Dir string        `yaml:"dir"`
	S3  AuditS3Config `yaml:"s3"`
}

type AuditS3Config struct {
	Enabled         bool     `yaml:"enabled"`
	Bucket          string   `yaml:"bucket"`
	Region          string   `yaml:"region"`
	Prefix          string   `yaml:"prefix"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	UploadInterval  Duration `yaml:"upload_interval"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// defaultConfig carries every tunable's stock value; the YAML file only needs
// to override what differs.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Namespace:      "InsiderFlow",
			Dashboard:      "InsiderFlow",
			ReportInterval: Duration(30 * time.Second),
		},
		Feed: FeedConfig{
			URL:               "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=&count=100&output=atom",
			RequestTimeout:    Duration(10 * time.Second),
			RequestsPerSecond: 5,
			Burst:             1,
		},
		Broker: BrokerConfig{
			BaseURL:        "https://paper-api.alpaca.markets",
			DataURL:        "https://data.alpaca.markets",
			RequestTimeout: Duration(10 * time.Second),
			Snapshot: SnapshotConfig{
				VolumeDays:        30,
				WeekLowDays:       5,
				VolatilityMinutes: 30,
				CloseHistory:      252,
			},
			Stream: StreamConfig{
				URL: "wss://paper-api.alpaca.markets/stream",
			},
		},
		Strategy: StrategyConfig{
			Variant: "insider_simple",
			Insider: InsiderStrategyConfig{
				SignificantRoles:      []string{"CEO", "CFO", "Director"},
				MinSuccessRate:        0.4,
				MinAvgDailyVolume:     50000,
				MaxBidAskSpread:       0.05,
				MaxPctSinceWeekLow:    10,
				MaxIntradayVolatility: 0.02,
				MaxSlippage:           0.02,
			},
			Momentum: MomentumStrategyConfig{
				MinAvgDailyVolume: 50000,
				ShortWindow:       20,
				LongWindow:        50,
				RSIPeriod:         14,
				RSIMin:            40,
				RSIMax:            70,
				MACDFast:          12,
				MACDSlow:          26,
				MACDSignal:        9,
				MultiTFRequired:   2,
			},
		},
		Risk: RiskConfig{
			TargetDollars: 100,
			StopPct:       0.10,
			ProfitPct:     0.15,
			MaxHold:       Duration(30 * 24 * time.Hour),
		},
		Engine: EngineConfig{
			PollInterval: Duration(180 * time.Second),
			ErrorBackoff: Duration(60 * time.Second),
		},
		State: StateConfig{Dir: "state"},
		Audit: AuditConfig{
			Dir: "logs",
			S3: AuditS3Config{
				UploadInterval: Duration(15 * time.Minute),
			},
		},
	}
}

// applyEnvOverrides lets credentials and operator identity come from the
// environment instead of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Broker.KeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Broker.SecretKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SEC_USER_AGENT"); v != "" {
		cfg.Feed.UserAgent = strings.TrimSpace(v)
	}
	if cfg.Audit.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Audit.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Audit.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Audit.S3.Region = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if cfg.Feed.RequestsPerSecond <= 0 {
		return fmt.Errorf("feed.requests_per_second must be greater than 0")
	}

	if cfg.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be greater than 0")
	}
	if cfg.Engine.ErrorBackoff <= 0 {
		return fmt.Errorf("engine.error_backoff must be greater than 0")
	}

	if cfg.Risk.TargetDollars <= 0 {
		return fmt.Errorf("risk.target_dollars must be greater than 0")
	}
	if cfg.Risk.StopPct <= 0 || cfg.Risk.StopPct >= 1 {
		return fmt.Errorf("risk.stop_pct must be between 0 and 1")
	}
	if cfg.Risk.ProfitPct <= 0 {
		return fmt.Errorf("risk.profit_pct must be greater than 0")
	}
	if cfg.Risk.MaxHold <= 0 {
		return fmt.Errorf("risk.max_hold must be greater than 0")
	}

	switch cfg.Strategy.Variant {
	case "insider_simple", "momentum":
	default:
		return fmt.Errorf("strategy.variant %q is unknown", cfg.Strategy.Variant)
	}

	if m := cfg.Strategy.Momentum; m.ShortWindow <= 0 || m.LongWindow <= m.ShortWindow {
		return fmt.Errorf("strategy.momentum windows must satisfy 0 < short_window < long_window")
	}
	if m := cfg.Strategy.Momentum; m.RSIPeriod <= 0 {
		return fmt.Errorf("strategy.momentum.rsi_period must be greater than 0")
	}
	if m := cfg.Strategy.Momentum; m.MACDFast <= 0 || m.MACDSlow <= m.MACDFast || m.MACDSignal <= 0 {
		return fmt.Errorf("strategy.momentum macd periods must satisfy 0 < macd_fast < macd_slow and macd_signal > 0")
	}

	if IsProductionLike(AppEnvironment()) && (cfg.Broker.KeyID == "" || cfg.Broker.SecretKey == "") {
		return fmt.Errorf("broker credentials are required when %s is %s", appEnvVar, AppEnvironment())
	}

	if cfg.Audit.S3.Enabled {
		if cfg.Audit.S3.Bucket == "" {
			return fmt.Errorf("audit.s3.bucket is required when S3 archival is enabled")
		}
		if cfg.Audit.S3.Region == "" {
			return fmt.Errorf("audit.s3.region is required when S3 archival is enabled")
		}
		if !isValidS3Bucket(cfg.Audit.S3.Bucket) {
			return fmt.Errorf("audit.s3.bucket '%s' is invalid", cfg.Audit.S3.Bucket)
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
