package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quanttrader/pkg/bybit"

	"github.com/spf13/viper"
)

type Config struct {
	Bybit     BybitConfig     `mapstructure:"bybit"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

// ExecutionConfig locates the external execution service.
type ExecutionConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BybitConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
}

type WSConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StreamConfig controls connection lifecycles and message routing.
type StreamConfig struct {
	// Reconnect backoff: delay = min(base * 2^(attempt-1), max), bounded by
	// max_attempts before the connection is declared failed.
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
	MaxAttempts   int           `mapstructure:"max_attempts"`

	// Minimum interval between delivered trade ticks per symbol. Klines are
	// never throttled.
	TickThrottle time.Duration `mapstructure:"tick_throttle"`

	// Kline intervals of the per-position monitoring bundle (minutes).
	BundleIntervals []string `mapstructure:"bundle_intervals"`
	// Kline interval of the always-on analysis feed (minutes).
	WatchInterval string `mapstructure:"watch_interval"`
	// Symbols that always keep an analysis feed open.
	WatchSymbols []string `mapstructure:"watch_symbols"`
	// How often the watchlist is reconciled against config.
	WatchReconcile time.Duration `mapstructure:"watch_reconcile"`
}

// Validate rejects kline intervals the exchange does not serve. A typo here
// would otherwise only surface as a rejected subscription at runtime.
func (c StreamConfig) Validate() error {
	for _, interval := range c.BundleIntervals {
		if _, err := bybit.ParseKlineInterval(interval); err != nil {
			return fmt.Errorf("stream.bundle_intervals: %w", err)
		}
	}
	if _, err := bybit.ParseKlineInterval(c.WatchInterval); err != nil {
		return fmt.Errorf("stream.watch_interval: %w", err)
	}
	return nil
}

// TradingConfig collects every decision-engine tunable in one place.
// Components receive this struct; nothing reads the environment directly.
type TradingConfig struct {
	Market        string  `mapstructure:"market"`         // "spot" or "futures"
	AllocationPct float64 `mapstructure:"allocation_pct"` // fraction of balance per entry
	Leverage      float64 `mapstructure:"leverage"`

	// Entry condition thresholds.
	RSIOversold     float64 `mapstructure:"rsi_oversold"`
	RSIOverbought   float64 `mapstructure:"rsi_overbought"`
	PivotTolerance  float64 `mapstructure:"pivot_tolerance"` // fraction of price, e.g. 0.005
	VolumeSurge     float64 `mapstructure:"volume_surge"`    // volume ratio threshold
	LongEntryVotes  int     `mapstructure:"long_entry_votes"`
	ShortEntryVotes int     `mapstructure:"short_entry_votes"`
	SwitchVotes     int     `mapstructure:"switch_votes"`

	// ATR-based stop loss / take profit.
	StopLossATRMult   float64 `mapstructure:"stop_loss_atr_mult"`
	TakeProfitATRMult float64 `mapstructure:"take_profit_atr_mult"`

	// Fixed percentage fallbacks when no ATR is cached.
	SpotStopLossPct      float64 `mapstructure:"spot_stop_loss_pct"`
	SpotTakeProfitPct    float64 `mapstructure:"spot_take_profit_pct"`
	FuturesStopLossPct   float64 `mapstructure:"futures_stop_loss_pct"`
	FuturesTakeProfitPct float64 `mapstructure:"futures_take_profit_pct"`
}

// CacheConfig controls the shared metric cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // empty disables the endpoint
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., BYBIT_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	if err := cfg.Stream.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Prod pulls exchange credentials from Parameter Store instead of yaml.
	if cfg.Log.Environment == "prod" {
		if key := getParameterStoreValue("QUANTTRADER_BYBIT_API_KEY", true); key != "" {
			cfg.Bybit.REST.APIKey = key
		}
		if secret := getParameterStoreValue("QUANTTRADER_BYBIT_API_SECRET", true); secret != "" {
			cfg.Bybit.REST.APISecret = secret
		}
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.reconnect_base", "2s")
	v.SetDefault("stream.reconnect_max", "60s")
	v.SetDefault("stream.max_attempts", 10)
	v.SetDefault("stream.tick_throttle", "300ms")
	v.SetDefault("stream.bundle_intervals", []string{"1", "5"})
	v.SetDefault("stream.watch_interval", "15")
	v.SetDefault("stream.watch_reconcile", "1m")

	v.SetDefault("trading.market", "futures")
	v.SetDefault("trading.allocation_pct", 0.1)
	v.SetDefault("trading.leverage", 5.0)
	v.SetDefault("trading.rsi_oversold", 30.0)
	v.SetDefault("trading.rsi_overbought", 70.0)
	v.SetDefault("trading.pivot_tolerance", 0.005)
	v.SetDefault("trading.volume_surge", 1.5)
	v.SetDefault("trading.long_entry_votes", 2)
	v.SetDefault("trading.short_entry_votes", 1)
	v.SetDefault("trading.switch_votes", 2)
	v.SetDefault("trading.stop_loss_atr_mult", 2.8)
	v.SetDefault("trading.take_profit_atr_mult", 1.3)
	v.SetDefault("trading.spot_stop_loss_pct", 0.03)
	v.SetDefault("trading.spot_take_profit_pct", 0.06)
	v.SetDefault("trading.futures_stop_loss_pct", 0.02)
	v.SetDefault("trading.futures_take_profit_pct", 0.04)

	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.sweep_interval", "1m")

	v.SetDefault("execution.timeout", "10s")
}
