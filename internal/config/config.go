package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Oracle   OracleConfig   `mapstructure:"oracle"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Report   ReportConfig   `mapstructure:"report"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Upkeep  string `mapstructure:"upkeep"`
}

type OracleConfig struct {
	FeedURL            string        `mapstructure:"feed_url"`
	StreamURL          string        `mapstructure:"stream_url"`
	StreamEnabled      bool          `mapstructure:"stream_enabled"`
	Timeout            time.Duration `mapstructure:"timeout"`
	FreshnessThreshold time.Duration `mapstructure:"freshness_threshold"`
}

type ExchangeConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RateBurst     int           `mapstructure:"rate_burst"`
	BaseAsset     string        `mapstructure:"base_asset"`
	QuoteAsset    string        `mapstructure:"quote_asset"`
}

type KeeperConfig struct {
	BatchCap          int           `mapstructure:"batch_cap"`
	MinAlertCooldown  time.Duration `mapstructure:"min_alert_cooldown"`
	MinReportInterval time.Duration `mapstructure:"min_report_interval"`
}

type ExecutorConfig struct {
	// Address is the executor's own custody identity at the wrapper.
	Address            string        `mapstructure:"address"`
	SwapDeadline       time.Duration `mapstructure:"swap_deadline"`
	DefaultSlippageBps int           `mapstructure:"default_slippage_bps"`
}

type FeesConfig struct {
	// Asset is the fee asset symbol; empty disables fee accrual entirely.
	Asset      string  `mapstructure:"asset"`
	PerTrigger float64 `mapstructure:"per_trigger"`
	Collector  string  `mapstructure:"collector"`
}

type AuthConfig struct {
	Disabled      bool   `mapstructure:"disabled"`
	OperatorToken string `mapstructure:"operator_token"`
}

type ReportConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.upkeep", "@every 30s")

	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.freshness_threshold", "1h")
	v.SetDefault("oracle.stream_enabled", false)

	v.SetDefault("exchange.timeout", "15s")
	v.SetDefault("exchange.rate_per_second", 5)
	v.SetDefault("exchange.rate_burst", 10)
	v.SetDefault("exchange.base_asset", "WETH")
	v.SetDefault("exchange.quote_asset", "USDC")

	v.SetDefault("keeper.batch_cap", 10)
	v.SetDefault("keeper.min_alert_cooldown", "5m")
	v.SetDefault("keeper.min_report_interval", "1h")

	v.SetDefault("executor.address", "keeper-executor")
	v.SetDefault("executor.swap_deadline", "60s")
	v.SetDefault("executor.default_slippage_bps", 100)

	v.SetDefault("fees.asset", "")
	v.SetDefault("fees.per_trigger", 0.1)

	v.SetDefault("auth.disabled", false)

	v.SetDefault("report.timeout", "10s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
