package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Cron       CronConfig      `mapstructure:"cron"`
	Delivery   DeliveryConfig  `mapstructure:"delivery"`
	Gemini     GeminiConfig    `mapstructure:"gemini"`
	Resend     ResendConfig    `mapstructure:"resend"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Log        LogConfig       `mapstructure:"log"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type CronConfig struct {
	Secret             string `mapstructure:"secret"`
	Spec               string `mapstructure:"spec"`        // robfig cron spec for `cron start`
	CycleStart         string `mapstructure:"cycle_start"` // YYYY-MM-DD rotation anchor
	BacklogWindowDays  int    `mapstructure:"backlog_window_days"`
	BacklogConcurrency int    `mapstructure:"backlog_concurrency"`
}

type DeliveryConfig struct {
	BatchSize   int    `mapstructure:"batch_size"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	BaseURL     string `mapstructure:"base_url"`
	SenderEmail string `mapstructure:"sender_email"`
}

type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ResendConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CycleStartDate parses the configured rotation anchor; zero time when unset
// or malformed, which callers map to the built-in default.
func (c CronConfig) CycleStartDate() time.Time {
	if c.CycleStart == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02", c.CycleStart, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (NLGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (NLGW_*)
	v.SetEnvPrefix("NLGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
