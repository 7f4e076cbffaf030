// Package config loads service configuration from an optional YAML file,
// a .env file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"trading-setups/internal/logger"
	"trading-setups/internal/markethours"
	"trading-setups/internal/strategy"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/setups.yaml"

// Config holds all application configuration.
type Config struct {
	Service  string            `yaml:"service" envconfig:"SERVICE_NAME"`
	LogLevel string            `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Log      logger.FileConfig `yaml:"log"`

	Engine   EngineConfig    `yaml:"engine"`
	Strategy strategy.Config `yaml:"strategy"`
	Session  SessionConfig   `yaml:"session"`
	Bus      BusConfig       `yaml:"bus"`

	Feed     FeedConfig     `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// EngineConfig sizes the per-symbol state.
type EngineConfig struct {
	Cap1m              int           `yaml:"cap_1m" envconfig:"ENGINE_CAP_1M"`
	Cap5m              int           `yaml:"cap_5m" envconfig:"ENGINE_CAP_5M"`
	Cap60m             int           `yaml:"cap_60m" envconfig:"ENGINE_CAP_60M"`
	SnapshotMin1m      int           `yaml:"snapshot_min_1m" envconfig:"ENGINE_SNAPSHOT_MIN_1M"`
	SnapshotMin5m      int           `yaml:"snapshot_min_5m" envconfig:"ENGINE_SNAPSHOT_MIN_5M"`
	SnapshotMin60m     int           `yaml:"snapshot_min_60m" envconfig:"ENGINE_SNAPSHOT_MIN_60M"`
	QueueSize          int           `yaml:"queue_size" envconfig:"ENGINE_QUEUE_SIZE"`
	SuppressDuplicates bool          `yaml:"suppress_duplicates" envconfig:"ENGINE_SUPPRESS_DUPLICATES"`
	StaleTolerance     time.Duration `yaml:"stale_tolerance" envconfig:"ENGINE_STALE_TOLERANCE"`
}

// SessionConfig describes the trading session used by the ORB detector.
type SessionConfig struct {
	Timezone string   `yaml:"timezone" envconfig:"SESSION_TZ"`
	Open     string   `yaml:"open" envconfig:"SESSION_OPEN"`
	Close    string   `yaml:"close" envconfig:"SESSION_CLOSE"`
	Holidays []string `yaml:"holidays" envconfig:"SESSION_HOLIDAYS"`
}

// BusConfig sizes the event emitter queues.
type BusConfig struct {
	QueueSize        int `yaml:"queue_size" envconfig:"BUS_QUEUE_SIZE"`
	SubscriberBuffer int `yaml:"subscriber_buffer" envconfig:"BUS_SUBSCRIBER_BUFFER"`
}

// FeedConfig points at the upstream market-data websocket.
type FeedConfig struct {
	URL          string        `yaml:"url" envconfig:"FEED_URL"`
	Symbols      []string      `yaml:"symbols" envconfig:"FEED_SYMBOLS"`
	MaxReconnect time.Duration `yaml:"max_reconnect" envconfig:"FEED_MAX_RECONNECT"`

	// BuildBars aggregates trades into 1m bars locally, for feeds that
	// stream trades only.
	BuildBars bool `yaml:"build_bars" envconfig:"FEED_BUILD_BARS"`
}

// RedisConfig enables event publishing to Redis.
type RedisConfig struct {
	Addr         string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password     string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `yaml:"db" envconfig:"REDIS_DB"`
	LatestTTL    time.Duration `yaml:"latest_ttl" envconfig:"REDIS_LATEST_TTL"`
	StreamMaxLen int64         `yaml:"stream_max_len" envconfig:"REDIS_STREAM_MAXLEN"`
}

// SQLiteConfig configures the setup journal and bar archive.
type SQLiteConfig struct {
	Path          string        `yaml:"path" envconfig:"SQLITE_PATH"`
	ArchiveBars   bool          `yaml:"archive_bars" envconfig:"SQLITE_ARCHIVE_BARS"`
	BatchSize     int           `yaml:"batch_size" envconfig:"SQLITE_BATCH_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" envconfig:"SQLITE_FLUSH_INTERVAL"`
}

// GatewayConfig configures the REST/websocket API.
type GatewayConfig struct {
	Addr           string   `yaml:"addr" envconfig:"GATEWAY_ADDR"`
	TOTPSecret     string   `yaml:"totp_secret" envconfig:"GATEWAY_TOTP_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"GATEWAY_ALLOWED_ORIGINS"`
	ReplaySize     int      `yaml:"replay_size" envconfig:"GATEWAY_REPLAY_SIZE"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" envconfig:"METRICS_ADDR"`
}

// AlertsConfig configures alert delivery. Empty destinations are skipped.
type AlertsConfig struct {
	DiscordWebhook   string        `yaml:"discord_webhook" envconfig:"DISCORD_WEBHOOK_URL"`
	TelegramToken    string        `yaml:"telegram_token" envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string        `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	WebhookURL       string        `yaml:"webhook_url" envconfig:"ALERT_WEBHOOK_URL"`
	MinScore         int           `yaml:"min_score" envconfig:"ALERT_MIN_SCORE"`
	BreakerThreshold int           `yaml:"breaker_threshold" envconfig:"ALERT_BREAKER_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" envconfig:"ALERT_BREAKER_COOLDOWN"`
}

// ScheduleConfig configures the cron jobs. Specs use seconds precision.
type ScheduleConfig struct {
	PruneCron  string        `yaml:"prune_cron" envconfig:"SCHEDULE_PRUNE_CRON"`
	Retention  time.Duration `yaml:"retention" envconfig:"SCHEDULE_RETENTION"`
	StatusCron string        `yaml:"status_cron" envconfig:"SCHEDULE_STATUS_CRON"`
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		Service:  "setupengine",
		LogLevel: "info",
		Log:      logger.FileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Engine: EngineConfig{
			Cap1m: 500, Cap5m: 200, Cap60m: 100,
			SnapshotMin1m: 200, SnapshotMin5m: 50, SnapshotMin60m: 50,
			QueueSize:          1024,
			SuppressDuplicates: true,
		},
		Strategy: strategy.DefaultConfig(),
		Session: SessionConfig{
			Timezone: markethours.DefaultTimezone,
			Open:     markethours.DefaultOpen,
			Close:    markethours.DefaultClose,
		},
		Bus:     BusConfig{QueueSize: 4096, SubscriberBuffer: 1024},
		Feed:    FeedConfig{MaxReconnect: 30 * time.Second},
		Redis:   RedisConfig{LatestTTL: 24 * time.Hour, StreamMaxLen: 10000},
		SQLite:  SQLiteConfig{Path: "data/setups.db", ArchiveBars: true, BatchSize: 200, FlushInterval: 2 * time.Second},
		Gateway: GatewayConfig{Addr: ":8080", ReplaySize: 1000},
		Metrics: MetricsConfig{Addr: ":9090"},
		Alerts:  AlertsConfig{MinScore: 0, BreakerThreshold: 5, BreakerCooldown: time.Minute},
		Schedule: ScheduleConfig{
			PruneCron:  "0 */15 * * * *",
			Retention:  24 * time.Hour,
			StatusCron: "0 0 * * * *",
		},
	}
}

// Load builds the config: defaults, then the YAML file at path (missing file
// is fine), then .env, then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional; production sets real environment variables.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PathFromEnv returns CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Cap1m <= 0 || c.Engine.Cap5m <= 0 || c.Engine.Cap60m <= 0 {
		errs = append(errs, errors.New("engine caps must be positive"))
	}
	if c.Engine.Cap1m < 60 {
		errs = append(errs, fmt.Errorf("engine.cap_1m=%d cannot hold a 60m window", c.Engine.Cap1m))
	}
	if c.Bus.QueueSize <= 0 || c.Bus.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("bus queue sizes must be positive"))
	}
	if _, err := c.SessionCalendar(); err != nil {
		errs = append(errs, err)
	}
	if c.Strategy.RSIOversold >= c.Strategy.RSIOverbought {
		errs = append(errs, fmt.Errorf("strategy rsi_oversold %.0f must be below rsi_overbought %.0f",
			c.Strategy.RSIOversold, c.Strategy.RSIOverbought))
	}
	if c.Strategy.ORBMinMinutes > c.Strategy.ORBMaxMinutes {
		errs = append(errs, errors.New("strategy orb_min_minutes exceeds orb_max_minutes"))
	}
	if s := c.Gateway.TOTPSecret; s != "" {
		if _, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimRight(s, "="))); err != nil {
			errs = append(errs, fmt.Errorf("gateway.totp_secret is not base32: %w", err))
		}
	}
	if (c.Alerts.TelegramToken == "") != (c.Alerts.TelegramChatID == "") {
		errs = append(errs, errors.New("alerts: telegram token and chat id must be set together"))
	}
	return errors.Join(errs...)
}

// SessionCalendar builds the trading session from Session.
func (c *Config) SessionCalendar() (*markethours.Session, error) {
	var holidays []string
	if len(c.Session.Holidays) > 0 {
		holidays = c.Session.Holidays
	}
	return markethours.New(c.Session.Timezone, c.Session.Open, c.Session.Close, holidays)
}
