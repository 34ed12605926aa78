package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "DEALS_INGESTOR_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	redisURLEnv       = "REDIS_URL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_ALERT_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Resolver      ResolverConfig     `yaml:"resolver"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Resilience    ResilienceConfig   `yaml:"resilience"`
	Affiliate     AffiliateConfig    `yaml:"affiliate"`
	Channels      []ChannelConfig    `yaml:"channels" validate:"required,min=1,dive"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DatabaseConfig describes the SQL store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=sqlite3 postgres"`
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"maxOpenConns" validate:"min=0"`
}

// RedisConfig describes the intake queue.
type RedisConfig struct {
	URL           string        `yaml:"url" validate:"required"`
	KeyPrefix     string        `yaml:"keyPrefix" validate:"required"`
	DeadLetterKey string        `yaml:"deadLetterKey" validate:"required"`
	BlockTimeout  time.Duration `yaml:"blockTimeout" validate:"gt=0"`
}

// HTTPConfig configures the operator API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines when retention runs.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" validate:"required"`
	Timezone       string         `yaml:"timezone"`
	RetentionDays  int            `yaml:"retentionDays" validate:"min=1"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Retention is the age after which terminal processing records are purged.
func (s SchedulerConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send alerts.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase" validate:"omitempty,url"`
}

// Enabled reports whether alerts can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// PipelineConfig bounds the worker pool and retries.
type PipelineConfig struct {
	Workers         int           `yaml:"workers" validate:"min=4,max=16"`
	MessageTimeout  time.Duration `yaml:"messageTimeout" validate:"gt=0"`
	PersistAttempts int           `yaml:"persistAttempts" validate:"min=1"`
	IgnoreHosts     []string      `yaml:"ignoreHosts"`
}

// ResolverConfig tunes redirect following.
type ResolverConfig struct {
	MaxHops int           `yaml:"maxHops" validate:"min=1,max=20"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// ScraperConfig tunes page fetching and extra profiles.
type ScraperConfig struct {
	Timeout   time.Duration   `yaml:"timeout" validate:"gt=0"`
	UserAgent string          `yaml:"userAgent"`
	Chrome    ChromeConfig    `yaml:"chrome"`
	Profiles  []ProfileConfig `yaml:"profiles" validate:"dive"`
}

// ChromeConfig enables headless rendering for render profiles.
type ChromeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	ExecPath string        `yaml:"execPath"`
	Timeout  time.Duration `yaml:"timeout"`
	Settle   time.Duration `yaml:"settle"`
}

// ProfileConfig adds or replaces a scraping profile. Selectors are keyed by
// field name and use "css" or "css@attr".
type ProfileConfig struct {
	Name      string              `yaml:"name" validate:"required"`
	Hosts     []string            `yaml:"hosts"`
	Render    bool                `yaml:"render"`
	Generic   bool                `yaml:"generic"`
	Selectors map[string][]string `yaml:"selectors"`
}

// ResilienceConfig is the per-host outbound policy.
type ResilienceConfig struct {
	MaxAttempts      int           `yaml:"maxAttempts" validate:"min=1,max=10"`
	InitialDelay     time.Duration `yaml:"initialDelay"`
	MaxDelay         time.Duration `yaml:"maxDelay"`
	RatePerSecond    float64       `yaml:"ratePerSecond" validate:"gt=0"`
	Burst            int           `yaml:"burst" validate:"min=1"`
	FailureThreshold int           `yaml:"failureThreshold" validate:"min=1"`
	Cooldown         time.Duration `yaml:"cooldown" validate:"gt=0"`
	AttemptTimeout   time.Duration `yaml:"attemptTimeout" validate:"gt=0"`
}

// AffiliateConfig supplies tag values for channels routed with network "auto".
type AffiliateConfig struct {
	Defaults map[string]string `yaml:"defaults"`
	Fallback string            `yaml:"fallback"`
}

// ChannelConfig is one routing table row.
type ChannelConfig struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name"`
	PageSlug    string `yaml:"pageSlug" validate:"required"`
	Network     string `yaml:"network" validate:"omitempty,oneof=amazon inrdeals cuelinks earnkaro deodap none auto"`
	TagValue    string `yaml:"tagValue"`
	ContentType string `yaml:"contentType" validate:"omitempty,oneof=product service app"`
	Currency    string `yaml:"currency" validate:"omitempty,len=3"`
	Featured    bool   `yaml:"featured"`
	TimerHours  int    `yaml:"timerHours" validate:"min=0"`
}

// Load reads .env and the YAML configuration (if present), then applies
// environment overrides and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path := getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides(getenv)
	cfg.bindTimezone()

	if len(cfg.Channels) == 0 {
		cfg.Channels = defaultChannels()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and channel id uniqueness.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := map[string]bool{}
	for _, ch := range c.Channels {
		if seen[ch.ID] {
			return fmt.Errorf("config: duplicate channel id %s", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) {
	if v := getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}

	if v := getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := getenv(logLevelEnv); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:deals.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on",
		},
		Redis: RedisConfig{
			URL:           "redis://localhost:6379/0",
			KeyPrefix:     "deals:intake:",
			DeadLetterKey: "deals:intake:dead",
			BlockTimeout:  5 * time.Second,
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{CronExpression: "30 3 * * *", Timezone: defaultTimezone, RetentionDays: 90, location: tz},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: "", APIBase: "https://api.telegram.org"},
		},
		Pipeline: PipelineConfig{
			Workers:         8,
			MessageTimeout:  2 * time.Minute,
			PersistAttempts: 3,
			IgnoreHosts:     []string{"t.me", "telegram.me", "wa.me", "chat.whatsapp.com"},
		},
		Resolver: ResolverConfig{MaxHops: 5, Timeout: 10 * time.Second},
		Scraper: ScraperConfig{
			Timeout: 20 * time.Second,
			Chrome:  ChromeConfig{Timeout: 30 * time.Second, Settle: 1500 * time.Millisecond},
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         10 * time.Second,
			RatePerSecond:    1,
			Burst:            2,
			FailureThreshold: 5,
			Cooldown:         time.Minute,
			AttemptTimeout:   15 * time.Second,
		},
		Affiliate: AffiliateConfig{
			Defaults: map[string]string{"amazon": "pickntrust03-21", "cuelinks": "243942", "inrdeals": "sha678089037"},
			Fallback: "cuelinks",
		},
		Channels: defaultChannels(),
	}
}

func defaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{ID: "-1002955338551", Name: "Prime Picks", PageSlug: "prime-picks", Network: "amazon", TagValue: "pickntrust03-21", Featured: true},
		{ID: "-1002982344997", Name: "Cue Picks", PageSlug: "cue-picks", Network: "cuelinks", TagValue: "243942", Featured: true},
		{ID: "-1003017626269", Name: "Value Picks", PageSlug: "value-picks", Network: "earnkaro", Featured: true},
		{ID: "-1002981205504", Name: "Click Picks", PageSlug: "click-picks", Network: "auto", Featured: true},
		{ID: "-1002902496654", Name: "Global Picks", PageSlug: "global-picks", Network: "auto", Featured: true},
		{ID: "-1003047967930", Name: "Travel Picks", PageSlug: "travel-picks", Network: "cuelinks", TagValue: "243942", ContentType: "service"},
		{ID: "-1003029983162", Name: "Deals Hub", PageSlug: "deals-hub", Network: "inrdeals", TagValue: "sha678089037", ContentType: "service"},
		{ID: "-1002991047787", Name: "Loot Box", PageSlug: "loot-box", Network: "none", TimerHours: 24},
	}
}
