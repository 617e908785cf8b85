package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	strs "enlist/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	SinkWebhook = "webhook"
	SinkKafka   = "kafka"
	SinkLog     = "log"

	minSessionSecretLength = 32
	devSessionSecret       = "dev-session-secret-change-in-production"
)

// Config is the full runtime configuration, built from defaults, an optional
// TOML file and the environment (highest precedence).
type Config struct {
	Env      string
	Addr     string
	LogLevel string
	// RequestTimeout bounds each request's context; zero disables the bound.
	RequestTimeout time.Duration
	Session        SessionConfig
	Discord        DiscordConfig
	Cooldown       CooldownConfig
	Redis          RedisConfig
	Notify         NotifyConfig
	RateLimit      RateLimitConfig
}

// SessionConfig controls the signed session and login-state cookies.
type SessionConfig struct {
	Secret       string
	Issuer       string
	TTL          time.Duration
	LoginTTL     time.Duration
	CookieSecure bool
}

// DiscordConfig holds identity provider credentials and endpoints.
type DiscordConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	AuthURL          string
	TokenURL         string
	APIBaseURL       string
	HandshakeTimeout time.Duration
}

// CooldownConfig selects the cooldown policy and the store backend.
type CooldownConfig struct {
	Duration    time.Duration
	Backend     string
	FilePath    string
	SQLitePath  string
	DatabaseURL string
}

// RedisConfig mirrors the go-redis pool options we expose.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NotifyConfig configures the notification sinks and dispatch bounds.
type NotifyConfig struct {
	Sinks            []string
	WebhookURL       string
	Title            string
	Timeout          time.Duration
	MaxInFlight      int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaCreateTopic bool
}

// RateLimitConfig is the per-client-IP token bucket.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// bindings maps viper keys to environment variables. The first five keep the
// names the service has always been deployed with.
var bindings = map[string]string{
	"session.secret":          "SESSION_SECRET",
	"discord.client_id":       "DISCORD_CLIENT_ID",
	"discord.client_secret":   "DISCORD_CLIENT_SECRET",
	"discord.redirect_url":    "REDIRECT_URI",
	"notify.webhook_url":      "DISCORD_WEBHOOK_URL",
	"env":                     "ENLIST_ENV",
	"addr":                    "ENLIST_ADDR",
	"log_level":               "LOG_LEVEL",
	"request_timeout":         "REQUEST_TIMEOUT",
	"session.issuer":          "SESSION_ISSUER",
	"session.ttl":             "SESSION_TTL",
	"session.login_ttl":       "LOGIN_TTL",
	"session.cookie_secure":   "COOKIE_SECURE",
	"discord.auth_url":        "DISCORD_AUTH_URL",
	"discord.token_url":       "DISCORD_TOKEN_URL",
	"discord.api_base_url":    "DISCORD_API_BASE_URL",
	"discord.handshake":       "HANDSHAKE_TIMEOUT",
	"cooldown.duration":       "COOLDOWN_DURATION",
	"cooldown.backend":        "COOLDOWN_BACKEND",
	"cooldown.file":           "COOLDOWN_FILE",
	"cooldown.sqlite_path":    "SQLITE_PATH",
	"cooldown.database_url":   "DATABASE_URL",
	"redis.url":               "REDIS_URL",
	"redis.pool_size":         "REDIS_POOL_SIZE",
	"redis.min_idle_conns":    "REDIS_MIN_IDLE_CONNS",
	"redis.dial_timeout":      "REDIS_DIAL_TIMEOUT",
	"redis.read_timeout":      "REDIS_READ_TIMEOUT",
	"redis.write_timeout":     "REDIS_WRITE_TIMEOUT",
	"notify.sinks":            "NOTIFY_SINKS",
	"notify.title":            "NOTIFY_TITLE",
	"notify.timeout":          "NOTIFY_TIMEOUT",
	"notify.max_in_flight":    "NOTIFY_MAX_IN_FLIGHT",
	"notify.breaker_failures": "NOTIFY_BREAKER_FAILURES",
	"notify.breaker_cooldown": "NOTIFY_BREAKER_COOLDOWN",
	"notify.kafka_brokers":    "KAFKA_BROKERS",
	"notify.kafka_topic":      "KAFKA_TOPIC",
	"notify.kafka_create":     "KAFKA_CREATE_TOPIC",
	"ratelimit.rps":           "RATE_LIMIT_RPS",
	"ratelimit.burst":         "RATE_LIMIT_BURST",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvProduction)
	v.SetDefault("addr", ":3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("session.issuer", "enlist")
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.login_ttl", 10*time.Minute)
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("discord.auth_url", "https://discord.com/oauth2/authorize")
	v.SetDefault("discord.token_url", "https://discord.com/api/oauth2/token")
	v.SetDefault("discord.api_base_url", "https://discord.com/api")
	v.SetDefault("discord.handshake", 10*time.Second)
	v.SetDefault("cooldown.duration", 7*24*time.Hour)
	v.SetDefault("cooldown.backend", BackendFile)
	v.SetDefault("cooldown.file", "cooldowns.json")
	v.SetDefault("cooldown.sqlite_path", "enlist.db")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("notify.title", "New Army Corps Application")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.max_in_flight", 16)
	v.SetDefault("notify.breaker_failures", 5)
	v.SetDefault("notify.breaker_cooldown", time.Minute)
	v.SetDefault("notify.kafka_topic", "enlist.applications")
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 20)
}

// Load reads configuration from the environment and, when ENLIST_CONFIG names
// a file, from that TOML file first.
func Load() (*Config, error) {
	v := viper.New()
	if err := v.BindEnv("config_file", "ENLIST_CONFIG"); err != nil {
		return nil, fmt.Errorf("bind config file env: %w", err)
	}
	return FromViper(v, v.GetString("config_file"))
}

// FromViper builds and validates a Config from v. Tests pass a fresh viper
// with values Set directly; configFile may be empty.
func FromViper(v *viper.Viper, configFile string) (*Config, error) {
	cfg, err := Decode(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads v into a Config without validating it. Operator tooling that
// only touches the cooldown store uses it with ValidateStore.
func Decode(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Env:            strings.ToLower(v.GetString("env")),
		Addr:           v.GetString("addr"),
		LogLevel:       v.GetString("log_level"),
		RequestTimeout: v.GetDuration("request_timeout"),
		Session: SessionConfig{
			Secret:       v.GetString("session.secret"),
			Issuer:       v.GetString("session.issuer"),
			TTL:          v.GetDuration("session.ttl"),
			LoginTTL:     v.GetDuration("session.login_ttl"),
			CookieSecure: v.GetBool("session.cookie_secure"),
		},
		Discord: DiscordConfig{
			ClientID:         v.GetString("discord.client_id"),
			ClientSecret:     v.GetString("discord.client_secret"),
			RedirectURL:      v.GetString("discord.redirect_url"),
			AuthURL:          v.GetString("discord.auth_url"),
			TokenURL:         v.GetString("discord.token_url"),
			APIBaseURL:       strings.TrimRight(v.GetString("discord.api_base_url"), "/"),
			HandshakeTimeout: v.GetDuration("discord.handshake"),
		},
		Cooldown: CooldownConfig{
			Duration:    v.GetDuration("cooldown.duration"),
			Backend:     strings.ToLower(v.GetString("cooldown.backend")),
			FilePath:    v.GetString("cooldown.file"),
			SQLitePath:  v.GetString("cooldown.sqlite_path"),
			DatabaseURL: v.GetString("cooldown.database_url"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Notify: NotifyConfig{
			Sinks:            strs.SplitListLower(v.GetString("notify.sinks")),
			WebhookURL:       v.GetString("notify.webhook_url"),
			Title:            v.GetString("notify.title"),
			Timeout:          v.GetDuration("notify.timeout"),
			MaxInFlight:      v.GetInt("notify.max_in_flight"),
			BreakerThreshold: v.GetInt("notify.breaker_failures"),
			BreakerCooldown:  v.GetDuration("notify.breaker_cooldown"),
			KafkaBrokers:     strs.SplitList(v.GetString("notify.kafka_brokers")),
			KafkaTopic:       v.GetString("notify.kafka_topic"),
			KafkaCreateTopic: v.GetBool("notify.kafka_create"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("ratelimit.rps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
	}

	if len(cfg.Notify.Sinks) == 0 {
		// Historic deployments only set the webhook URL.
		if cfg.Notify.WebhookURL != "" {
			cfg.Notify.Sinks = []string{SinkWebhook}
		} else {
			cfg.Notify.Sinks = []string{SinkLog}
		}
	}
	if cfg.Session.Secret == "" && cfg.IsDevelopment() {
		cfg.Session.Secret = devSessionSecret
	}
	return cfg, nil
}

// IsDevelopment reports whether development defaults may apply.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < minSessionSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength))
	}
	if c.Discord.ClientID == "" || c.Discord.ClientSecret == "" {
		errs = append(errs, errors.New("DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET are required"))
	}
	if c.Discord.RedirectURL == "" {
		errs = append(errs, errors.New("REDIRECT_URI is required"))
	}
	if c.Session.TTL <= 0 || c.Session.LoginTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL and LOGIN_TTL must be positive"))
	}
	if c.Cooldown.Duration <= 0 {
		errs = append(errs, errors.New("COOLDOWN_DURATION must be positive"))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must not be negative"))
	}

	if err := c.ValidateStore(); err != nil {
		errs = append(errs, err)
	}

	for _, sink := range c.Notify.Sinks {
		switch sink {
		case SinkLog:
		case SinkWebhook:
			if c.Notify.WebhookURL == "" {
				errs = append(errs, errors.New("DISCORD_WEBHOOK_URL is required for the webhook sink"))
			}
		case SinkKafka:
			if len(c.Notify.KafkaBrokers) == 0 || c.Notify.KafkaTopic == "" {
				errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notification sink %q", sink))
		}
	}
	if c.Notify.Timeout <= 0 || c.Notify.MaxInFlight <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT and NOTIFY_MAX_IN_FLIGHT must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateStore checks only the cooldown store settings.
func (c *Config) ValidateStore() error {
	var errs []error
	switch c.Cooldown.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Cooldown.FilePath == "" {
			errs = append(errs, errors.New("COOLDOWN_FILE is required for the file backend"))
		}
	case BackendSQLite:
		if c.Cooldown.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Cooldown.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown COOLDOWN_BACKEND %q", c.Cooldown.Backend))
	}
	return errors.Join(errs...)
}
