// Package config defines the top-level configuration for crudebot and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config is everything crudebot reads at startup: config.toml first, then
// CRUDEBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds the exchange REST endpoint and credentials.
type ExchangeConfig struct {
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	RequestTimeout   duration `toml:"request_timeout"`
	// RateLimit caps requests per RateWindow when Redis is wired. Zero disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// TradingConfig holds the loop cadence and the strategy constants.
type TradingConfig struct {
	PollInterval          duration `toml:"poll_interval"`
	OrderLimit            int      `toml:"order_limit"`
	TransportLimit        int      `toml:"transport_limit"`
	ArbitrageThreshold    float64  `toml:"arbitrage_threshold"`
	CrackSpreadThreshold  float64  `toml:"crack_spread_threshold"`
	PipelineCost          float64  `toml:"pipeline_cost"`
	RefineryCostPerBarrel float64  `toml:"refinery_cost_per_barrel"`
	Elasticity            float64  `toml:"elasticity"`
	LeaseLookupAttempts   int      `toml:"lease_lookup_attempts"`
	LeaseLookupBackoff    duration `toml:"lease_lookup_backoff"`
	CycleLockTTL          duration `toml:"cycle_lock_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters for the
// action journal.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig backs cross-process coordination.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	KeyPrefix    string `toml:"key_prefix"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the journal
// archiver.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	Prefix          string   `toml:"prefix"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration lets TOML carry Go duration strings such as "250ms".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ServerConfig controls the read-only API.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`      // empty disables auth
	CORSOrigins []string `toml:"cors_origins"` // empty allows all
	RateLimit   int      `toml:"rate_limit"`   // requests per minute per client; needs redis
}

// NotifyConfig selects chat channels and which alerts reach them.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// QuietPeriod suppresses repeats of an identical alert. Zero disables.
	QuietPeriod duration `toml:"quiet_period"`
}

// Defaults returns a Config populated with the values the bot was tuned with.
// These match config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:        "http://localhost:9999/v1",
			APIKey:         "MW0YJ28H",
			RequestTimeout: duration{10 * time.Second},
			RateLimit:      0,
			RateWindow:     duration{time.Second},
		},
		Trading: TradingConfig{
			PollInterval:          duration{5 * time.Second},
			OrderLimit:            30,
			TransportLimit:        10,
			ArbitrageThreshold:    1000,
			CrackSpreadThreshold:  500,
			PipelineCost:          30000,
			RefineryCostPerBarrel: 20,
			Elasticity:            1,
			LeaseLookupAttempts:   3,
			LeaseLookupBackoff:    duration{250 * time.Millisecond},
			CycleLockTTL:          duration{30 * time.Second},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			KeyPrefix:    "crudebot",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "crudebot-journal",
			Prefix:          "crudebot",
			ForcePathStyle:  true,
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:   true,
			Port:      8080,
			RateLimit: 120,
		},
		Notify: NotifyConfig{
			Events:      []string{"trade_executed", "strategy_error", "malformed_headline"},
			QuietPeriod: duration{time.Minute},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

var (
	modes     = []string{"trade", "dry_run"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// DryRun reports whether the configured mode suppresses exchange submissions.
func (c *Config) DryRun() bool {
	return strings.EqualFold(c.Mode, "dry_run")
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	p.check(slices.Contains(modes, strings.ToLower(c.Mode)),
		"unknown mode %q (valid: %s)", c.Mode, strings.Join(modes, ", "))
	p.check(slices.Contains(logLevels, strings.ToLower(c.LogLevel)),
		"unknown log_level %q (valid: %s)", c.LogLevel, strings.Join(logLevels, ", "))

	ex := c.Exchange
	u, err := url.Parse(ex.BaseURL)
	p.check(err == nil && u.Scheme != "" && u.Host != "", "exchange: base_url %q must be an absolute URL", ex.BaseURL)
	p.check(ex.APIKey != "" || ex.EncryptedKeyPath != "", "exchange: either api_key or encrypted_key_path must be set")
	p.check(ex.EncryptedKeyPath == "" || ex.KeyPassword != "", "exchange: key_password is required when encrypted_key_path is set")
	p.check(ex.RequestTimeout.Duration > 0, "exchange: request_timeout must be > 0")
	p.check(ex.RateLimit >= 0, "exchange: rate_limit must be >= 0")
	p.check(ex.RateLimit == 0 || ex.RateWindow.Duration > 0, "exchange: rate_window must be > 0 when rate_limit is set")

	t := c.Trading
	p.check(t.PollInterval.Duration > 0, "trading: poll_interval must be > 0")
	p.check(t.OrderLimit >= 1, "trading: order_limit must be >= 1")
	p.check(t.TransportLimit >= 1, "trading: transport_limit must be >= 1")
	p.check(t.PipelineCost >= 0, "trading: pipeline_cost must be >= 0")
	p.check(t.RefineryCostPerBarrel >= 0, "trading: refinery_cost_per_barrel must be >= 0")
	p.check(t.LeaseLookupAttempts >= 1, "trading: lease_lookup_attempts must be >= 1")
	p.check(t.LeaseLookupBackoff.Duration >= 0, "trading: lease_lookup_backoff must be >= 0")
	p.check(t.CycleLockTTL.Duration > 0, "trading: cycle_lock_ttl must be > 0")

	if db := c.Supabase; db.Enabled {
		if strings.TrimSpace(db.DSN) == "" {
			p.check(db.Host != "", "supabase: host or dsn must be set")
			p.check(validPort(db.Port), "supabase: port %d out of range", db.Port)
			p.check(db.Database != "", "supabase: database must be set")
		}
		p.check(db.PoolMaxConns >= 1, "supabase: pool_max_conns must be >= 1")
		p.check(db.PoolMinConns <= db.PoolMaxConns, "supabase: pool_min_conns exceeds pool_max_conns")
	}

	if r := c.Redis; r.Enabled {
		p.check(r.Addr != "", "redis: addr must be set")
		p.check(r.PoolSize >= 1, "redis: pool_size must be >= 1")
		p.check(r.KeyPrefix != "", "redis: key_prefix must be set")
	}

	if b := c.S3; b.Enabled {
		p.check(b.Bucket != "", "s3: bucket must be set")
		p.check(b.Region != "", "s3: region must be set")
		p.check(c.Supabase.Enabled, "s3: archiving requires supabase.enabled (the journal is the archive source)")
		p.check(b.ArchiveInterval.Duration > 0, "s3: archive_interval must be > 0")
	}

	if srv := c.Server; srv.Enabled {
		p.check(validPort(srv.Port), "server: port %d out of range", srv.Port)
		p.check(srv.RateLimit >= 0, "server: rate_limit must be >= 0")
	}

	p.check(c.Notify.QuietPeriod.Duration >= 0, "notify: quiet_period must be >= 0")

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("config: %d invalid setting(s):\n  - %s", len(p), strings.Join(p, "\n  - "))
}
