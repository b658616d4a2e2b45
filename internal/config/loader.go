package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load layers path over Defaults, then a .env file and the process
// environment over that. A missing path is not an error. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: %w", err)
	}

	// .env is optional; variables already set in the process win.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CRUDEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "CRUDEBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "CRUDEBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.EncryptedKeyPath, "CRUDEBOT_EXCHANGE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Exchange.KeyPassword, "CRUDEBOT_EXCHANGE_KEY_PASSWORD")
	setDuration(&cfg.Exchange.RequestTimeout, "CRUDEBOT_EXCHANGE_REQUEST_TIMEOUT")
	setInt(&cfg.Exchange.RateLimit, "CRUDEBOT_EXCHANGE_RATE_LIMIT")
	setDuration(&cfg.Exchange.RateWindow, "CRUDEBOT_EXCHANGE_RATE_WINDOW")

	// ── Trading ──
	setDuration(&cfg.Trading.PollInterval, "CRUDEBOT_TRADING_POLL_INTERVAL")
	setInt(&cfg.Trading.OrderLimit, "CRUDEBOT_TRADING_ORDER_LIMIT")
	setInt(&cfg.Trading.TransportLimit, "CRUDEBOT_TRADING_TRANSPORT_LIMIT")
	setFloat64(&cfg.Trading.ArbitrageThreshold, "CRUDEBOT_TRADING_ARBITRAGE_THRESHOLD")
	setFloat64(&cfg.Trading.CrackSpreadThreshold, "CRUDEBOT_TRADING_CRACK_SPREAD_THRESHOLD")
	setFloat64(&cfg.Trading.PipelineCost, "CRUDEBOT_TRADING_PIPELINE_COST")
	setFloat64(&cfg.Trading.RefineryCostPerBarrel, "CRUDEBOT_TRADING_REFINERY_COST_PER_BARREL")
	setFloat64(&cfg.Trading.Elasticity, "CRUDEBOT_TRADING_ELASTICITY")
	setInt(&cfg.Trading.LeaseLookupAttempts, "CRUDEBOT_TRADING_LEASE_LOOKUP_ATTEMPTS")
	setDuration(&cfg.Trading.LeaseLookupBackoff, "CRUDEBOT_TRADING_LEASE_LOOKUP_BACKOFF")
	setDuration(&cfg.Trading.CycleLockTTL, "CRUDEBOT_TRADING_CYCLE_LOCK_TTL")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "CRUDEBOT_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "CRUDEBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "CRUDEBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "CRUDEBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "CRUDEBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "CRUDEBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "CRUDEBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "CRUDEBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "CRUDEBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "CRUDEBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "CRUDEBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CRUDEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CRUDEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRUDEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRUDEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRUDEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRUDEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRUDEBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CRUDEBOT_REDIS_KEY_PREFIX")
	setInt(&cfg.Redis.StreamMaxLen, "CRUDEBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CRUDEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CRUDEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRUDEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRUDEBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "CRUDEBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "CRUDEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRUDEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRUDEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRUDEBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "CRUDEBOT_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CRUDEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CRUDEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "CRUDEBOT_SERVER_API_KEY")
	setList(&cfg.Server.CORSOrigins, "CRUDEBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CRUDEBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRUDEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRUDEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRUDEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setList(&cfg.Notify.Events, "CRUDEBOT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.QuietPeriod, "CRUDEBOT_NOTIFY_QUIET_PERIOD")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRUDEBOT_MODE")
	setStr(&cfg.LogLevel, "CRUDEBOT_LOG_LEVEL")
}

// override replaces *dst with the parsed value of env var key. Unset, empty
// and unparsable values leave *dst alone.
func override[T any](dst *T, key string, parse func(string) (T, error)) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func setStr(dst *string, key string) {
	override(dst, key, func(s string) (string, error) { return s, nil })
}

func setInt(dst *int, key string) { override(dst, key, strconv.Atoi) }

func setFloat64(dst *float64, key string) {
	override(dst, key, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func setBool(dst *bool, key string) { override(dst, key, strconv.ParseBool) }

func setDuration(dst *duration, key string) {
	override(dst, key, func(s string) (duration, error) {
		d, err := time.ParseDuration(s)
		return duration{d}, err
	})
}

// setList reads a comma-separated list, dropping blank items. A list with no
// items left is ignored.
func setList(dst *[]string, key string) {
	override(dst, key, func(s string) ([]string, error) {
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return nil, errors.New("empty list")
		}
		return items, nil
	})
}
