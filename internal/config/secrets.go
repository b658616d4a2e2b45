package config

import "slices"

const redacted = "***"

// secrets lists every credential-bearing field of c.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Exchange.APIKey,
		&c.Exchange.KeyPassword,
		&c.Supabase.DSN,
		&c.Supabase.Password,
		&c.Redis.Password,
		&c.S3.AccessKey,
		&c.S3.SecretKey,
		&c.Server.APIKey,
		&c.Notify.TelegramToken,
		&c.Notify.DiscordWebhookURL,
	}
}

// RedactedConfig returns a deep enough copy of cfg to log: set credentials
// read "***" and slices no longer alias cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, s := range out.secrets() {
		if *s != "" {
			*s = redacted
		}
	}
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}
