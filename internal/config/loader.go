package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ORION_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORION_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "ORION_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-injected port
	setStr(&cfg.Server.APIKey, "ORION_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ORION_SERVER_CORS_ORIGINS")

	// ── Secrets ──
	setStr(&cfg.Secrets.Backend, "ORION_SECRETS_BACKEND")
	setStr(&cfg.Secrets.AWSRegion, "ORION_SECRETS_AWS_REGION")
	setStr(&cfg.Secrets.SigningKeyName, "ORION_SECRETS_SIGNING_KEY_NAME")
	setStr(&cfg.Secrets.RelayKeyName, "ORION_SECRETS_RELAY_KEY_NAME")
	setDuration(&cfg.Secrets.CacheTTL, "ORION_SECRETS_CACHE_TTL")
	setStr(&cfg.Secrets.SigningKeyHex, "ORION_SECRETS_SIGNING_KEY_HEX")
	setStr(&cfg.Secrets.EncryptedKeyPath, "ORION_SECRETS_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Secrets.KeyPassword, "ORION_SECRETS_KEY_PASSWORD")
	setStr(&cfg.Secrets.RelayAPIKey, "ORION_SECRETS_RELAY_API_KEY")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ORION_CHAIN_RPC_URL")
	setInt(&cfg.Chain.ChainID, "ORION_CHAIN_ID")

	// ── Relay ──
	setStr(&cfg.Relay.URL, "ORION_RELAY_URL")
	setDuration(&cfg.Relay.Timeout, "ORION_RELAY_TIMEOUT")

	// ── Fees ──
	setUint64(&cfg.Fees.MaxGasLimit, "ORION_FEES_MAX_GAS_LIMIT")
	setInt64(&cfg.Fees.MaxFeeGwei, "ORION_FEES_MAX_FEE_GWEI")
	setInt64(&cfg.Fees.MaxTipGwei, "ORION_FEES_MAX_TIP_GWEI")

	// ── Execution ──
	setDuration(&cfg.Execution.StaleClaimTTL, "ORION_EXECUTION_STALE_CLAIM_TTL")
	setInt(&cfg.Execution.MaxResubmissions, "ORION_EXECUTION_MAX_RESUBMISSIONS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ORION_DATABASE_DSN")
	setStr(&cfg.Database.Host, "ORION_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ORION_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ORION_DATABASE_NAME")
	setStr(&cfg.Database.User, "ORION_DATABASE_USER")
	setStr(&cfg.Database.Password, "ORION_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ORION_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "ORION_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ORION_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ORION_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ORION_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ORION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORION_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORION_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORION_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.ClaimTTL, "ORION_REDIS_CLAIM_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ORION_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ORION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORION_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORION_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "ORION_S3_RETENTION_DAYS")
	setDuration(&cfg.S3.ArchiveInterval, "ORION_S3_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORION_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ORION_MODE")
	setStr(&cfg.LogLevel, "ORION_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
