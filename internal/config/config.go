// Package config defines the top-level configuration for the Orion
// executor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by ORION_* environment
// variables. The configuration is immutable for the process lifetime.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Chain     ChainConfig     `toml:"chain"`
	Relay     RelayConfig     `toml:"relay"`
	Fees      FeesConfig      `toml:"fees"`
	Execution ExecutionConfig `toml:"execution"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP ingress parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// SecretsConfig selects and parameterises the secret backend.
type SecretsConfig struct {
	// Backend is one of "aws", "env", "static".
	Backend string `toml:"backend"`

	// AWSRegion applies to the "aws" backend.
	AWSRegion string `toml:"aws_region"`

	// SigningKeyName and RelayKeyName are the names the coordinator
	// resolves through the backend on every invocation.
	SigningKeyName string `toml:"signing_key_name"`
	RelayKeyName   string `toml:"relay_key_name"`

	// CacheTTL bounds the in-process secret cache; zero disables
	// caching and every invocation hits the backend.
	CacheTTL duration `toml:"cache_ttl"`

	// Static backend: a raw or encrypted local keyfile plus a literal
	// relay credential. Intended for development and tests.
	SigningKeyHex    string `toml:"signing_key_hex"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	RelayAPIKey      string `toml:"relay_api_key"`
}

// ChainConfig holds the JSON-RPC endpoint used for fee snapshots.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int    `toml:"chain_id"`
}

// RelayConfig holds the private relay endpoint parameters.
type RelayConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// FeesConfig holds the fee ceilings applied to every bundle. Bundles
// are capped at these values rather than submitted unbounded.
type FeesConfig struct {
	MaxGasLimit uint64 `toml:"max_gas_limit"`
	MaxFeeGwei  int64  `toml:"max_fee_gwei"`
	MaxTipGwei  int64  `toml:"max_tip_gwei"`
}

// ExecutionConfig holds coordinator parameters.
type ExecutionConfig struct {
	// StaleClaimTTL is how long an in-flight ledger claim may sit
	// before a redelivery is allowed to reclaim it (crashed worker).
	StaleClaimTTL duration `toml:"stale_claim_ttl"`

	// MaxResubmissions bounds the coordinator's retry loop after a
	// relay rejection candidate worth retrying; each retry rebuilds a
	// fresh bundle against a fresh fee snapshot.
	MaxResubmissions int `toml:"max_resubmissions"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the outcome
// ledger. An empty DSN together with an empty host selects the
// in-memory ledger (dry-run).
type DatabaseConfig struct {
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

// RedisConfig holds parameters for the optional cross-instance claim
// guard.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	ClaimTTL   duration `toml:"claim_ttl"`
}

// S3Config holds S3-compatible object storage parameters for outcome
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	RetentionDays   int      `toml:"retention_days"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Secrets: SecretsConfig{
			Backend:        "env",
			AWSRegion:      "us-east-1",
			SigningKeyName: "EXECUTOR_WALLET_KEY",
			RelayKeyName:   "RELAY_API_KEY",
			CacheTTL:       duration{0},
		},
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Relay: RelayConfig{
			URL:     "https://rpc.flashbots.net",
			Timeout: duration{10 * time.Second},
		},
		Fees: FeesConfig{
			MaxGasLimit: 1_500_000,
			MaxFeeGwei:  300,
			MaxTipGwei:  5,
		},
		Execution: ExecutionConfig{
			StaleClaimTTL:    duration{2 * time.Minute},
			MaxResubmissions: 0,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orion",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			ClaimTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "orion-archive",
			UseSSL:          false,
			ForcePathStyle:  true,
			RetentionDays:   90,
			ArchiveInterval: duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"outcome_recorded"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSecretBackends = map[string]bool{
	"aws":    true,
	"env":    true,
	"static": true,
}

// UseMemoryLedger reports whether the in-memory outcome ledger should be
// used instead of PostgreSQL.
func (c *Config) UseMemoryLedger() bool {
	return strings.TrimSpace(c.Database.DSN) == "" && c.Database.Host == ""
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Secrets
	if !validSecretBackends[c.Secrets.Backend] {
		errs = append(errs, fmt.Sprintf("secrets: unknown backend %q (valid: aws, env, static)", c.Secrets.Backend))
	}
	if c.Secrets.SigningKeyName == "" {
		errs = append(errs, "secrets: signing_key_name must not be empty")
	}
	if c.Secrets.RelayKeyName == "" {
		errs = append(errs, "secrets: relay_key_name must not be empty")
	}
	if c.Secrets.Backend == "aws" && c.Secrets.AWSRegion == "" {
		errs = append(errs, "secrets: aws_region is required for the aws backend")
	}
	if c.Secrets.Backend == "static" {
		if c.Secrets.SigningKeyHex == "" && c.Secrets.EncryptedKeyPath == "" {
			errs = append(errs, "secrets: static backend needs signing_key_hex or encrypted_key_path")
		}
		if c.Secrets.EncryptedKeyPath != "" && c.Secrets.KeyPassword == "" {
			errs = append(errs, "secrets: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Secrets.CacheTTL.Duration < 0 {
		errs = append(errs, "secrets: cache_ttl must not be negative")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}

	// Relay
	if c.Relay.URL == "" {
		errs = append(errs, "relay: url must not be empty")
	}
	if c.Relay.Timeout.Duration <= 0 {
		errs = append(errs, "relay: timeout must be positive")
	}

	// Fees
	if c.Fees.MaxGasLimit == 0 {
		errs = append(errs, "fees: max_gas_limit must be > 0")
	}
	if c.Fees.MaxFeeGwei <= 0 {
		errs = append(errs, "fees: max_fee_gwei must be > 0")
	}
	if c.Fees.MaxTipGwei < 0 {
		errs = append(errs, "fees: max_tip_gwei must be >= 0")
	}

	// Execution
	if c.Execution.StaleClaimTTL.Duration <= 0 {
		errs = append(errs, "execution: stale_claim_ttl must be positive")
	}
	if c.Execution.MaxResubmissions < 0 {
		errs = append(errs, "execution: max_resubmissions must be >= 0")
	}

	// Database
	if !c.UseMemoryLedger() {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.ClaimTTL.Duration <= 0 {
			errs = append(errs, "redis: claim_ttl must be positive when enabled")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}
	if (c.Mode == "archive" || c.Mode == "full") && !c.S3.Enabled {
		errs = append(errs, fmt.Sprintf("s3: must be enabled for mode %q", c.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
