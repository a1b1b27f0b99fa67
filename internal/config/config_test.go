package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	// The env backend needs no extra material, and serve mode needs no S3.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "watch" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port must be 1-65535"},
		{"unknown secret backend", func(c *Config) { c.Secrets.Backend = "vault" }, "unknown backend"},
		{"empty signing key name", func(c *Config) { c.Secrets.SigningKeyName = "" }, "signing_key_name"},
		{"empty relay key name", func(c *Config) { c.Secrets.RelayKeyName = "" }, "relay_key_name"},
		{"aws without region", func(c *Config) {
			c.Secrets.Backend = "aws"
			c.Secrets.AWSRegion = ""
		}, "aws_region is required"},
		{"static without key material", func(c *Config) {
			c.Secrets.Backend = "static"
		}, "signing_key_hex or encrypted_key_path"},
		{"encrypted key without password", func(c *Config) {
			c.Secrets.Backend = "static"
			c.Secrets.EncryptedKeyPath = "/keys/executor.enc"
		}, "key_password is required"},
		{"negative cache ttl", func(c *Config) { c.Secrets.CacheTTL = duration{-time.Second} }, "cache_ttl"},
		{"empty rpc url", func(c *Config) { c.Chain.RPCURL = "" }, "rpc_url"},
		{"zero chain id", func(c *Config) { c.Chain.ChainID = 0 }, "chain_id"},
		{"empty relay url", func(c *Config) { c.Relay.URL = "" }, "relay: url"},
		{"zero relay timeout", func(c *Config) { c.Relay.Timeout = duration{0} }, "relay: timeout"},
		{"zero gas limit", func(c *Config) { c.Fees.MaxGasLimit = 0 }, "max_gas_limit"},
		{"zero max fee", func(c *Config) { c.Fees.MaxFeeGwei = 0 }, "max_fee_gwei"},
		{"negative tip", func(c *Config) { c.Fees.MaxTipGwei = -1 }, "max_tip_gwei"},
		{"zero stale claim ttl", func(c *Config) { c.Execution.StaleClaimTTL = duration{0} }, "stale_claim_ttl"},
		{"negative resubmissions", func(c *Config) { c.Execution.MaxResubmissions = -1 }, "max_resubmissions"},
		{"pool min over max", func(c *Config) {
			c.Database.DSN = "postgres://u:p@db/orion"
			c.Database.PoolMinConns = 20
			c.Database.PoolMaxConns = 5
		}, "pool_min_conns must not exceed"},
		{"redis enabled without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis: addr"},
		{"redis zero claim ttl", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.ClaimTTL = duration{0}
		}, "claim_ttl"},
		{"s3 enabled without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"archive mode without s3", func(c *Config) { c.Mode = "archive" }, "must be enabled for mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Server.Port = 0
	cfg.Chain.RPCURL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "port must be", "rpc_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestUseMemoryLedger(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Host = ""
	cfg.Database.DSN = "   "
	if !cfg.UseMemoryLedger() {
		t.Fatal("blank DSN and host should select the in-memory ledger")
	}

	cfg.Database.DSN = "postgres://u:p@db/orion"
	if cfg.UseMemoryLedger() {
		t.Fatal("a DSN should select PostgreSQL")
	}

	cfg.Database.DSN = ""
	cfg.Database.Host = "db.internal"
	if cfg.UseMemoryLedger() {
		t.Fatal("a host should select PostgreSQL")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.toml")
	content := `
mode = "full"
log_level = "debug"

[server]
port = 9090

[secrets]
backend = "static"
signing_key_hex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
cache_ttl = "5m"

[relay]
url = "https://relay.internal"
timeout = "3s"

[s3]
enabled = true
bucket = "orion-archive-prod"
retention_days = 30
archive_interval = "6h"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "full" {
		t.Errorf("mode = %q, want full", cfg.Mode)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Secrets.Backend != "static" {
		t.Errorf("backend = %q, want static", cfg.Secrets.Backend)
	}
	if cfg.Secrets.CacheTTL.Duration != 5*time.Minute {
		t.Errorf("cache_ttl = %v, want 5m", cfg.Secrets.CacheTTL.Duration)
	}
	if cfg.Relay.Timeout.Duration != 3*time.Second {
		t.Errorf("relay timeout = %v, want 3s", cfg.Relay.Timeout.Duration)
	}
	if cfg.S3.ArchiveInterval.Duration != 6*time.Hour {
		t.Errorf("archive_interval = %v, want 6h", cfg.S3.ArchiveInterval.Duration)
	}

	// Untouched fields keep their defaults.
	if cfg.Chain.RPCURL != "http://localhost:8545" {
		t.Errorf("rpc_url = %q, want default", cfg.Chain.RPCURL)
	}
	if cfg.Fees.MaxGasLimit != 1_500_000 {
		t.Errorf("max_gas_limit = %d, want default", cfg.Fees.MaxGasLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.toml")
	if err := os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ORION_SERVER_PORT", "8181")
	t.Setenv("ORION_SERVER_API_KEY", "supersecret")
	t.Setenv("ORION_MODE", "full")
	t.Setenv("ORION_REDIS_ENABLED", "true")
	t.Setenv("ORION_REDIS_CLAIM_TTL", "45s")
	t.Setenv("ORION_FEES_MAX_GAS_LIMIT", "2000000")
	t.Setenv("ORION_NOTIFY_EVENTS", "outcome_recorded, bundle_submitted")
	t.Setenv("ORION_EXECUTION_MAX_RESUBMISSIONS", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8181 {
		t.Errorf("port = %d, want 8181", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "supersecret" {
		t.Errorf("api_key not overridden")
	}
	if cfg.Mode != "full" {
		t.Errorf("mode = %q, want full", cfg.Mode)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis.enabled not overridden")
	}
	if cfg.Redis.ClaimTTL.Duration != 45*time.Second {
		t.Errorf("claim_ttl = %v, want 45s", cfg.Redis.ClaimTTL.Duration)
	}
	if cfg.Fees.MaxGasLimit != 2_000_000 {
		t.Errorf("max_gas_limit = %d, want 2000000", cfg.Fees.MaxGasLimit)
	}
	want := []string{"outcome_recorded", "bundle_submitted"}
	if len(cfg.Notify.Events) != len(want) {
		t.Fatalf("events = %v, want %v", cfg.Notify.Events, want)
	}
	for i, e := range want {
		if cfg.Notify.Events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, cfg.Notify.Events[i], e)
		}
	}
	if cfg.Execution.MaxResubmissions != 2 {
		t.Errorf("max_resubmissions = %d, want 2", cfg.Execution.MaxResubmissions)
	}
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orion.toml")
	if err := os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ORION_SERVER_PORT", "not-a-number")
	t.Setenv("ORION_REDIS_ENABLED", "maybe")
	t.Setenv("ORION_RELAY_TIMEOUT", "soon")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Defaults()
	if cfg.Server.Port != def.Server.Port {
		t.Errorf("malformed port override applied: %d", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("malformed bool override applied")
	}
	if cfg.Relay.Timeout.Duration != def.Relay.Timeout.Duration {
		t.Errorf("malformed duration override applied: %v", cfg.Relay.Timeout.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "api-key"
	cfg.Secrets.SigningKeyHex = "deadbeef"
	cfg.Secrets.KeyPassword = "hunter2"
	cfg.Secrets.RelayAPIKey = "relay-token"
	cfg.Database.DSN = "postgres://u:p@db/orion"
	cfg.Database.Password = "dbpass"
	cfg.Redis.Password = "redispass"
	cfg.S3.AccessKey = "AKIA"
	cfg.S3.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "tg-token"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"server api key":      red.Server.APIKey,
		"signing key hex":     red.Secrets.SigningKeyHex,
		"key password":        red.Secrets.KeyPassword,
		"relay api key":       red.Secrets.RelayAPIKey,
		"database dsn":        red.Database.DSN,
		"database password":   red.Database.Password,
		"redis password":      red.Redis.Password,
		"s3 access key":       red.S3.AccessKey,
		"s3 secret key":       red.S3.SecretKey,
		"telegram token":      red.Notify.TelegramToken,
		"discord webhook url": red.Notify.DiscordWebhookURL,
	} {
		if got != redacted {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}

	// Non-sensitive values survive, and the original is untouched.
	if red.Server.Port != cfg.Server.Port {
		t.Error("port should not be redacted")
	}
	if cfg.Server.APIKey != "api-key" {
		t.Error("original config mutated")
	}

	// Empty sensitive fields stay empty rather than showing a placeholder.
	empty := Defaults()
	redEmpty := RedactedConfig(&empty)
	if redEmpty.Server.APIKey != "" {
		t.Error("empty api key should stay empty")
	}
}
