package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	s3blob "github.com/TemamAb/orion-executor/internal/blob/s3"
	"github.com/TemamAb/orion-executor/internal/bundle"
	"github.com/TemamAb/orion-executor/internal/cache/redis"
	"github.com/TemamAb/orion-executor/internal/config"
	"github.com/TemamAb/orion-executor/internal/crypto"
	"github.com/TemamAb/orion-executor/internal/domain"
	"github.com/TemamAb/orion-executor/internal/notify"
	"github.com/TemamAb/orion-executor/internal/relay"
	"github.com/TemamAb/orion-executor/internal/secrets"
	"github.com/TemamAb/orion-executor/internal/store/memory"
	"github.com/TemamAb/orion-executor/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger    domain.OutcomeLedger
	Guard     domain.ClaimGuard // nil when Redis is disabled
	Secrets   domain.SecretProvider
	FeeOracle domain.FeeOracle
	Builder   *bundle.Builder
	Relay     *relay.Client

	// Blob storage, present only when S3 is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier
}

// gweiToWei converts a gwei amount to wei.
func gweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Outcome ledger ---
	if cfg.UseMemoryLedger() {
		logger.Warn("no database configured, outcomes are held in memory only")
		deps.Ledger = memory.NewOutcomeStore(cfg.Execution.StaleClaimTTL.Duration)
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Ledger = postgres.NewOutcomeStore(pgClient.Pool(), cfg.Execution.StaleClaimTTL.Duration)
	}

	// --- Redis claim guard (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Guard = redis.NewClaimGuard(redisClient)
	}

	// --- Secret provider ---
	provider, err := buildSecretProvider(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: secrets: %w", err)
	}
	if ttl := cfg.Secrets.CacheTTL.Duration; ttl > 0 {
		provider = secrets.NewCached(provider, ttl)
	}
	deps.Secrets = provider

	// --- Fee oracle ---
	oracle, err := bundle.NewEthFeeOracle(ctx, cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: fee oracle: %w", err)
	}
	closers = append(closers, oracle.Close)
	deps.FeeOracle = oracle

	// --- Bundle builder ---
	deps.Builder = bundle.NewBuilder(bundle.FeeCaps{
		MaxGasLimit:          cfg.Fees.MaxGasLimit,
		MaxFeePerGas:         gweiToWei(cfg.Fees.MaxFeeGwei),
		MaxPriorityFeePerGas: gweiToWei(cfg.Fees.MaxTipGwei),
	})

	// --- Relay client ---
	deps.Relay = relay.NewClient(relay.Config{
		URL:     cfg.Relay.URL,
		Timeout: cfg.Relay.Timeout.Duration,
	}, logger)

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildSecretProvider selects the secret backend. The static and env
// backends exist for development and tests; production deployments use
// the aws backend.
func buildSecretProvider(ctx context.Context, cfg *config.Config) (domain.SecretProvider, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		return secrets.NewAWSProvider(ctx, cfg.Secrets.AWSRegion)

	case "env":
		return secrets.NewEnvProvider(), nil

	case "static":
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Secrets.SigningKeyHex,
			EncryptedKeyPath: cfg.Secrets.EncryptedKeyPath,
			KeyPassword:      cfg.Secrets.KeyPassword,
		})
		if err != nil {
			return nil, err
		}
		return secrets.NewStaticProvider(map[string]string{
			cfg.Secrets.SigningKeyName: key,
			cfg.Secrets.RelayKeyName:   cfg.Secrets.RelayAPIKey,
		}), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Secrets.Backend)
	}
}
