package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/TemamAb/orion-executor/internal/blob/s3"
	"github.com/TemamAb/orion-executor/internal/crypto"
	"github.com/TemamAb/orion-executor/internal/domain"
	"github.com/TemamAb/orion-executor/internal/executor"
	"github.com/TemamAb/orion-executor/internal/notify"
	"github.com/TemamAb/orion-executor/internal/server"
	"github.com/TemamAb/orion-executor/internal/server/handler"
	"github.com/TemamAb/orion-executor/internal/server/ws"
)

// fanSink forwards execution events to every registered sink.
type fanSink []domain.EventSink

func (f fanSink) Publish(ev domain.ExecutionEvent) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// ServeMode runs the push ingress: HTTP server, execution coordinator,
// WebSocket hub, and operator alerts.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIngress(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs only the outcome archiver. It is intended for a
// dedicated housekeeping replica that shares the ledger and bucket with
// the serving fleet.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiver(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the push ingress and the archiver in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIngress(ctx, g, deps)
	if err := a.startArchiver(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// startIngress wires the coordinator and HTTP surface onto the errgroup.
func (a *App) startIngress(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	sinks := fanSink{hub}
	alerter := notify.NewOutcomeAlerter(deps.Notifier, a.logger)
	sinks = append(sinks, alerter)
	g.Go(func() error {
		return alerter.Run(ctx)
	})

	coord := executor.New(
		executor.Config{
			SigningKeyName:   a.cfg.Secrets.SigningKeyName,
			RelayKeyName:     a.cfg.Secrets.RelayKeyName,
			GuardTTL:         a.cfg.Redis.ClaimTTL.Duration,
			MaxResubmissions: a.cfg.Execution.MaxResubmissions,
		},
		deps.Ledger,
		deps.Guard,
		deps.Secrets,
		deps.FeeOracle,
		deps.Builder,
		deps.Relay,
		func(hexKey string) (domain.BundleSigner, error) {
			return crypto.NewSigner(hexKey)
		},
		sinks,
		a.logger,
	)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Push:     handler.NewPushHandler(coord, a.logger),
			Health:   handler.NewHealthHandler(a.logger),
			Outcomes: handler.NewOutcomeHandler(deps.Ledger, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver wires the S3 outcome archiver onto the errgroup.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.BlobWriter == nil || deps.BlobReader == nil {
		return fmt.Errorf("app: archiver requires s3 to be enabled")
	}

	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	archiver := s3blob.NewArchiver(
		deps.BlobWriter,
		deps.BlobReader,
		deps.Ledger,
		retention,
		a.cfg.S3.ArchiveInterval.Duration,
		a.logger,
	)

	g.Go(func() error {
		return archiver.Run(ctx)
	})

	a.logger.InfoContext(ctx, "archiver scheduled",
		slog.Int("retention_days", a.cfg.S3.RetentionDays),
		slog.Duration("interval", a.cfg.S3.ArchiveInterval.Duration),
	)
	return nil
}
