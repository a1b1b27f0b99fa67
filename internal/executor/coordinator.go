// Package executor orchestrates the opportunity-execution pipeline:
// idempotency check, secret acquisition, bundle construction, relay
// submission, and outcome recording. Deterministic failures are recorded
// and acknowledged; infrastructure failures record nothing and surface
// to the transport for redelivery.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// BundleBuilder is the interface through which the coordinator
// constructs bundles. It is implemented by the bundle package.
type BundleBuilder interface {
	// Validate performs the static, secret-free payload checks.
	Validate(opp domain.Opportunity) error
	// Build constructs and signs the bundle against a fee snapshot.
	Build(opp domain.Opportunity, signer domain.BundleSigner, snap domain.FeeSnapshot) (domain.Bundle, error)
}

// Submitter sends one signed bundle to the relay per call.
type Submitter interface {
	Submit(ctx context.Context, b domain.Bundle, signer domain.BundleSigner, apiKey string) (domain.Receipt, error)
}

// SignerFactory builds an ephemeral signer from resolved key material.
// The signer lives for one invocation and is discarded with the key.
type SignerFactory func(privateKeyHex string) (domain.BundleSigner, error)

// Config holds coordinator parameters.
type Config struct {
	SigningKeyName string
	RelayKeyName   string

	// GuardTTL bounds the optional cross-instance claim.
	GuardTTL time.Duration

	// MaxResubmissions bounds rebuild-and-resubmit after a synchronous
	// relay rejection. Every resubmission constructs a fresh bundle
	// against a fresh fee snapshot; stale signed data is never resent.
	MaxResubmissions int
}

// Coordinator drives one opportunity through the execution state
// machine. All collaborators are injected so tests can substitute
// deterministic fakes.
type Coordinator struct {
	cfg       Config
	ledger    domain.OutcomeLedger
	guard     domain.ClaimGuard // optional
	secrets   domain.SecretProvider
	feeOracle domain.FeeOracle
	builder   BundleBuilder
	submitter Submitter
	newSigner SignerFactory
	events    domain.EventSink // optional
	logger    *slog.Logger
}

// New creates a Coordinator. guard and events may be nil.
func New(
	cfg Config,
	ledger domain.OutcomeLedger,
	guard domain.ClaimGuard,
	secrets domain.SecretProvider,
	feeOracle domain.FeeOracle,
	builder BundleBuilder,
	submitter Submitter,
	newSigner SignerFactory,
	events domain.EventSink,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		ledger:    ledger,
		guard:     guard,
		secrets:   secrets,
		feeOracle: feeOracle,
		builder:   builder,
		submitter: submitter,
		newSigner: newSigner,
		events:    events,
		logger:    logger.With(slog.String("component", "coordinator")),
	}
}

// Result is the coordinator's answer for one delivery.
type Result struct {
	Outcome domain.Outcome

	// AlreadyProcessed is true when a terminal outcome for this ID
	// predates the delivery and no side effect was re-executed.
	AlreadyProcessed bool
}

// Execute drives one opportunity to a terminal outcome or an
// infrastructure error. A nil error means a terminal outcome exists and
// the delivery must be acknowledged; a non-nil error means nothing was
// recorded and the transport should redeliver.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (Result, error) {
	log := c.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", string(opp.Strategy)),
	)

	c.publish(domain.ExecutionEvent{
		Kind:          domain.EventOpportunityReceived,
		OpportunityID: opp.ID,
		Strategy:      opp.Strategy,
		At:            time.Now().UTC(),
	})

	// 1. Idempotency: a prior terminal outcome is re-reported as-is.
	if out, err := c.ledger.Lookup(ctx, opp.ID); err == nil {
		log.Info("already processed", slog.String("status", string(out.Status)))
		return Result{Outcome: out, AlreadyProcessed: true}, nil
	}

	// 2. Cross-instance guard, when configured.
	if c.guard != nil {
		unlock, err := c.guard.Acquire(ctx, opp.ID, c.cfg.GuardTTL)
		if err != nil {
			return Result{}, fmt.Errorf("executor: guard %s: %w", opp.ID, err)
		}
		defer unlock()
	}

	// 3. Atomic ledger claim. The reserve re-checks for a terminal
	// outcome, closing the race between two concurrent deliveries.
	claim, err := c.ledger.Reserve(ctx, opp.ID)
	if err != nil {
		return Result{}, fmt.Errorf("executor: reserve %s: %w", opp.ID, err)
	}
	if claim.Existing != nil {
		log.Info("already processed", slog.String("status", string(claim.Existing.Status)))
		return Result{Outcome: *claim.Existing, AlreadyProcessed: true}, nil
	}
	if !claim.Owned {
		return Result{}, fmt.Errorf("executor: %w: %s", domain.ErrClaimHeld, opp.ID)
	}

	// 4. Static validation, before any secret is touched.
	if err := c.builder.Validate(opp); err != nil {
		return c.recordTerminal(ctx, opp, claim.Attempt, domain.OutcomeFailed, err, log)
	}

	// 5. Secrets, resolved per invocation and held only for this scope.
	signingKey, err := c.secrets.Resolve(ctx, c.cfg.SigningKeyName)
	if err != nil {
		return c.abort(ctx, opp.ID, err, log)
	}
	relayKey, err := c.secrets.Resolve(ctx, c.cfg.RelayKeyName)
	if err != nil {
		return c.abort(ctx, opp.ID, err, log)
	}

	signer, err := c.newSigner(signingKey)
	if err != nil {
		// Unusable key material is an operational problem, not a
		// property of the opportunity.
		return c.abort(ctx, opp.ID, fmt.Errorf("%w: signer: %v", domain.ErrSecretUnavailable, err), log)
	}

	// 6. Build and submit, rebuilding fresh against a fresh snapshot on
	// each bounded resubmission.
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxResubmissions; attempt++ {
		if ctx.Err() != nil {
			return c.abort(ctx, opp.ID, ctx.Err(), log)
		}

		snap, err := c.feeOracle.Snapshot(ctx)
		if err != nil {
			return c.abort(ctx, opp.ID, err, log)
		}

		bdl, err := c.builder.Build(opp, signer, snap)
		if err != nil {
			if domain.Terminal(err) {
				return c.recordTerminal(ctx, opp, claim.Attempt, domain.OutcomeFailed, err, log)
			}
			return c.abort(ctx, opp.ID, err, log)
		}

		receipt, err := c.submitter.Submit(ctx, bdl, signer, relayKey)
		if err == nil {
			c.publish(domain.ExecutionEvent{
				Kind:          domain.EventBundleSubmitted,
				OpportunityID: opp.ID,
				Strategy:      opp.Strategy,
				Detail:        receipt.BundleHash,
				At:            time.Now().UTC(),
			})
			return c.recordSuccess(ctx, opp, claim.Attempt, receipt, log)
		}

		if domain.Retryable(err) {
			// The bundle may have been partially transmitted; nothing
			// is recorded and nothing is resubmitted here. Redelivery
			// re-enters at the idempotency check.
			return c.abort(ctx, opp.ID, err, log)
		}

		lastErr = err
		log.Warn("relay rejected bundle",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return c.recordTerminal(ctx, opp, claim.Attempt, domain.OutcomeRejected, lastErr, log)
}

// recordSuccess persists the succeeded outcome with the relay reference.
func (c *Coordinator) recordSuccess(ctx context.Context, opp domain.Opportunity, attempt int, receipt domain.Receipt, log *slog.Logger) (Result, error) {
	out := domain.Outcome{
		OpportunityID: opp.ID,
		Status:        domain.OutcomeSucceeded,
		Detail:        receipt.BundleHash,
		Attempts:      attempt,
		RecordedAt:    time.Now().UTC(),
	}
	if err := c.ledger.RecordTerminal(ctx, out); err != nil {
		return c.abort(ctx, opp.ID, fmt.Errorf("record outcome: %w", err), log)
	}

	log.Info("opportunity executed",
		slog.String("bundle_hash", receipt.BundleHash),
		slog.Int("attempts", attempt),
	)
	c.publishOutcome(out, opp.Strategy)
	return Result{Outcome: out}, nil
}

// recordTerminal persists a deterministic failure or rejection so
// redelivery short-circuits instead of re-deriving it.
func (c *Coordinator) recordTerminal(ctx context.Context, opp domain.Opportunity, attempt int, status domain.OutcomeStatus, cause error, log *slog.Logger) (Result, error) {
	out := domain.Outcome{
		OpportunityID: opp.ID,
		Status:        status,
		Detail:        cause.Error(),
		Attempts:      attempt,
		RecordedAt:    time.Now().UTC(),
	}
	if err := c.ledger.RecordTerminal(ctx, out); err != nil {
		return c.abort(ctx, opp.ID, fmt.Errorf("record outcome: %w", err), log)
	}

	log.Warn("opportunity terminal",
		slog.String("status", string(status)),
		slog.String("cause", cause.Error()),
	)
	c.publishOutcome(out, opp.Strategy)
	return Result{Outcome: out}, nil
}

// abort releases the ledger claim and surfaces an infrastructure
// failure: no outcome is recorded and the transport redelivers.
func (c *Coordinator) abort(ctx context.Context, id string, cause error, log *slog.Logger) (Result, error) {
	// Release with a background-derived context so a claim is not
	// leaked when the caller's deadline already expired.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.ledger.Release(releaseCtx, id); err != nil {
		log.Error("claim release failed", slog.String("error", err.Error()))
	}

	log.Warn("infrastructure failure, awaiting redelivery",
		slog.String("error", cause.Error()),
	)
	return Result{}, fmt.Errorf("executor: %s: %w", id, cause)
}

func (c *Coordinator) publishOutcome(out domain.Outcome, strategy domain.StrategyKind) {
	c.publish(domain.ExecutionEvent{
		Kind:          domain.EventOutcomeRecorded,
		OpportunityID: out.OpportunityID,
		Strategy:      strategy,
		Status:        out.Status,
		Detail:        out.Detail,
		At:            out.RecordedAt,
	})
}

func (c *Coordinator) publish(ev domain.ExecutionEvent) {
	if c.events != nil {
		c.events.Publish(ev)
	}
}
