package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// OutcomeStore implements domain.OutcomeLedger on PostgreSQL. The
// reserve/record pair for a given ID is a single conditional write, so
// concurrent deliveries of the same opportunity cannot both claim it.
type OutcomeStore struct {
	pool *pgxpool.Pool

	// staleClaimTTL is how long an in-flight claim may sit before a
	// redelivery is allowed to reclaim it (crashed worker).
	staleClaimTTL time.Duration
}

// NewOutcomeStore creates an OutcomeStore.
func NewOutcomeStore(pool *pgxpool.Pool, staleClaimTTL time.Duration) *OutcomeStore {
	return &OutcomeStore{pool: pool, staleClaimTTL: staleClaimTTL}
}

// Reserve atomically claims processing of an ID. A fresh ID inserts an
// in-flight row; a stale in-flight row is reclaimed with its attempt
// counter bumped; a terminal row is returned untouched; a fresh
// in-flight row held elsewhere yields an unowned claim.
func (s *OutcomeStore) Reserve(ctx context.Context, id string) (domain.Claim, error) {
	const reserveSQL = `
		INSERT INTO executions (opportunity_id, status, attempts, claimed_at)
		VALUES ($1, 'in_flight', 1, NOW())
		ON CONFLICT (opportunity_id) DO UPDATE
			SET attempts = executions.attempts + 1, claimed_at = NOW()
			WHERE executions.status = 'in_flight'
			  AND executions.claimed_at < NOW() - make_interval(secs => $2)
		RETURNING attempts`

	var attempts int
	err := s.pool.QueryRow(ctx, reserveSQL, id, s.staleClaimTTL.Seconds()).Scan(&attempts)
	if err == nil {
		return domain.Claim{Owned: true, Attempt: attempts}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Claim{}, fmt.Errorf("postgres: reserve %s: %w", id, err)
	}

	// Conflict without update: either a terminal record exists or a
	// fresh in-flight claim is held by another worker.
	out, err := s.Lookup(ctx, id)
	if err == nil {
		return domain.Claim{Existing: &out, Attempt: out.Attempts}, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Claim{}, nil
	}
	return domain.Claim{}, err
}

// RecordTerminal promotes a held in-flight claim to an immutable
// terminal outcome.
func (s *OutcomeStore) RecordTerminal(ctx context.Context, out domain.Outcome) error {
	recordedAt := out.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, detail = $3, recorded_at = $4
		WHERE opportunity_id = $1 AND status = 'in_flight'`,
		out.OpportunityID, string(out.Status), out.Detail, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record terminal %s: %w", out.OpportunityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: record terminal %s: no in-flight claim: %w", out.OpportunityID, domain.ErrNotFound)
	}
	return nil
}

// Release drops a held claim after an infrastructure failure. The row
// stays (preserving the attempt count) but becomes immediately
// reclaimable by the next delivery.
func (s *OutcomeStore) Release(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET claimed_at = TIMESTAMPTZ 'epoch'
		WHERE opportunity_id = $1 AND status = 'in_flight'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("postgres: release %s: %w", id, err)
	}
	return nil
}

// Lookup returns the terminal outcome for an ID. In-flight claims are
// not outcomes and report ErrNotFound.
func (s *OutcomeStore) Lookup(ctx context.Context, id string) (domain.Outcome, error) {
	var out domain.Outcome
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT opportunity_id, status, detail, attempts, recorded_at
		FROM executions
		WHERE opportunity_id = $1 AND status <> 'in_flight'`,
		id,
	).Scan(&out.OpportunityID, &status, &out.Detail, &out.Attempts, &out.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Outcome{}, domain.ErrNotFound
		}
		return domain.Outcome{}, fmt.Errorf("postgres: lookup %s: %w", id, err)
	}
	out.Status = domain.OutcomeStatus(status)
	return out, nil
}

// ListRecent returns the most recently recorded terminal outcomes.
func (s *OutcomeStore) ListRecent(ctx context.Context, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_id, status, detail, attempts, recorded_at
		FROM executions
		WHERE status <> 'in_flight'
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent outcomes: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// ListBefore returns terminal outcomes recorded strictly before the
// cutoff, oldest first, for archival.
func (s *OutcomeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_id, status, detail, attempts, recorded_at
		FROM executions
		WHERE status <> 'in_flight' AND recorded_at < $1
		ORDER BY recorded_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes before %s: %w", before, err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func scanOutcomes(rows pgx.Rows) ([]domain.Outcome, error) {
	var list []domain.Outcome
	for rows.Next() {
		var out domain.Outcome
		var status string
		if err := rows.Scan(&out.OpportunityID, &status, &out.Detail, &out.Attempts, &out.RecordedAt); err != nil {
			return nil, err
		}
		out.Status = domain.OutcomeStatus(status)
		list = append(list, out)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.OutcomeLedger = (*OutcomeStore)(nil)
