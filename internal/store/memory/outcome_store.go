// Package memory provides an in-process outcome ledger with the same
// atomicity contract as the PostgreSQL implementation. Used for dry-run
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

type record struct {
	out       domain.Outcome
	inFlight  bool
	claimedAt time.Time
}

// OutcomeStore implements domain.OutcomeLedger with a mutex-guarded map.
type OutcomeStore struct {
	mu            sync.Mutex
	records       map[string]*record
	staleClaimTTL time.Duration
}

// NewOutcomeStore creates an OutcomeStore.
func NewOutcomeStore(staleClaimTTL time.Duration) *OutcomeStore {
	return &OutcomeStore{
		records:       make(map[string]*record),
		staleClaimTTL: staleClaimTTL,
	}
}

// Reserve atomically claims processing of an ID.
func (s *OutcomeStore) Reserve(_ context.Context, id string) (domain.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		s.records[id] = &record{
			out:       domain.Outcome{OpportunityID: id, Attempts: 1},
			inFlight:  true,
			claimedAt: time.Now(),
		}
		return domain.Claim{Owned: true, Attempt: 1}, nil
	}

	if !rec.inFlight {
		out := rec.out
		return domain.Claim{Existing: &out, Attempt: out.Attempts}, nil
	}

	if time.Since(rec.claimedAt) >= s.staleClaimTTL {
		rec.out.Attempts++
		rec.claimedAt = time.Now()
		return domain.Claim{Owned: true, Attempt: rec.out.Attempts}, nil
	}

	return domain.Claim{}, nil
}

// RecordTerminal promotes a held claim to an immutable terminal outcome.
func (s *OutcomeStore) RecordTerminal(_ context.Context, out domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[out.OpportunityID]
	if !ok || !rec.inFlight {
		return domain.ErrNotFound
	}

	if out.RecordedAt.IsZero() {
		out.RecordedAt = time.Now().UTC()
	}
	out.Attempts = rec.out.Attempts
	rec.out = out
	rec.inFlight = false
	return nil
}

// Release drops a held claim, making the ID immediately reclaimable.
func (s *OutcomeStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok && rec.inFlight {
		rec.claimedAt = time.Time{}
	}
	return nil
}

// Lookup returns the terminal outcome for an ID, or ErrNotFound.
func (s *OutcomeStore) Lookup(_ context.Context, id string) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.inFlight {
		return domain.Outcome{}, domain.ErrNotFound
	}
	return rec.out, nil
}

// ListRecent returns the most recently recorded terminal outcomes.
func (s *OutcomeStore) ListRecent(_ context.Context, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var list []domain.Outcome
	for _, rec := range s.records {
		if !rec.inFlight {
			list = append(list, rec.out)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RecordedAt.After(list[j].RecordedAt)
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ListBefore returns terminal outcomes recorded strictly before the
// cutoff, oldest first.
func (s *OutcomeStore) ListBefore(_ context.Context, before time.Time) ([]domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []domain.Outcome
	for _, rec := range s.records {
		if !rec.inFlight && rec.out.RecordedAt.Before(before) {
			list = append(list, rec.out)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RecordedAt.Before(list[j].RecordedAt)
	})
	return list, nil
}

// Compile-time interface check.
var _ domain.OutcomeLedger = (*OutcomeStore)(nil)
