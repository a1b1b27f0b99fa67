package domain

import (
	"context"
	"time"
)

// Claim is the result of an atomic reservation attempt on the outcome
// ledger. Exactly one of three shapes comes back: ownership (Owned),
// an existing terminal record (Existing non-nil), or neither, meaning
// another worker currently holds the in-flight claim.
type Claim struct {
	Owned    bool
	Existing *Outcome
	// Attempt is the delivery count for this ID after the reservation.
	Attempt int
}

// OutcomeLedger is the idempotency ledger: the check-then-record pair
// for a given ID is atomic, so two concurrent deliveries of the same
// opportunity can never both pass the reservation.
type OutcomeLedger interface {
	// Reserve atomically claims processing of an ID. When a terminal
	// outcome already exists it is returned in Claim.Existing and no
	// claim is taken.
	Reserve(ctx context.Context, id string) (Claim, error)

	// RecordTerminal promotes a held claim to an immutable terminal
	// outcome.
	RecordTerminal(ctx context.Context, out Outcome) error

	// Release drops a held claim after an infrastructure failure so the
	// next delivery re-enters the pipeline from the start.
	Release(ctx context.Context, id string) error

	// Lookup returns the terminal outcome for an ID, or ErrNotFound.
	Lookup(ctx context.Context, id string) (Outcome, error)

	ListRecent(ctx context.Context, limit int) ([]Outcome, error)

	// ListBefore returns terminal outcomes recorded strictly before the
	// cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]Outcome, error)
}

// ClaimGuard is an optional cross-instance lock taken around the
// reserve/record pair when multiple executor replicas share one ledger.
type ClaimGuard interface {
	// Acquire returns an unlock function on success, or ErrClaimHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SecretProvider resolves named credentials to their current values.
// Implementations must fail with ErrSecretUnavailable (wrapped) for any
// retrieval failure, and must never log resolved material.
type SecretProvider interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// FeeOracle produces the fee-market snapshot that bundle construction
// is evaluated against.
type FeeOracle interface {
	Snapshot(ctx context.Context) (FeeSnapshot, error)
}

// BundleSigner signs bundle digests. Resolved per invocation from the
// secret provider; never persisted.
type BundleSigner interface {
	SignDigest(digest []byte) ([]byte, error)
	Address() string
}
