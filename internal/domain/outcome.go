package domain

import "time"

// OutcomeStatus is the terminal disposition of one opportunity.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeRejected  OutcomeStatus = "rejected"
)

// Outcome is the terminal record for an opportunity ID. It is created
// once and never mutated; the ledger of outcomes is the single source of
// truth for idempotency checks.
type Outcome struct {
	OpportunityID string        `json:"opportunityId"`
	Status        OutcomeStatus `json:"status"`

	// Detail holds the relay bundle hash on success, or the structured
	// failure cause on failed/rejected.
	Detail string `json:"detail"`

	// Attempts counts deliveries that reached the coordinator for this
	// ID, including the one that produced the terminal record.
	Attempts   int       `json:"attempts"`
	RecordedAt time.Time `json:"recordedAt"`
}
