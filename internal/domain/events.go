package domain

import "time"

// EventKind labels an execution lifecycle event.
type EventKind string

const (
	EventOpportunityReceived EventKind = "opportunity_received"
	EventBundleSubmitted     EventKind = "bundle_submitted"
	EventOutcomeRecorded     EventKind = "outcome_recorded"
)

// ExecutionEvent is a display-only notification of pipeline progress,
// fanned out to the WebSocket hub and operator notifiers. Events carry
// no secret material and are always best-effort.
type ExecutionEvent struct {
	Kind          EventKind     `json:"kind"`
	OpportunityID string        `json:"opportunityId"`
	Strategy      StrategyKind  `json:"strategy,omitempty"`
	Status        OutcomeStatus `json:"status,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	At            time.Time     `json:"at"`
}

// EventSink receives execution events. Implementations must not block
// the execution pipeline.
type EventSink interface {
	Publish(ev ExecutionEvent)
}
