package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// sendTimeout bounds one alert delivery.
const sendTimeout = 15 * time.Second

// OutcomeAlerter adapts a Notifier to the execution event stream. Events
// are queued and delivered by a background worker so a slow channel never
// stalls the pipeline; when the queue is full, events are dropped.
type OutcomeAlerter struct {
	notifier *Notifier
	queue    chan domain.ExecutionEvent
	logger   *slog.Logger
}

// NewOutcomeAlerter creates an OutcomeAlerter. Run must be started for
// queued events to be delivered.
func NewOutcomeAlerter(notifier *Notifier, logger *slog.Logger) *OutcomeAlerter {
	return &OutcomeAlerter{
		notifier: notifier,
		queue:    make(chan domain.ExecutionEvent, 64),
		logger:   logger.With(slog.String("component", "alerter")),
	}
}

// Publish queues an execution event for alerting. It never blocks.
func (a *OutcomeAlerter) Publish(ev domain.ExecutionEvent) {
	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("alert queue full, dropping event",
			slog.String("kind", string(ev.Kind)),
		)
	}
}

// Run drains the queue until the context is cancelled.
func (a *OutcomeAlerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.queue:
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			title, message := formatEvent(ev)
			if err := a.notifier.Notify(sendCtx, string(ev.Kind), title, message); err != nil {
				a.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// formatEvent renders an execution event as an operator alert. Only
// public identifiers and statuses appear in the message.
func formatEvent(ev domain.ExecutionEvent) (title, message string) {
	switch ev.Kind {
	case domain.EventOutcomeRecorded:
		title = fmt.Sprintf("Execution %s", ev.Status)
		message = fmt.Sprintf("opportunity %s\nstrategy: %s\n%s", ev.OpportunityID, ev.Strategy, ev.Detail)
	case domain.EventBundleSubmitted:
		title = "Bundle submitted"
		message = fmt.Sprintf("opportunity %s\nbundle: %s", ev.OpportunityID, ev.Detail)
	default:
		title = string(ev.Kind)
		message = fmt.Sprintf("opportunity %s", ev.OpportunityID)
	}
	return title, message
}
