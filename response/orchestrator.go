package response

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// ErrQueueFull signals that the response queue rejected an event. Callers
// decide whether to drop, retry, or escalate; the orchestrator never blocks.
var ErrQueueFull = errors.New("response queue full")

// Suppressor decides whether policy suppresses the response to an event
type Suppressor interface {
	Suppress(ctx context.Context, event types.SecurityEvent) (bool, string, error)
}

// Orchestrator owns the response pipeline: a bounded queue of events
// awaiting response, the action planner, the incident log, and the WAL
// audit trail.
type Orchestrator struct {
	queue      chan types.SecurityEvent
	planner    *Planner
	incidents  *IncidentLog
	wal        *wal.WAL
	suppressor Suppressor
	metrics    *telemetry.GuardianMetrics
	logger     *telemetry.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator with the given queue capacity.
// auditLog and suppressor may be nil; auditing and policy suppression are
// then disabled.
func NewOrchestrator(queueCapacity int, auditLog *wal.WAL, suppressor Suppressor, metrics *telemetry.GuardianMetrics) *Orchestrator {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Orchestrator{
		queue:      make(chan types.SecurityEvent, queueCapacity),
		planner:    NewPlanner(),
		incidents:  NewIncidentLog(),
		wal:        auditLog,
		suppressor: suppressor,
		metrics:    metrics,
		logger:     telemetry.NewLogger("response-orchestrator"),
		now:        time.Now,
	}
}

// Planner exposes the action planner for registration of custom actions
func (o *Orchestrator) Planner() *Planner {
	return o.planner
}

// Incidents exposes the incident log for queries
func (o *Orchestrator) Incidents() *IncidentLog {
	return o.incidents
}

// Pending returns the number of events waiting in the queue
func (o *Orchestrator) Pending() int {
	return len(o.queue)
}

// Submit queues an event for response without blocking. Returns
// ErrQueueFull when the queue is at capacity. Submitting the same event
// again produces an independent response.
func (o *Orchestrator) Submit(ctx context.Context, event types.SecurityEvent) error {
	select {
	case o.queue <- event:
		o.audit(wal.EntryQueued, event.ID, event, nil)
		return nil
	default:
		if o.metrics != nil {
			o.metrics.RecordQueueRejection(ctx)
		}
		o.logger.WithContext(ctx).Warn().
			Str("event_id", event.ID).
			Str("severity", string(event.Severity)).
			Msg("Response queue full, rejecting event")
		return ErrQueueFull
	}
}

// Drain processes queued events until the queue is empty or the context
// is cancelled. Cancellation is honored between events, never inside one;
// an event that started responding finishes.
func (o *Orchestrator) Drain(ctx context.Context) int {
	processed := 0
	for {
		select {
		case <-ctx.Done():
			return processed
		default:
		}

		select {
		case event := <-o.queue:
			o.respond(ctx, event)
			processed++
		default:
			return processed
		}
	}
}

// respond runs the full response lifecycle for one event
func (o *Orchestrator) respond(ctx context.Context, event types.SecurityEvent) {
	if o.suppressor != nil {
		suppressed, reason, err := o.suppressor.Suppress(ctx, event)
		if err != nil {
			o.logger.WithContext(ctx).Warn().
				Str("event_id", event.ID).
				Err(err).
				Msg("Policy evaluation failed, responding anyway")
		} else if suppressed {
			o.audit(wal.EntrySkipped, event.ID, map[string]string{"reason": reason}, nil)
			o.logger.WithContext(ctx).Info().
				Str("event_id", event.ID).
				Str("reason", reason).
				Msg("Response suppressed by policy")
			return
		}
	}

	actions := o.planner.Plan(event)
	if len(actions) == 0 {
		return
	}

	names := make([]string, len(actions))
	for i, action := range actions {
		names[i] = action.Name()
	}

	incident := types.IncidentResponse{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Actions:   names,
		Status:    types.ResponsePending,
		CreatedAt: o.now(),
	}
	o.incidents.Record(incident)
	o.audit(wal.EntryExecuting, event.ID, incident, nil)

	// best effort: one failed action never stops the rest
	var failures []string
	for _, action := range actions {
		if err := action.Execute(ctx, event); err != nil {
			failures = append(failures, action.Name()+": "+err.Error())
			o.logger.WithContext(ctx).Error().
				Str("event_id", event.ID).
				Str("action", action.Name()).
				Err(err).
				Msg("Response action failed")
		}
	}

	incident.Status = types.ResponseCompleted
	incident.ResolvedAt = o.now()
	incident.Failures = failures
	o.incidents.Update(incident)

	if len(failures) > 0 {
		o.audit(wal.EntryFailed, event.ID, incident, errors.New(failures[0]))
	} else {
		o.audit(wal.EntryExecuted, event.ID, incident, nil)
	}

	if o.metrics != nil {
		o.metrics.RecordResponse(ctx, len(actions))
	}
}

func (o *Orchestrator) audit(entryType wal.EntryType, eventID string, data interface{}, execErr error) {
	if o.wal == nil {
		return
	}

	var err error
	if execErr != nil {
		err = o.wal.AppendError(entryType, eventID, data, execErr)
	} else {
		err = o.wal.Append(entryType, eventID, data)
	}
	if err != nil {
		o.logger.Error().
			Str("event_id", eventID).
			Str("entry_type", string(entryType)).
			Err(err).
			Msg("Failed to write audit entry")
	}
}
