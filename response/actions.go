// Package response executes automated incident responses. Events are
// queued with bounded backpressure, drained in order, and every state
// change is recorded in the write-ahead log before it happens.
package response

import (
	"context"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// Action is one automated response step. Implementations must be safe
// for concurrent use.
type Action interface {
	// Name returns the action identifier recorded on incidents
	Name() string

	// Execute performs the action for the given event
	Execute(ctx context.Context, event types.SecurityEvent) error
}

// loggedAction is the built-in action implementation. Real enforcement
// hooks (provider API calls, paging integrations) plug in as their own
// Action implementations; the built-ins record intent.
type loggedAction struct {
	name   string
	logger *telemetry.Logger
}

func newLoggedAction(name string) *loggedAction {
	return &loggedAction{
		name:   name,
		logger: telemetry.NewLogger("response-action"),
	}
}

func (a *loggedAction) Name() string {
	return a.name
}

func (a *loggedAction) Execute(ctx context.Context, event types.SecurityEvent) error {
	a.logger.WithContext(ctx).Info().
		Str("action", a.name).
		Str("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("target_resource", event.TargetResource).
		Msg("Executing response action")
	return nil
}

// Built-in action names
const (
	ActionIsolateResource    = "isolate_resource"
	ActionNotifySecurityTeam = "notify_security_team"
	ActionCreateTicket       = "create_incident_ticket"
	ActionIncreaseMonitoring = "increase_monitoring"
	ActionNotifyAdmin        = "notify_admin"
)

// Planner maps an event to the ordered actions it warrants
type Planner struct {
	actions map[string]Action
}

// NewPlanner creates a planner with the built-in actions
func NewPlanner() *Planner {
	p := &Planner{actions: make(map[string]Action)}
	for _, name := range []string{
		ActionIsolateResource,
		ActionNotifySecurityTeam,
		ActionCreateTicket,
		ActionIncreaseMonitoring,
		ActionNotifyAdmin,
	} {
		p.actions[name] = newLoggedAction(name)
	}
	return p
}

// RegisterAction replaces or adds an action implementation
func (p *Planner) RegisterAction(action Action) {
	p.actions[action.Name()] = action
}

// Plan returns the ordered actions for an event. Critical events get the
// containment set, anomalous events get the observation set, everything
// else gets none.
func (p *Planner) Plan(event types.SecurityEvent) []Action {
	var names []string
	switch {
	case event.Severity == types.SeverityCritical:
		names = []string{ActionIsolateResource, ActionNotifySecurityTeam, ActionCreateTicket}
	case event.IsAnomaly:
		names = []string{ActionIncreaseMonitoring, ActionNotifyAdmin}
	default:
		return nil
	}

	actions := make([]Action, 0, len(names))
	for _, name := range names {
		if action, ok := p.actions[name]; ok {
			actions = append(actions, action)
		}
	}
	return actions
}
