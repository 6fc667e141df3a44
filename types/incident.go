package types

import "time"

// ResponseStatus tracks an incident response through its lifecycle
type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "PENDING"
	ResponseCompleted ResponseStatus = "COMPLETED"
)

// IncidentResponse records the outcome of executing response actions for an
// event. Immutable once marked completed.
type IncidentResponse struct {
	ID         string         `json:"id"`
	EventID    string         `json:"event_id"`
	Actions    []string       `json:"actions"`
	Status     ResponseStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt time.Time      `json:"resolved_at,omitempty"`
	Failures   []string       `json:"failures,omitempty"`
}

// IncidentFilter for querying recorded responses
type IncidentFilter struct {
	Status  ResponseStatus `json:"status,omitempty"`
	EventID string         `json:"event_id,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// Matches checks if response matches filter criteria
func (r *IncidentResponse) Matches(filter IncidentFilter) bool {
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	if filter.EventID != "" && r.EventID != filter.EventID {
		return false
	}
	return true
}
