package response

import (
	"sync"

	"github.com/yairfalse/vigil/types"
)

// IncidentLog is the in-memory record of incident responses, newest
// first on query. Safe for concurrent use.
type IncidentLog struct {
	mu        sync.RWMutex
	incidents []types.IncidentResponse
	byID      map[string]int
}

// NewIncidentLog creates an empty incident log
func NewIncidentLog() *IncidentLog {
	return &IncidentLog{byID: make(map[string]int)}
}

// Record appends a new incident
func (l *IncidentLog) Record(incident types.IncidentResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[incident.ID] = len(l.incidents)
	l.incidents = append(l.incidents, incident)
}

// Update replaces the incident with the same ID
func (l *IncidentLog) Update(incident types.IncidentResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx, ok := l.byID[incident.ID]; ok {
		l.incidents[idx] = incident
	}
}

// Get returns an incident by ID
func (l *IncidentLog) Get(id string) (types.IncidentResponse, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byID[id]
	if !ok {
		return types.IncidentResponse{}, false
	}
	return l.incidents[idx], true
}

// Query returns matching incidents, newest first
func (l *IncidentLog) Query(filter types.IncidentFilter) []types.IncidentResponse {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.IncidentResponse, 0)
	for i := len(l.incidents) - 1; i >= 0; i-- {
		incident := l.incidents[i]
		if !incident.Matches(filter) {
			continue
		}
		out = append(out, incident)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Len returns the number of recorded incidents
func (l *IncidentLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.incidents)
}
