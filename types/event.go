package types

import (
	"time"

	"github.com/google/uuid"
)

// Severity of a security event, ordered LOW < MEDIUM < HIGH < CRITICAL
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal position of the severity for comparisons
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity normalizes a raw severity string, defaulting to MEDIUM
func ParseSeverity(raw string) Severity {
	s := Severity(raw)
	if s.Valid() {
		return s
	}
	return SeverityMedium
}

// SecurityEvent is a timestamped security occurrence enriched with AI analysis.
// Immutable once appended to history; AIConfidence and IsAnomaly are set
// exactly once, before the event enters history.
type SecurityEvent struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	EventType      string         `json:"event_type"`
	Severity       Severity       `json:"severity"`
	SourceIP       string         `json:"source_ip"`
	TargetResource string         `json:"target_resource"`
	Description    string         `json:"description"`
	Provider       string         `json:"provider"`
	RawData        map[string]any `json:"raw_data,omitempty"`
	AIConfidence   float64        `json:"ai_confidence"`
	IsAnomaly      bool           `json:"is_anomaly"`
}

// RawEvent is an unclassified event record fetched from a connector
type RawEvent struct {
	Timestamp   time.Time      `json:"timestamp,omitempty"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	SourceIP    string         `json:"source_ip"`
	Target      string         `json:"target"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// NewSecurityEvent builds an event from a raw connector record
func NewSecurityEvent(raw RawEvent, provider string, now time.Time) SecurityEvent {
	eventType := raw.Type
	if eventType == "" {
		eventType = "UNKNOWN"
	}
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return SecurityEvent{
		ID:             uuid.NewString(),
		Timestamp:      ts,
		EventType:      eventType,
		Severity:       ParseSeverity(raw.Severity),
		SourceIP:       raw.SourceIP,
		TargetResource: raw.Target,
		Description:    raw.Description,
		Provider:       provider,
		RawData:        raw.Data,
	}
}

// NewPlatformEvent builds an internally generated event (model drift,
// high-risk resource, etc) attributed to the platform itself
func NewPlatformEvent(eventType, description string, severity Severity, data map[string]any) SecurityEvent {
	return SecurityEvent{
		ID:             uuid.NewString(),
		Timestamp:      time.Now(),
		EventType:      eventType,
		Severity:       severity,
		SourceIP:       "internal",
		TargetResource: "platform",
		Description:    description,
		Provider:       "platform",
		RawData:        data,
	}
}

// EventFilter for querying event history
type EventFilter struct {
	Severity  Severity  `json:"severity,omitempty"`
	EventType string    `json:"event_type,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Matches checks if event matches filter criteria (Limit is applied by callers)
func (e *SecurityEvent) Matches(filter EventFilter) bool {
	if filter.Severity != "" && e.Severity != filter.Severity {
		return false
	}
	if filter.EventType != "" && e.EventType != filter.EventType {
		return false
	}
	if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}
