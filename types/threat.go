package types

import "time"

// ThreatPattern is a recurring grouping of events mined from recent history
type ThreatPattern struct {
	PatternID   string    `json:"pattern_id"`
	PatternType string    `json:"pattern_type"`
	SourceIP    string    `json:"source_ip"`
	Confidence  float64   `json:"confidence"`
	EventCount  int       `json:"event_count"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ActiveThreat is a promoted pattern tracked until it expires
type ActiveThreat struct {
	ThreatPattern
	PromotedAt  time.Time `json:"promoted_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	RefreshHits int       `json:"refresh_hits"`
}

// ModelMetrics is a point-in-time health report for a predictive model.
// Produced fresh on each check; never cached by the monitor.
type ModelMetrics struct {
	ModelID              string    `json:"model_id"`
	Accuracy             float64   `json:"accuracy"`
	DriftScore           float64   `json:"drift_score"`
	LastTraining         time.Time `json:"last_training"`
	PredictionConfidence float64   `json:"prediction_confidence"`
	AdversarialAttempts  int       `json:"adversarial_attempts"`
	CheckedAt            time.Time `json:"checked_at"`
}
