package ai

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yairfalse/vigil/types"
)

const staleAccessDays = 30

// HeuristicModel is the built-in reference model. It scores events from
// severity and event type, and resources from security posture. All
// outputs are deterministic so the pipeline behaves predictably when no
// external models are wired in.
type HeuristicModel struct {
	id          string
	accuracy    float64
	trainedAt   time.Time
	predictions atomic.Int64
	adversarial atomic.Int64

	mu  sync.Mutex
	now func() time.Time
}

// NewHeuristicModel creates the reference model
func NewHeuristicModel(id string, accuracy float64, trainedAt time.Time) *HeuristicModel {
	return &HeuristicModel{
		id:        id,
		accuracy:  accuracy,
		trainedAt: trainedAt,
		now:       time.Now,
	}
}

// ID returns the model identifier
func (m *HeuristicModel) ID() string {
	return m.id
}

// Predict scores an event from its severity band, bumped for event types
// associated with credential abuse
func (m *HeuristicModel) Predict(_ context.Context, event types.SecurityEvent) (float64, error) {
	m.predictions.Add(1)

	confidence := 0.2 * float64(event.Severity.Rank())
	switch event.EventType {
	case "LOGIN_ATTEMPT", "PRIVILEGE_ESCALATION":
		confidence += 0.1
	}
	return clamp01(confidence), nil
}

// AssessRisk scores a resource from missing security groups, public
// exposure tags and access staleness
func (m *HeuristicModel) AssessRisk(_ context.Context, resource types.Resource) (float64, error) {
	var risk float64
	if len(resource.SecurityGroupIDs) == 0 {
		risk += 0.2
	}
	for _, value := range resource.Tags {
		if strings.EqualFold(value, "public") || strings.EqualFold(value, "open") {
			risk += 0.2
			break
		}
	}
	if resource.DaysSinceAccess(m.timeNow()) > staleAccessDays {
		risk += 0.1
	}
	return clamp01(risk), nil
}

// RecordAdversarialAttempt bumps the adversarial counter. Called by the
// ingestion path when an event looks like probing against the model itself.
func (m *HeuristicModel) RecordAdversarialAttempt() {
	m.adversarial.Add(1)
}

// Health reports drift as a function of training age. A model retrained
// recently drifts slowly; one left untrained for months drifts toward 1.0.
func (m *HeuristicModel) Health(_ context.Context) (types.ModelMetrics, error) {
	m.mu.Lock()
	now := m.now()
	trainedAt := m.trainedAt
	m.mu.Unlock()

	ageDays := now.Sub(trainedAt).Hours() / 24

	drift := ageDays / 100
	if drift > 1 {
		drift = 1
	}
	if drift < 0 {
		drift = 0
	}

	return types.ModelMetrics{
		ModelID:              m.id,
		Accuracy:             m.accuracy,
		DriftScore:           drift,
		LastTraining:         trainedAt,
		PredictionConfidence: m.accuracy * (1 - drift/2),
		AdversarialAttempts:  int(m.adversarial.Load()),
		CheckedAt:            now,
	}, nil
}

// MarkTrained resets the training timestamp, clearing accumulated drift
func (m *HeuristicModel) MarkTrained(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainedAt = at
}

func (m *HeuristicModel) timeNow() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}
