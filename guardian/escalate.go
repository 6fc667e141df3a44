package guardian

import (
	"fmt"

	"github.com/yairfalse/vigil/config"
	"github.com/yairfalse/vigil/types"
)

// EvaluateEscalations turns unhealthy model reports into platform events.
// Drifted models warrant attention; adversarial probing warrants an
// immediate response.
func EvaluateEscalations(reports []types.ModelMetrics, thresholds config.Thresholds) []types.SecurityEvent {
	var events []types.SecurityEvent

	for _, report := range reports {
		if report.DriftScore > thresholds.ModelDrift {
			events = append(events, types.NewPlatformEvent(
				"MODEL_DRIFT",
				fmt.Sprintf("model %s drift %.2f exceeds %.2f", report.ModelID, report.DriftScore, thresholds.ModelDrift),
				types.SeverityHigh,
				map[string]any{"model_id": report.ModelID, "drift_score": report.DriftScore},
			))
		}
		if report.AdversarialAttempts > thresholds.AdversarialCount {
			events = append(events, types.NewPlatformEvent(
				"MODEL_ATTACK",
				fmt.Sprintf("model %s saw %d adversarial attempts", report.ModelID, report.AdversarialAttempts),
				types.SeverityCritical,
				map[string]any{"model_id": report.ModelID, "adversarial_attempts": report.AdversarialAttempts},
			))
		}
	}
	return events
}
