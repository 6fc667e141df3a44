package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

const healthCheckTimeout = 10 * time.Second

// SafetyMonitor audits model health. One misbehaving model never blocks
// the audit of the others; each check runs under its own timeout.
type SafetyMonitor struct {
	facade *Facade
	logger *telemetry.Logger
}

// NewSafetyMonitor creates a monitor over the facade's models
func NewSafetyMonitor(facade *Facade) *SafetyMonitor {
	return &SafetyMonitor{
		facade: facade,
		logger: telemetry.NewLogger("safety-monitor"),
	}
}

// CheckModel audits a single model under a timeout
func (s *SafetyMonitor) CheckModel(ctx context.Context, model PredictiveModel) (types.ModelMetrics, error) {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	metrics, err := model.Health(checkCtx)
	if err != nil {
		return types.ModelMetrics{}, fmt.Errorf("health check for model %s failed: %w", model.ID(), err)
	}
	if metrics.CheckedAt.IsZero() {
		metrics.CheckedAt = time.Now()
	}
	return metrics, nil
}

// CheckAll audits every registered model. The returned slice holds one
// report per model; a model whose check failed gets a placeholder report
// with a zero CheckedAt so its health reads as unknown rather than the
// model disappearing from view.
func (s *SafetyMonitor) CheckAll(ctx context.Context) []types.ModelMetrics {
	models := s.facade.Models()
	reports := make([]types.ModelMetrics, 0, len(models))

	for _, model := range models {
		metrics, err := s.CheckModel(ctx, model)
		if err != nil {
			s.logger.LogModelError(ctx, model.ID(), "health", err)
			reports = append(reports, types.ModelMetrics{ModelID: model.ID()})
			continue
		}
		reports = append(reports, metrics)
	}
	return reports
}
