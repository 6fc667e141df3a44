// Package ai wraps pluggable predictive models behind a concurrency-safe
// inference facade. Models are capability interfaces; the facade never
// assumes anything about what is inside them beyond numeric outputs.
package ai

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// PredictiveModel is the capability interface for a threat-detection model
type PredictiveModel interface {
	// ID returns the model identifier
	ID() string

	// Predict returns a confidence in [0,1] that the event is a real threat
	Predict(ctx context.Context, event types.SecurityEvent) (float64, error)

	// AssessRisk returns a risk contribution in [0,1] for a resource
	AssessRisk(ctx context.Context, resource types.Resource) (float64, error)

	// Health produces a fresh metrics report for this model
	Health(ctx context.Context) (types.ModelMetrics, error)
}

// Facade fans inference calls out to all registered models. Safe for
// concurrent use from multiple monitoring loops.
type Facade struct {
	mu     sync.RWMutex
	models map[string]PredictiveModel
	logger *telemetry.Logger
}

// NewFacade creates a facade with the given models
func NewFacade(models ...PredictiveModel) *Facade {
	f := &Facade{
		models: make(map[string]PredictiveModel),
		logger: telemetry.NewLogger("ai-facade"),
	}
	for _, m := range models {
		f.models[m.ID()] = m
	}
	return f
}

// Register adds a model to the facade
func (f *Facade) Register(model PredictiveModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[model.ID()] = model
}

// Models returns the registered models in stable ID order
func (f *Facade) Models() []PredictiveModel {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.models))
	for id := range f.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]PredictiveModel, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.models[id])
	}
	return out
}

// Predict returns the mean confidence across all models that answered.
// Individual model failures are logged and skipped; an error is returned
// only when every model failed.
func (f *Facade) Predict(ctx context.Context, event types.SecurityEvent) (float64, error) {
	models := f.Models()
	if len(models) == 0 {
		return 0, fmt.Errorf("no models registered")
	}

	var sum float64
	answered := 0
	for _, model := range models {
		confidence, err := model.Predict(ctx, event)
		if err != nil {
			f.logger.LogModelError(ctx, model.ID(), "predict", err)
			continue
		}
		sum += clamp01(confidence)
		answered++
	}

	if answered == 0 {
		return 0, fmt.Errorf("all %d models failed to predict", len(models))
	}
	return sum / float64(answered), nil
}

// AssessRisk returns the mean risk contribution across all models that
// answered, with the same degraded-mode semantics as Predict
func (f *Facade) AssessRisk(ctx context.Context, resource types.Resource) (float64, error) {
	models := f.Models()
	if len(models) == 0 {
		return 0, fmt.Errorf("no models registered")
	}

	var sum float64
	answered := 0
	for _, model := range models {
		risk, err := model.AssessRisk(ctx, resource)
		if err != nil {
			f.logger.LogModelError(ctx, model.ID(), "assess_risk", err)
			continue
		}
		sum += clamp01(risk)
		answered++
	}

	if answered == 0 {
		return 0, fmt.Errorf("all %d models failed to assess risk", len(models))
	}
	return sum / float64(answered), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
