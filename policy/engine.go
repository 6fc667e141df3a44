// Package policy evaluates Rego rules that can suppress automated
// responses. Policies decide only whether a response is suppressed;
// they never trigger actions themselves.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

// OpaExpressionValue represents the dynamic value from OPA expression
// results. OPA returns arbitrary JSON structures whose shape is decided
// by the rules at runtime, so this stays a map.
type OpaExpressionValue map[string]interface{}

// Engine evaluates suppression policies against security events
type Engine struct {
	mu      sync.RWMutex
	queries map[string]rego.PreparedEvalQuery
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

// Input is the document handed to every policy evaluation
type Input struct {
	Event     types.SecurityEvent `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
}

// Verdict is the outcome of evaluating all loaded policies for one event
type Verdict struct {
	Suppress bool     `json:"suppress"`
	Reason   string   `json:"reason"`
	Policies []string `json:"policies"`
}

// NewEngine creates an engine with no policies loaded. With no policies
// loaded every event passes.
func NewEngine() *Engine {
	return &Engine{
		queries: make(map[string]rego.PreparedEvalQuery),
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
	}
}

// LoadPolicy compiles a Rego module and registers it under name
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.vigil"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	e.mu.Lock()
	e.queries[name] = prepared
	e.mu.Unlock()

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("Policy loaded")
	return nil
}

// LoadDir compiles every .rego file in dir. A missing dir is not an
// error; the engine just stays empty.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read policy dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		code, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".rego")
		if err := e.LoadPolicy(ctx, name, string(code)); err != nil {
			return err
		}
	}
	return nil
}

// PolicyCount returns the number of loaded policies
func (e *Engine) PolicyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.queries)
}

// Evaluate runs all loaded policies against the event. Any policy that
// sets suppress wins; failing policies are skipped.
func (e *Engine) Evaluate(ctx context.Context, event types.SecurityEvent) (Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.evaluate",
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.type", event.EventType)))
	defer span.End()

	input := Input{Event: event, Timestamp: time.Now()}
	verdict := Verdict{Policies: []string{}}

	e.mu.RLock()
	queries := make(map[string]rego.PreparedEvalQuery, len(e.queries))
	for name, query := range e.queries {
		queries[name] = query
	}
	e.mu.RUnlock()

	for name, query := range queries {
		results, err := query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("policy_name", name).
				Msg("Policy evaluation failed")
			continue
		}

		suppress, reason := parseEvalResults(results)
		if suppress {
			verdict.Suppress = true
			verdict.Policies = append(verdict.Policies, name)
			if verdict.Reason == "" {
				verdict.Reason = reason
			}
		}
	}

	return verdict, nil
}

// Suppress implements the orchestrator's policy hook
func (e *Engine) Suppress(ctx context.Context, event types.SecurityEvent) (bool, string, error) {
	verdict, err := e.Evaluate(ctx, event)
	if err != nil {
		return false, "", err
	}
	return verdict.Suppress, verdict.Reason, nil
}

func parseEvalResults(results rego.ResultSet) (bool, string) {
	suppress := false
	reason := ""

	for _, res := range results {
		for _, value := range res.Bindings {
			bindVerdictValue(value, &suppress, &reason)
		}
		if len(res.Expressions) > 0 {
			switch expr := res.Expressions[0].Value.(type) {
			case OpaExpressionValue:
				for key, value := range expr {
					bindVerdictField(key, value, &suppress, &reason)
				}
			case map[string]interface{}:
				for key, value := range expr {
					bindVerdictField(key, value, &suppress, &reason)
				}
			}
		}
	}
	return suppress, reason
}

func bindVerdictValue(value interface{}, suppress *bool, reason *string) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return
	}
	for key, v := range m {
		bindVerdictField(key, v, suppress, reason)
	}
}

func bindVerdictField(key string, value interface{}, suppress *bool, reason *string) {
	switch key {
	case "suppress":
		if b, ok := value.(bool); ok && b {
			*suppress = true
		}
	case "reason":
		if s, ok := value.(string); ok && *reason == "" {
			*reason = s
		}
	}
}
