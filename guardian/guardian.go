// Package guardian runs the monitoring pipeline: resource discovery,
// event ingestion, model auditing, threat intel and response draining,
// all supervised as periodic loops over shared state.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yairfalse/vigil/ai"
	"github.com/yairfalse/vigil/anomaly"
	"github.com/yairfalse/vigil/config"
	"github.com/yairfalse/vigil/intel"
	"github.com/yairfalse/vigil/policy"
	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/response"
	"github.com/yairfalse/vigil/risk"
	"github.com/yairfalse/vigil/storage"
	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// ErrNotReady is returned by queries before the first discovery cycle
// has completed
var ErrNotReady = errors.New("service not ready")

// ErrEventNotFound is returned by Resubmit for unknown event IDs
var ErrEventNotFound = errors.New("event not found")

// Guardian owns the pipeline state and the loops that mutate it
type Guardian struct {
	cfg        config.Config
	connectors []providers.ResourceConnector

	facade       *ai.Facade
	monitor      *ai.SafetyMonitor
	scorer       *risk.Scorer
	detector     *anomaly.Detector
	threats      *intel.ThreatRegistry
	orchestrator *response.Orchestrator
	policies     *policy.Engine

	history  *storage.Ring
	archive  *storage.EventStore
	auditLog *wal.WAL

	mu           sync.RWMutex
	inventory    map[string]types.Resource
	modelReports []types.ModelMetrics
	cursors      map[string]time.Time

	subscribers struct {
		mu  sync.RWMutex
		fns []func(types.SecurityEvent)
	}

	ready     atomic.Bool
	startedAt time.Time
	metrics   *telemetry.GuardianMetrics
	logger    *telemetry.Logger
}

// New wires a guardian from config. Connectors are built from the
// registry; models default to the built-in heuristic when none are given.
func New(ctx context.Context, cfg config.Config, models ...ai.PredictiveModel) (*Guardian, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	connectors := make([]providers.ResourceConnector, 0, len(cfg.Connectors))
	for _, spec := range cfg.Connectors {
		connector, err := providers.New(ctx, spec.Provider, providers.ConnectorConfig{Region: spec.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s connector: %w", spec.Provider, err)
		}
		connectors = append(connectors, connector)
	}

	if len(models) == 0 {
		models = []ai.PredictiveModel{ai.NewHeuristicModel("heuristic-v1", 0.9, time.Now())}
	}
	facade := ai.NewFacade(models...)

	metrics, err := telemetry.NewGuardianMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	var auditLog *wal.WAL
	if cfg.Responses.WALDir != "" {
		auditLog, err = wal.Open(cfg.Responses.WALDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	policies := policy.NewEngine()
	if cfg.Responses.PolicyDir != "" {
		if err := policies.LoadDir(ctx, cfg.Responses.PolicyDir); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	var archive *storage.EventStore
	if cfg.History.ArchiveDir != "" {
		archive, err = storage.NewEventStore(cfg.History.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open event archive: %w", err)
		}
	}

	g := &Guardian{
		cfg:          cfg,
		connectors:   connectors,
		facade:       facade,
		monitor:      ai.NewSafetyMonitor(facade),
		scorer:       risk.NewScorer(facade),
		detector:     anomaly.NewDetector(cfg.Thresholds.AnomalySigma, cfg.Thresholds.AnomalyMinSamples),
		threats:      intel.NewThreatRegistry(cfg.Thresholds.PromoteConfidence, cfg.Responses.ThreatTTL),
		orchestrator: response.NewOrchestrator(cfg.Responses.QueueCapacity, auditLog, policies, metrics),
		policies:     policies,
		history:      storage.NewRing(cfg.History.Capacity),
		archive:      archive,
		auditLog:     auditLog,
		inventory:    make(map[string]types.Resource),
		cursors:      make(map[string]time.Time),
		startedAt:    time.Now(),
		metrics:      metrics,
		logger:       telemetry.NewLogger("guardian"),
	}
	return g, nil
}

// Close releases the durable stores
func (g *Guardian) Close() error {
	var errs []error
	if g.archive != nil {
		if err := g.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if g.auditLog != nil {
		if err := g.auditLog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ready reports whether the first discovery cycle has completed
func (g *Guardian) Ready() bool {
	return g.ready.Load()
}

// Subscribe registers a callback invoked for every processed event.
// Callbacks must not block.
func (g *Guardian) Subscribe(fn func(types.SecurityEvent)) {
	g.subscribers.mu.Lock()
	defer g.subscribers.mu.Unlock()
	g.subscribers.fns = append(g.subscribers.fns, fn)
}

func (g *Guardian) publish(event types.SecurityEvent) {
	g.subscribers.mu.RLock()
	defer g.subscribers.mu.RUnlock()
	for _, fn := range g.subscribers.fns {
		fn(event)
	}
}

// Events queries the bounded history, newest first
func (g *Guardian) Events(filter types.EventFilter) ([]types.SecurityEvent, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	return g.history.Query(filter), nil
}

// Event returns one event by ID from the ring, falling back to the
// archive for events already evicted from memory
func (g *Guardian) Event(id string) (types.SecurityEvent, error) {
	if !g.Ready() {
		return types.SecurityEvent{}, ErrNotReady
	}
	return g.lookupEvent(id)
}

func (g *Guardian) lookupEvent(id string) (types.SecurityEvent, error) {
	if event, ok := g.history.Get(id); ok {
		return event, nil
	}
	if g.archive != nil {
		if event, err := g.archive.Get(id); err == nil {
			return *event, nil
		}
	}
	return types.SecurityEvent{}, ErrEventNotFound
}

// Resources returns tracked resources matching the filter, sorted by
// risk score descending
func (g *Guardian) Resources(filter types.ResourceFilter) ([]types.Resource, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}

	g.mu.RLock()
	out := make([]types.Resource, 0, len(g.inventory))
	for _, resource := range g.inventory {
		if resource.Matches(filter) {
			out = append(out, resource)
		}
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Threats returns the active threat snapshot
func (g *Guardian) Threats() ([]types.ActiveThreat, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	return g.threats.Active(), nil
}

// Incidents queries recorded incident responses
func (g *Guardian) Incidents(filter types.IncidentFilter) ([]types.IncidentResponse, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	return g.orchestrator.Incidents().Query(filter), nil
}

// Models returns the latest model health reports
func (g *Guardian) Models() ([]types.ModelMetrics, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.ModelMetrics, len(g.modelReports))
	copy(out, g.modelReports)
	return out, nil
}

// Resubmit queues a past event for a fresh, independent response
func (g *Guardian) Resubmit(ctx context.Context, eventID string) error {
	if !g.Ready() {
		return ErrNotReady
	}
	event, err := g.lookupEvent(eventID)
	if err != nil {
		return err
	}
	return g.orchestrator.Submit(ctx, event)
}

// EventTypeCounts returns per-type event counts in a time range, served
// from the durable archive when one is configured
func (g *Guardian) EventTypeCounts(start, end time.Time) (map[string]int, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}

	if g.archive != nil {
		return g.archive.CountByType(start, end)
	}

	counts := make(map[string]int)
	for _, event := range g.history.Snapshot() {
		if event.Timestamp.Before(start) || event.Timestamp.After(end) {
			continue
		}
		counts[event.EventType]++
	}
	return counts, nil
}

// ModelSummary pairs a health report with its derived status label
type ModelSummary struct {
	types.ModelMetrics
	Status string `json:"status"`
}

func (g *Guardian) modelStatus(report types.ModelMetrics) string {
	if report.CheckedAt.IsZero() {
		return "unknown"
	}
	if report.DriftScore > g.cfg.Thresholds.ModelDrift ||
		report.AdversarialAttempts > g.cfg.Thresholds.AdversarialCount {
		return "degraded"
	}
	return "healthy"
}

// Dashboard is the aggregated state snapshot served to operators
type Dashboard struct {
	GeneratedAt       time.Time             `json:"generated_at"`
	UptimeSeconds     int64                 `json:"uptime_seconds"`
	Resources         int                   `json:"resources"`
	HighRiskResources int                   `json:"high_risk_resources"`
	EventsLast24h     int                   `json:"events_last_24h"`
	AnomaliesLast24h  int                   `json:"anomalies_last_24h"`
	ThreatTrends      map[string]int        `json:"threat_trends"`
	ActiveThreats     []types.ActiveThreat  `json:"active_threats"`
	Incidents         int                   `json:"incidents"`
	PendingResponses  int                   `json:"pending_responses"`
	Models            []ModelSummary        `json:"models"`
}

// Snapshot assembles the dashboard from current state
func (g *Guardian) Snapshot() (Dashboard, error) {
	if !g.Ready() {
		return Dashboard{}, ErrNotReady
	}

	now := time.Now()
	dayAgo := now.Add(-24 * time.Hour)

	anomalies := 0
	trends := make(map[string]int)
	for _, event := range g.history.Recent(24*time.Hour, now) {
		if event.IsAnomaly {
			anomalies++
		}
		trends[event.EventType]++
	}

	g.mu.RLock()
	resources := len(g.inventory)
	highRisk := 0
	for _, resource := range g.inventory {
		if resource.RiskScore >= g.cfg.Thresholds.HighRisk {
			highRisk++
		}
	}
	models := make([]ModelSummary, 0, len(g.modelReports))
	for _, report := range g.modelReports {
		models = append(models, ModelSummary{ModelMetrics: report, Status: g.modelStatus(report)})
	}
	g.mu.RUnlock()

	return Dashboard{
		GeneratedAt:       now,
		UptimeSeconds:     int64(now.Sub(g.startedAt).Seconds()),
		Resources:         resources,
		HighRiskResources: highRisk,
		EventsLast24h:     g.history.CountSince(dayAgo),
		AnomaliesLast24h:  anomalies,
		ThreatTrends:      trends,
		ActiveThreats:     g.threats.Active(),
		Incidents:         g.orchestrator.Incidents().Len(),
		PendingResponses:  g.orchestrator.Pending(),
		Models:            models,
	}, nil
}
