package guardian

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/run"

	"github.com/yairfalse/vigil/intel"
	"github.com/yairfalse/vigil/types"
	"github.com/yairfalse/vigil/wal"
)

// Run supervises the five monitoring loops until the context is
// cancelled or one loop fails fatally. A failed cycle shortens the next
// sleep to the retry interval; only setup errors stop a loop.
func (g *Guardian) Run(ctx context.Context) error {
	var group run.Group

	loops := []struct {
		name     string
		interval time.Duration
		cycle    func(context.Context) error
	}{
		{"resource_discovery", g.cfg.Intervals.ResourceDiscovery, g.discoverCycle},
		{"event_ingestion", g.cfg.Intervals.EventIngestion, g.ingestCycle},
		{"model_audit", g.cfg.Intervals.ModelAudit, g.auditCycle},
		{"intel_refresh", g.cfg.Intervals.IntelRefresh, g.intelCycle},
		{"response_drain", g.cfg.Intervals.ResponseDrain, g.drainCycle},
	}

	for _, loop := range loops {
		loop := loop
		loopCtx, cancel := context.WithCancel(ctx)
		group.Add(func() error {
			return g.runLoop(loopCtx, loop.name, loop.interval, loop.cycle)
		}, func(error) {
			cancel()
		})
	}

	g.logger.WithContext(ctx).Info().
		Int("connectors", len(g.connectors)).
		Int("loops", len(loops)).
		Msg("Guardian starting")

	err := group.Run()
	// final drain so queued responses are not lost on shutdown
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	processed := g.orchestrator.Drain(drainCtx)
	g.logger.Info().
		Int("processed", processed).
		Msg("Guardian stopped")
	return err
}

// runLoop runs one cycle immediately, then on every tick. After an error
// the next cycle comes after the retry interval instead of the full one.
func (g *Guardian) runLoop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) error {
	retry := g.cfg.Intervals.Retry
	if retry <= 0 || retry > interval {
		retry = interval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		start := time.Now()
		err := cycle(ctx)
		g.metrics.RecordCycle(ctx, name, time.Since(start).Seconds(), err != nil)

		next := interval
		if err != nil {
			g.logger.LogCycleError(ctx, name, err)
			next = retry
		}
		timer.Reset(next)
	}
}

// discoverCycle refreshes the resource inventory and scores every
// resource. The service becomes ready after the first completed cycle.
func (g *Guardian) discoverCycle(ctx context.Context) error {
	discovered := make(map[string]types.Resource)
	var firstErr error

	for _, connector := range g.connectors {
		resources, err := connector.DiscoverResources(ctx)
		if err != nil {
			g.logger.LogConnectorError(ctx, connector.Name(), "discover_resources", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("connector %s: %w", connector.Name(), err)
			}
			continue
		}

		for _, resource := range resources {
			resource.RiskScore = g.scorer.Score(ctx, resource)
			discovered[resource.ID] = resource

			if resource.RiskScore >= g.cfg.Thresholds.HighRisk {
				g.processEvent(ctx, types.NewPlatformEvent(
					"HIGH_RISK_RESOURCE",
					fmt.Sprintf("resource %s scored %.2f", resource.ID, resource.RiskScore),
					types.SeverityHigh,
					map[string]any{"resource_id": resource.ID, "risk_score": resource.RiskScore},
				))
			}
		}
	}

	if len(discovered) == 0 && firstErr != nil {
		return firstErr
	}

	g.mu.Lock()
	g.inventory = discovered
	g.mu.Unlock()

	g.metrics.RecordInventory(ctx, len(discovered), g.threats.Len())
	g.ready.Store(true)
	return firstErr
}

// ingestCycle pulls new events from every connector and runs them
// through the pipeline. Each connector keeps its own time cursor.
func (g *Guardian) ingestCycle(ctx context.Context) error {
	now := time.Now()
	var firstErr error

	for _, connector := range g.connectors {
		g.mu.Lock()
		since, ok := g.cursors[connector.Name()]
		g.mu.Unlock()
		if !ok {
			since = now.Add(-g.cfg.Intervals.EventIngestion)
		}

		raws, err := connector.FetchSecurityEvents(ctx, since)
		if err != nil {
			g.logger.LogConnectorError(ctx, connector.Name(), "fetch_security_events", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("connector %s: %w", connector.Name(), err)
			}
			continue
		}

		anomalies := 0
		for _, raw := range raws {
			event := types.NewSecurityEvent(raw, connector.Name(), now)
			if g.processEvent(ctx, event) {
				anomalies++
			}
		}

		g.mu.Lock()
		g.cursors[connector.Name()] = now
		g.mu.Unlock()

		g.metrics.RecordIngestion(ctx, connector.Name(), len(raws), anomalies)
	}
	return firstErr
}

// processEvent runs one event through enrichment, history and response
// submission. Returns whether the event was flagged anomalous.
func (g *Guardian) processEvent(ctx context.Context, event types.SecurityEvent) bool {
	confidence, err := g.facade.Predict(ctx, event)
	if err != nil {
		// degraded mode: no model answered, keep the event anyway
		g.logger.WithContext(ctx).Warn().
			Str("event_id", event.ID).
			Err(err).
			Msg("Prediction unavailable, ingesting unscored")
	} else {
		event.AIConfidence = confidence
	}

	event.IsAnomaly = g.detector.Check(event)

	g.history.Append(event)
	if g.archive != nil {
		if _, err := g.archive.Append(event); err != nil {
			g.logger.WithContext(ctx).Error().
				Str("event_id", event.ID).
				Err(err).
				Msg("Failed to archive event")
		}
	}

	g.publish(event)

	if event.Severity == types.SeverityCritical || event.IsAnomaly {
		if err := g.orchestrator.Submit(ctx, event); err != nil {
			g.logger.WithContext(ctx).Warn().
				Str("event_id", event.ID).
				Err(err).
				Msg("Response submission rejected")
		}
	}
	return event.IsAnomaly
}

// auditCycle refreshes model health reports and escalates unhealthy
// models as platform events
func (g *Guardian) auditCycle(ctx context.Context) error {
	reports := g.monitor.CheckAll(ctx)

	g.mu.Lock()
	g.modelReports = reports
	g.mu.Unlock()

	for _, event := range EvaluateEscalations(reports, g.cfg.Thresholds) {
		g.processEvent(ctx, event)
	}
	return nil
}

// intelCycle mines the recent window for threat patterns and ages out
// stale threats
func (g *Guardian) intelCycle(ctx context.Context) error {
	now := time.Now()
	window := g.history.Recent(g.cfg.History.Window, now)

	patterns := intel.AnalyzePatterns(window, now)
	promoted := g.threats.Observe(patterns, now)
	expired := g.threats.Expire(now)

	for _, pattern := range promoted {
		g.logger.WithContext(ctx).Warn().
			Str("pattern_type", pattern.PatternType).
			Str("source_ip", pattern.SourceIP).
			Float64("confidence", pattern.Confidence).
			Msg("Threat pattern promoted")
		g.processEvent(ctx, types.NewPlatformEvent(
			"THREAT_PATTERN",
			pattern.Description,
			types.SeverityHigh,
			map[string]any{"pattern_id": pattern.PatternID, "confidence": pattern.Confidence},
		))
	}
	for _, threat := range expired {
		g.logger.WithContext(ctx).Info().
			Str("pattern_type", threat.PatternType).
			Str("source_ip", threat.SourceIP).
			Msg("Threat expired")
	}

	g.mu.RLock()
	resources := len(g.inventory)
	g.mu.RUnlock()
	g.metrics.RecordInventory(ctx, resources, g.threats.Len())

	if g.cfg.Responses.WALDir != "" && g.cfg.Responses.WALRetentionDays > 0 {
		if err := wal.Cleanup(g.cfg.Responses.WALDir, g.cfg.Responses.WALRetentionDays); err != nil {
			g.logger.WithContext(ctx).Warn().Err(err).Msg("Audit log cleanup failed")
		}
	}
	return nil
}

// drainCycle processes queued responses
func (g *Guardian) drainCycle(ctx context.Context) error {
	g.orchestrator.Drain(ctx)
	return nil
}

// ScanOnce runs a single discovery and ingestion pass and drains any
// responses it produced. Used by the one-shot scan command.
func (g *Guardian) ScanOnce(ctx context.Context) (Dashboard, error) {
	if err := g.discoverCycle(ctx); err != nil {
		return Dashboard{}, err
	}
	if err := g.ingestCycle(ctx); err != nil {
		return Dashboard{}, err
	}
	if err := g.intelCycle(ctx); err != nil {
		return Dashboard{}, err
	}
	g.orchestrator.Drain(ctx)
	return g.Snapshot()
}
