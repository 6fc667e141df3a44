package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GuardianMetrics holds operational metrics using OTEL semantic conventions
type GuardianMetrics struct {
	eventsIngested    metric.Int64Counter
	anomaliesFlagged  metric.Int64Counter
	responsesExecuted metric.Int64Counter
	queueRejections   metric.Int64Counter
	cycleDuration     metric.Float64Histogram
	resourcesTracked  metric.Int64Gauge
	activeThreats     metric.Int64Gauge
}

// NewGuardianMetrics creates guardian metrics following OTEL semantic conventions
func NewGuardianMetrics() (*GuardianMetrics, error) {
	meter := otel.Meter("vigil.guardian")

	eventsIngested, err := meter.Int64Counter(
		"vigil.events.ingested",
		metric.WithDescription("Number of security events ingested"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	anomaliesFlagged, err := meter.Int64Counter(
		"vigil.events.anomalies",
		metric.WithDescription("Number of events flagged as anomalous"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	responsesExecuted, err := meter.Int64Counter(
		"vigil.responses.executed",
		metric.WithDescription("Number of incident responses executed"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	queueRejections, err := meter.Int64Counter(
		"vigil.responses.queue_rejections",
		metric.WithDescription("Number of submissions rejected by a full response queue"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"vigil.loop.cycle.duration",
		metric.WithDescription("Duration of monitoring loop cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	resourcesTracked, err := meter.Int64Gauge(
		"vigil.resources.tracked",
		metric.WithDescription("Number of cloud resources in the cache"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	activeThreats, err := meter.Int64Gauge(
		"vigil.threats.active",
		metric.WithDescription("Number of active threat patterns"),
		metric.WithUnit("{threat}"),
	)
	if err != nil {
		return nil, err
	}

	return &GuardianMetrics{
		eventsIngested:    eventsIngested,
		anomaliesFlagged:  anomaliesFlagged,
		responsesExecuted: responsesExecuted,
		queueRejections:   queueRejections,
		cycleDuration:     cycleDuration,
		resourcesTracked:  resourcesTracked,
		activeThreats:     activeThreats,
	}, nil
}

// RecordIngestion records ingested events for a provider
func (m *GuardianMetrics) RecordIngestion(ctx context.Context, provider string, count int, anomalies int) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.eventsIngested.Add(ctx, int64(count), attrs)
	if anomalies > 0 {
		m.anomaliesFlagged.Add(ctx, int64(anomalies), attrs)
	}
}

// RecordResponse records an executed incident response
func (m *GuardianMetrics) RecordResponse(ctx context.Context, actionCount int) {
	m.responsesExecuted.Add(ctx, 1,
		metric.WithAttributes(attribute.Int("actions", actionCount)))
}

// RecordQueueRejection records a submission rejected by a full queue
func (m *GuardianMetrics) RecordQueueRejection(ctx context.Context) {
	m.queueRejections.Add(ctx, 1)
}

// RecordCycle records a completed loop cycle
func (m *GuardianMetrics) RecordCycle(ctx context.Context, loop string, seconds float64, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.cycleDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("loop", loop),
		attribute.String("status", status),
	))
}

// RecordInventory records current cache and threat gauges
func (m *GuardianMetrics) RecordInventory(ctx context.Context, resources, threats int) {
	m.resourcesTracked.Record(ctx, int64(resources))
	m.activeThreats.Record(ctx, int64(threats))
}
