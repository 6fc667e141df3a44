package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogCycleError logs a failed monitoring cycle that will be retried
func (l *Logger) LogCycleError(ctx context.Context, loop string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("loop", loop).
		Msg("cycle failed, will retry")
}

// LogConnectorError logs a transient connector failure (cycle continues degraded)
func (l *Logger) LogConnectorError(ctx context.Context, provider, operation string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("provider", provider).
		Str("operation", operation).
		Msg("connector call failed")
}

// LogModelError logs a transient model failure (scoring continues degraded)
func (l *Logger) LogModelError(ctx context.Context, modelID, operation string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("model_id", modelID).
		Str("operation", operation).
		Msg("model call failed")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

// Helper to convert OTEL attributes to zerolog fields
func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.AsString())
	}
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Debug().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}
