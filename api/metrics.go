package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/EliorMigdal/kaplat-ex7/logging"
)

const (
	tracerName         = "github.com/EliorMigdal/kaplat-ex7/api"
	requestSpanName    = "todo.request"
	requestEventName   = "todo.request.completed"
	metricsContextKey  = "todo.metrics"
	attrRequestNumber  = "todo.request.number"
	attrErrorStage     = "todo.request.error_stage"
	attrDurationMillis = "todo.request.duration_ms"
)

// requestMetrics follows one request from the middleware through the
// handler and reports it as a span and a debug duration line.
type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	ctx        context.Context
	start      time.Time
	route      string
	method     string
	request    uint64
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route, method string) (*requestMetrics, context.Context) {
	n := logging.RequestNumber(ctx)
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
			attribute.Int64(attrRequestNumber, int64(n)),
		),
	)
	return &requestMetrics{
		logger:  logger,
		span:    span,
		ctx:     spanCtx,
		start:   time.Now(),
		route:   route,
		method:  method,
		request: n,
	}, spanCtx
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes the duration line.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	elapsed := time.Since(m.start)
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.Int("http.status_code", status),
		attribute.Float64(attrDurationMillis, durationToMillis(elapsed)),
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrErrorStage, m.errorStage))
	}
	m.span.SetAttributes(attrs...)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}
	m.span.AddEvent(requestEventName, trace.WithAttributes(eventAttrs...))

	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	if m.logger != nil {
		logging.Entry(m.ctx, m.logger).Debugf("request #%d duration: %dms", m.request, elapsed.Milliseconds())
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
