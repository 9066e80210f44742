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
)

const (
	submitSpanName    = "planai.voice_notes.submit"
	submitEventName   = "voice_notes.submit.metrics"
	submitEventDomain = "planai"
	submitRoute       = "/api/voice-notes"
)

// submitRequestMetrics collects timing and outcome data for a single voice
// note submission and emits it as a structured log entry plus an otel span.
type submitRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	dedupeDuration time.Duration
	decodeDuration time.Duration
	audioBytes     int
	textFallback   bool
	submissionID   string
	errorStage     string
}

func newSubmitRequestMetrics(ctx context.Context, logger *log.Logger) (*submitRequestMetrics, context.Context) {
	tracer := otel.GetTracerProvider().Tracer("planai-api")
	spanCtx, span := tracer.Start(ctx, submitSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &submitRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *submitRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *submitRequestMetrics) ObserveDedupe(d time.Duration) {
	if d > 0 {
		m.dedupeDuration = d
	}
}

func (m *submitRequestMetrics) ObserveDecode(d time.Duration) {
	if d > 0 {
		m.decodeDuration = d
	}
}

func (m *submitRequestMetrics) SetAudioBytes(n int) {
	if n < 0 {
		n = 0
	}
	m.audioBytes = n
}

func (m *submitRequestMetrics) SetTextFallback(used bool) {
	m.textFallback = used
}

func (m *submitRequestMetrics) SetSubmissionID(id string) {
	m.submissionID = id
}

func (m *submitRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log emits the observability event and ends the span. It must be called
// exactly once per submission request.
func (m *submitRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMS := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", submitRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("planai.submit.total_ms", totalMS),
		attribute.Int("planai.submit.audio_bytes", m.audioBytes),
		attribute.Bool("planai.submit.text_fallback", m.textFallback),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("planai.submit.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.dedupeDuration > 0 {
		attrs = append(attrs, attribute.Float64("planai.submit.dedupe_ms", durationToMillis(m.dedupeDuration)))
	}
	if m.decodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("planai.submit.decode_ms", durationToMillis(m.decodeDuration)))
	}
	if m.submissionID != "" {
		attrs = append(attrs, attribute.String("planai.submit.submission_id", m.submissionID))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("planai.submit.error_stage", m.errorStage))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", submitEventName),
		attribute.String("event.domain", submitEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      submitEventName,
		"event.domain":    submitEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesAsMap(attrs),
	}
	if m.span != nil {
		sc := m.span.SpanContext()
		if sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		if sc.HasSpanID() {
			fields["span_id"] = sc.SpanID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

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

func attributesAsMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
