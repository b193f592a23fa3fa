package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func newTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestCorrelationIDWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestStartSpanRecordsAndCorrelates(t *testing.T) {
	exp := newTestTracer(t)

	ctx, span := StartSpan(context.Background(), "synthesize")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID %q, want 32 hex chars", cid)
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not lowercase hex", cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "synthesize" {
		t.Errorf("span name = %q, want synthesize", spans[0].Name)
	}
	if spans[0].SpanContext.TraceID().String() != cid {
		t.Errorf("trace ID %s does not match correlation ID %s",
			spans[0].SpanContext.TraceID(), cid)
	}
}

func TestLoggerCarriesSpanIdentity(t *testing.T) {
	newTestTracer(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, span := StartSpan(context.Background(), "turn")
	Logger(ctx).Info("inside span")
	span.End()
	Logger(context.Background()).Info("outside span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "trace_id=") || !strings.Contains(lines[0], "span_id=") {
		t.Errorf("in-span log line missing trace identity: %s", lines[0])
	}
	if strings.Contains(lines[1], "trace_id=") {
		t.Errorf("out-of-span log line carries a trace_id: %s", lines[1])
	}
}
