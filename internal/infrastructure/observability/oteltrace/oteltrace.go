package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/terminal-gateway/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct {
	t    trace.Tracer
	kind trace.SpanKind
}

// New returns a tracer backed by the global OTel provider. Without an SDK
// registered via otel.SetTracerProvider the spans are non-recording.
func New(name string) observability.Tracer {
	if name == "" {
		name = "terminal-gateway"
	}
	return &tracer{t: otel.Tracer(name), kind: trace.SpanKindInternal}
}

// NewClient is like New but marks spans as outbound client calls.
func NewClient(name string) observability.Tracer {
	t := New(name).(*tracer)
	t.kind = trace.SpanKindClient
	return t
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(t.kind))
}
