package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes stamped from the request context
const (
	AttrSessionID = attribute.Key("docsess.session.id")
	AttrRequestID = attribute.Key("docsess.request.id")
)

// Options configures the tracer provider
type Options struct {
	ServiceName string
	Version     string

	// SampleRatio is the fraction of root spans recorded; children follow their parent
	SampleRatio float64
}

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// NewProvider builds a tracer provider that tags every span with the
// masked session id and the request id carried by its context.
func NewProvider(opts Options, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.Version))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	ratio := opts.SampleRatio
	if ratio > 1 {
		ratio = 1
	}
	popts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(contextAttributes{}),
	}
	return sdktrace.NewTracerProvider(append(popts, extra...)...), nil
}

// InitOpenTelemetry installs the process-wide tracer provider.
// Only the first call has an effect.
func InitOpenTelemetry(opts Options) error {
	providerOnce.Do(func() {
		tp, err := NewProvider(opts)
		if err != nil {
			providerErr = err
			return
		}

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownOpenTelemetry flushes and shuts down the tracer provider
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span and copies its trace id into ctx when none is set
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// Fail records err on span and marks it failed. It returns err unchanged.
func Fail(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// contextAttributes copies the ids of the parent context onto each span
type contextAttributes struct{}

func (contextAttributes) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if id := GetSessionID(parent); id != "" {
		s.SetAttributes(AttrSessionID.String(MaskID(id)))
	}
	if id := GetRequestID(parent); id != "" {
		s.SetAttributes(AttrRequestID.String(id))
	}
}

func (contextAttributes) OnEnd(sdktrace.ReadOnlySpan) {}

func (contextAttributes) Shutdown(context.Context) error { return nil }

func (contextAttributes) ForceFlush(context.Context) error { return nil }
