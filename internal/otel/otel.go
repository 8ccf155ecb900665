package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/graphtensor/internal/eventbus"
	events "github.com/hanpama/graphtensor/internal/events"
	reqid "github.com/hanpama/graphtensor/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unregister := Register(otel.Tracer("graphtensor"))
	return func(ctx context.Context) error {
		unregister()
		return tp.Shutdown(ctx)
	}, nil
}

// Register subscribes span recorders for HTTP requests, gRPC calls, tuple
// pulls and reconstructions to the global event bus.
func Register(tracer trace.Tracer) (unregister func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type reconstructKey struct {
	rid   int64
	kind  string
	alias string
}

type subscriber struct {
	tracer      trace.Tracer
	httpSpans   sync.Map // rid -> trace.Span
	serverSpans sync.Map // rid -> trace.Span
	grpcSpans   sync.Map // rid -> trace.Span
	pullSpans   sync.Map // rid -> trace.Span
	recSpans    sync.Map // reconstructKey -> trace.Span
}

// parent returns ctx carrying the innermost open request span of rid.
func (s *subscriber) parent(ctx context.Context, rid int64) context.Context {
	if v, ok := s.serverSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func end(m *sync.Map, key any, err error, attrs ...attribute.KeyValue) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register() func() {
	var unsubs []func()
	add := func(u func()) { unsubs = append(unsubs, u) }

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.httpSpans, rid, nil,
			semconv.HTTPStatusCodeKey.Int(e.Status),
			semconv.HTTPResponseContentLengthKey.Int(e.Bytes),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCServerStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "grpc.server", trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("rpc.path", e.Method),
			attribute.Int("graphtensor.max_tuples", e.Max),
		)
		s.serverSpans.Store(rid, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCServerFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.serverSpans, rid, e.Err,
			attribute.String("grpc.code", e.Code.String()),
			attribute.Int("graphtensor.tuples_sent", e.Sent),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "grpc.client", trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			semconv.RPCServiceKey.String(e.Service),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
			attribute.Int("graphtensor.max_tuples", e.Max),
		)
		s.grpcSpans.Store(rid, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.grpcSpans, rid, e.Err,
			attribute.String("grpc.code", e.Code.String()),
			attribute.Int("graphtensor.tuples_received", e.Received),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.PullStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "dataset.pull")
		span.SetAttributes(attribute.String("graphtensor.mode", e.Mode))
		s.pullSpans.Store(rid, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.PullFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.pullSpans, rid, e.Err,
			attribute.Int("graphtensor.tensors", e.Tensors),
			attribute.Bool("graphtensor.eof", e.EOF),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.ReconstructStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid), "dataset."+e.Kind)
		span.SetAttributes(attribute.String("graphtensor.alias", e.Alias))
		s.recSpans.Store(reconstructKey{rid, e.Kind, e.Alias}, span)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.ReconstructFinish) {
		rid, _ := reqid.FromContext(ctx)
		end(&s.recSpans, reconstructKey{rid, e.Kind, e.Alias}, e.Err)
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
