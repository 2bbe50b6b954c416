package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/runid"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
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

	detach := Attach(tp)
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach subscribes span recording for loader, executor and remote source
// events to the global bus and returns a function removing the subscribers.
func Attach(tp trace.TracerProvider) (detach func()) {
	s := &subscriber{tracer: tp.Tracer("modgraph")}
	return s.register()
}

type subscriber struct {
	tracer      trace.Tracer
	graphSpans  sync.Map // rid -> trace.Span
	loadSpans   sync.Map // rid/module -> trace.Span
	execSpans   sync.Map // rid/module -> trace.Span
	remoteSpans sync.Map // rid/method/module -> trace.Span
}

func key(ctx context.Context, parts ...string) string {
	k, _ := runid.FromContext(ctx)
	for _, p := range parts {
		k += "/" + p
	}
	return k
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// parent returns ctx carrying the first live span stored under k in any of maps.
func parent(ctx context.Context, k string, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		if v, ok := m.Load(k); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) register() func() {
	var unsubs []func()
	on := func(u func()) { unsubs = append(unsubs, u) }

	on(eventbus.Subscribe(func(ctx context.Context, e events.GraphLoadStart) {
		_, span := s.tracer.Start(ctx, "modgraph.load")
		span.SetAttributes(attribute.String("modgraph.entry", e.Entry))
		s.graphSpans.Store(key(ctx), span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.GraphLinked) {
		if v, ok := s.graphSpans.Load(key(ctx)); ok {
			v.(trace.Span).AddEvent("linked", trace.WithAttributes(attribute.Int("modgraph.violations", e.Violations)))
		}
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.GraphLoadFinish) {
		v, ok := s.graphSpans.LoadAndDelete(key(ctx))
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("modgraph.modules", e.Modules))
		end(span, e.Err)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.ModuleLoadStart) {
		_, span := s.tracer.Start(parent(ctx, key(ctx), &s.graphSpans), "modgraph.module.load")
		span.SetAttributes(attribute.String("modgraph.module", e.Module))
		s.loadSpans.Store(key(ctx, e.Module), span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.ModuleLoadFinish) {
		v, ok := s.loadSpans.LoadAndDelete(key(ctx, e.Module))
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("modgraph.edges", e.Edges))
		end(span, e.Err)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.ModuleExecuteStart) {
		_, span := s.tracer.Start(ctx, "modgraph.module.execute")
		span.SetAttributes(attribute.String("modgraph.module", e.Module))
		s.execSpans.Store(key(ctx, e.Module), span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.ModuleExecuteFinish) {
		// A module failing on a dependency never started its body.
		v, ok := s.execSpans.LoadAndDelete(key(ctx, e.Module))
		if !ok {
			return
		}
		end(v.(trace.Span), e.Err)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.DeferredTrigger) {
		_, span := s.tracer.Start(parent(ctx, key(ctx, e.Host), &s.execSpans), "modgraph.trigger")
		span.SetAttributes(
			attribute.String("modgraph.host", e.Host),
			attribute.String("modgraph.owner", e.Owner),
			attribute.String("modgraph.name", e.Name),
		)
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.SourceFetchStart) {
		_, span := s.tracer.Start(parent(ctx, key(ctx, e.Module), &s.loadSpans), "grpcsrc.fetch")
		span.SetAttributes(
			semconv.RPCServiceKey.String("modgraph.source.v1.SourceService"),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
			attribute.String("modgraph.module", e.Module),
		)
		s.remoteSpans.Store(key(ctx, e.Method, e.Module), span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.SourceFetchFinish) {
		v, ok := s.remoteSpans.LoadAndDelete(key(ctx, e.Method, e.Module))
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
