package otel

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "pagecraft"

// InitTracerProvider sets up an OTLP/gRPC trace exporter and installs the
// provider globally. With an empty endpoint it installs nothing and returns
// a no-op shutdown; the span helpers then run on the default no-op tracer.
func InitTracerProvider(ctx context.Context, serviceName, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// HTTP requests.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// StartSessionSpan starts a span covering one edit session run.
func StartSessionSpan(ctx context.Context, sessionID, conversationID, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("conversation.id", conversationID),
			attribute.String("workspace.id", workspaceID),
		),
	)
}

// StartToolCallSpan starts a span for one tool call within a session.
func StartToolCallSpan(ctx context.Context, callID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
		),
	)
}

// StartBuildSpan starts a span for a workspace build.
func StartBuildSpan(ctx context.Context, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "build",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
		),
	)
}
