// Package telemetry wraps OpenTelemetry tracing, metrics, and log export
// into a single Telemetry value constructed once at bootstrap, mirroring the
// teacher's common/mopentelemetry package: a resource built from service
// name/version/environment, an OTLP gRPC exporter per signal, and a single
// Shutdown that drains all three.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the configured providers for one process.
type Telemetry struct {
	ServiceName    string
	ServiceVersion string
	DeploymentEnv  string
	CollectorAddr  string

	TracerProvider *sdktrace.TracerProvider
	MetricProvider *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	shutdown func(context.Context) error
}

// Start initializes exporters for the given collector endpoint and installs
// the tracer and meter providers as the process-wide otel defaults; the
// logger provider is not installed globally.
func Start(ctx context.Context, serviceName, serviceVersion, deploymentEnv, collectorAddr string) (*Telemetry, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			semconv.DeploymentEnvironment(deploymentEnv),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(collectorAddr), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}

	metricExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(collectorAddr), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	logExp, err := otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(collectorAddr), otlploggrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: log exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	lp := sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Telemetry{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		DeploymentEnv:  deploymentEnv,
		CollectorAddr:  collectorAddr,
		TracerProvider: tp,
		MetricProvider: mp,
		LoggerProvider: lp,
		shutdown: func(ctx context.Context) error {
			for _, fn := range []func(context.Context) error{tp.Shutdown, mp.Shutdown, lp.Shutdown} {
				if err := fn(ctx); err != nil {
					return err
				}
			}

			return nil
		},
	}, nil
}

// Shutdown drains and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}

	return t.shutdown(ctx)
}

// StartSpan starts a span named name on the service's tracer.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer(t.ServiceName)

	return tracer.Start(ctx, name)
}

// HandleSpanError records err on span, sets the span status to error, and
// returns err unchanged so call sites can `return telemetry.HandleSpanError(...)`.
func HandleSpanError(span trace.Span, msg string, err error) error {
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, msg+": "+err.Error())

	return err
}
