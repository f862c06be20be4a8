// Package observability provides OpenTelemetry tracing and metrics for the simulation,
// plus the structured logger setup.
//
// When telemetry is disabled the provider still works against the global no-op
// providers, so callers never branch on whether it is enabled.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Guivernoir/CISO-sim"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // e.g. "localhost:4317"
	Enabled        bool
	Insecure       bool
	ExportInterval time.Duration
}

// DefaultConfig returns local-development defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "cisosim",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		Insecure:       true,
		ExportInterval: 15 * time.Second,
	}
}

// Provider owns the tracer, the meter and the game instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	turns          metric.Int64Counter
	invalidActions metric.Int64Counter
	saves          metric.Int64Counter
	loadFailures   metric.Int64Counter
	kdfDuration    metric.Float64Histogram
}

// New creates a provider. With config.Enabled it exports over OTLP/gRPC.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.DebugContext(ctx, "telemetry export disabled")
		return p.bind(otel.GetTracerProvider(), otel.GetMeterProvider())
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	interval := config.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"insecure", config.Insecure,
	)
	return p.bind(p.tracerProvider, p.meterProvider)
}

// NewWithProviders binds the game instruments to caller-supplied providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	p := &Provider{
		config: DefaultConfig(),
		logger: slog.Default().With("component", "observability"),
	}
	return p.bind(tp, mp)
}

func (p *Provider) bind(tp trace.TracerProvider, mp metric.MeterProvider) (*Provider, error) {
	p.tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(p.config.ServiceVersion))
	p.meter = mp.Meter(instrumentationName, metric.WithInstrumentationVersion(p.config.ServiceVersion))

	var err error
	if p.turns, err = p.meter.Int64Counter("cisosim.turns",
		metric.WithDescription("Turns advanced"),
		metric.WithUnit("{turn}"),
	); err != nil {
		return nil, err
	}
	if p.invalidActions, err = p.meter.Int64Counter("cisosim.invalid_actions",
		metric.WithDescription("Rejected player actions"),
		metric.WithUnit("{action}"),
	); err != nil {
		return nil, err
	}
	if p.saves, err = p.meter.Int64Counter("cisosim.saves",
		metric.WithDescription("Successful saves"),
		metric.WithUnit("{save}"),
	); err != nil {
		return nil, err
	}
	if p.loadFailures, err = p.meter.Int64Counter("cisosim.load_failures",
		metric.WithDescription("Saves that failed to load"),
		metric.WithUnit("{load}"),
	); err != nil {
		return nil, err
	}
	if p.kdfDuration, err = p.meter.Float64Histogram("cisosim.kdf.duration",
		metric.WithDescription("Key derivation time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Shutdown flushes and stops any exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// StartSpan starts an internal span.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// TurnAdvanced counts a completed turn.
func (p *Provider) TurnAdvanced(ctx context.Context, turn int, choiceID string) {
	p.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("cisosim.turn", turn),
		attribute.String("cisosim.choice", choiceID),
	))
}

// InvalidAction counts a rejected action.
func (p *Provider) InvalidAction(ctx context.Context) {
	p.invalidActions.Add(ctx, 1)
}

// Saved counts a successful save to backend.
func (p *Provider) Saved(ctx context.Context, backend string) {
	p.saves.Add(ctx, 1, metric.WithAttributes(attribute.String("cisosim.backend", backend)))
}

// LoadFailed counts a save that could not be loaded.
func (p *Provider) LoadFailed(ctx context.Context) {
	p.loadFailures.Add(ctx, 1)
}

// KDFDuration records how long a key derivation took.
func (p *Provider) KDFDuration(ctx context.Context, d time.Duration) {
	p.kdfDuration.Record(ctx, d.Seconds())
}
