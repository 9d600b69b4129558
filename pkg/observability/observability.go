// Package observability wires OpenTelemetry tracing and metrics for the
// command-cycle path, plus structured logging setup for hosts. Cycle
// telemetry follows the RED pattern: cycle rate, rejection rate, duration
// histogram, and an active-cycles gauge. Span attributes carry engine code
// and command type only; draw values, seeds, payloads, and state never
// leave the process through telemetry.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/certspin/reelcore/pkg/engine"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // gRPC, e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns defaults suitable for a lab host.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "reelcore-host",
		ServiceVersion: "1.0.0",
		Environment:    "lab",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
	}
}

// Provider manages the trace and metric pipeline. A disabled provider is
// fully inert: TrackCycle still works but records nothing.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	cyclesTotal     metric.Int64Counter
	rejectionsTotal metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	activeCycles    metric.Int64UpDownCounter
}

// New creates a provider and installs it globally.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("reelcore.component", "host"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("observability: metric provider: %w", err)
	}

	p.tracer = otel.Tracer("reelcore",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter("reelcore",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initCycleMetrics(); err != nil {
		return nil, fmt.Errorf("observability: cycle metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initCycleMetrics() error {
	var err error

	p.cyclesTotal, err = p.meter.Int64Counter("reelcore.cycles.total",
		metric.WithDescription("Command cycles started"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	p.rejectionsTotal, err = p.meter.Int64Counter("reelcore.cycle.rejections.total",
		metric.WithDescription("Command cycles that ended in an error"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	p.cycleDuration, err = p.meter.Float64Histogram("reelcore.cycle.duration",
		metric.WithDescription("Command cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return err
	}

	p.activeCycles, err = p.meter.Int64UpDownCounter("reelcore.cycles.active",
		metric.WithDescription("Command cycles currently in flight"),
		metric.WithUnit("{cycle}"),
	)
	return err
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("reelcore")
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter("reelcore")
	}
	return p.meter
}

// TrackCycle opens the telemetry scope for one command cycle and returns
// the close function the processor calls with the cycle's outcome. It
// satisfies the processor's Observer hook.
func (p *Provider) TrackCycle(ctx context.Context, engineCode string, commandType engine.CommandType) (context.Context, func(err error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("engine.code", engineCode),
		attribute.String("command.type", string(commandType)),
	}

	ctx, span := p.Tracer().Start(ctx, "cycle.process",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if p.activeCycles != nil {
		p.activeCycles.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.cyclesTotal != nil {
		p.cyclesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		duration := time.Since(start)

		if p.activeCycles != nil {
			p.activeCycles.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.cycleDuration != nil {
			p.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.rejectionsTotal != nil {
				kindAttrs := append(attrs, attribute.String("error.kind", engine.KindOf(err).String()))
				p.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(kindAttrs...))
			}
		}
		span.End()
	}
}

// SetupLogging installs a JSON slog handler at the named level ("debug",
// "info", "warn", "error") as the process default and returns the logger.
// A nil writer logs to stderr.
func SetupLogging(levelName string, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("observability: log level %q: %w", levelName, err)
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
