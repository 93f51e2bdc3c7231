// Package telemetry wires OpenTelemetry metrics and traces for the session
// core. Metrics are exported in Prometheus format through Handler; traces
// go to an OTLP gRPC collector when an endpoint is configured.
//
// A disabled Provider, and a nil *Provider, record nothing.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the telemetry configuration.
type Config struct {
	// ServiceName is the name of the service (e.g., "mentorship").
	ServiceName string

	ServiceVersion string

	// Environment is the deployment environment (e.g., "production").
	Environment string

	// OTLPEndpoint is the OTLP exporter endpoint for traces.
	// Leave empty to disable trace export.
	OTLPEndpoint string

	// SamplingRate is the trace sampling rate (0.0-1.0).
	SamplingRate float64

	Enabled bool
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "mentorship",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// Provider manages OpenTelemetry tracer and meter providers.
type Provider struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *promclient.Registry
	tracer         trace.Tracer
	meter          metric.Meter

	loginCounter      metric.Int64Counter
	resolveCounter    metric.Int64Counter
	decisionCounter   metric.Int64Counter
	transitionCounter metric.Int64Counter
	resolveDuration   metric.Float64Histogram
}

// NewProvider creates a new telemetry provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{config: cfg}, nil
	}

	p := &Provider{config: cfg}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("environment", cfg.Environment),
	)

	if err := p.setupTracing(res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) setupTracing(res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(p.config.SamplingRate))),
		sdktrace.WithResource(res),
	}

	if p.config.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(p.config.ServiceName)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// setupMetrics uses a private registry so several providers can coexist in
// one process.
func (p *Provider) setupMetrics(res *resource.Resource) error {
	p.registry = promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	p.meter = p.meterProvider.Meter(p.config.ServiceName)
	return nil
}

func (p *Provider) initMetrics() error {
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&p.loginCounter, "mentorship.login.total", "Login attempts by outcome"},
		{&p.resolveCounter, "mentorship.profile.resolve.total", "Profile resolutions by outcome"},
		{&p.decisionCounter, "mentorship.guard.decision.total", "Route guard decisions"},
		{&p.transitionCounter, "mentorship.session.transition.total", "Session state transitions"},
	}
	for _, c := range counters {
		counter, err := p.meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("telemetry: counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	p.resolveDuration, err = p.meter.Float64Histogram(
		"mentorship.resolve.duration",
		metric.WithDescription("Profile resolution duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: histogram: %w", err)
	}
	return nil
}

// Handler serves the Prometheus scrape endpoint. A disabled provider serves
// an empty registry.
func (p *Provider) Handler() http.Handler {
	if p == nil || p.registry == nil {
		return promhttp.HandlerFor(promclient.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the telemetry providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tracer returns the tracer instance.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return otel.Tracer("mentorship")
	}
	return p.tracer
}

// ---- Metric Recording Methods ----

// RecordLogin records a login attempt by outcome ("success",
// "invalid_credentials", "timeout", "error").
func (p *Provider) RecordLogin(ctx context.Context, outcome string) {
	if p == nil || p.loginCounter == nil {
		return
	}
	p.loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordResolve records a profile resolution and its duration.
func (p *Provider) RecordResolve(ctx context.Context, outcome string, d time.Duration) {
	if p == nil || p.resolveCounter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	p.resolveCounter.Add(ctx, 1, attrs)
	p.resolveDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDecision records a guard decision.
func (p *Provider) RecordDecision(ctx context.Context, allowed bool, redirect string) {
	if p == nil || p.decisionCounter == nil {
		return
	}
	status := "allow"
	if !allowed {
		status = "redirect"
	}
	p.decisionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("redirect", redirect),
		),
	)
}

// RecordTransition records a session state transition into status.
func (p *Provider) RecordTransition(ctx context.Context, status string) {
	if p == nil || p.transitionCounter == nil {
		return
	}
	p.transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
