// Package otelx provides OpenTelemetry metrics and tracing integration
// for toolrelay.
package otelx

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "toolrelay",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps OpenTelemetry metrics with toolrelay-specific
// instruments. Export failures never propagate to dispatch callers.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error

	executionDuration metric.Float64Histogram
	retryCounter      metric.Int64Counter
	errorCounter      metric.Int64Counter
	healthCounter     metric.Int64Counter
	registeredTools   metric.Int64UpDownCounter
}

// globalMetrics is the singleton metrics instance.
var (
	globalMetrics   *Metrics
	globalMetricsMu sync.RWMutex
)

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	m := &Metrics{
		config: cfg,
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		// Use no-op meter when disabled
		m.meterProvider = sdkmetric.NewMeterProvider()
		m.meter = m.meterProvider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := m.createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	res, err := createResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	m.meterProvider = mp
	m.meter = mp.Meter(cfg.ServiceName)
	m.shutdown = mp.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

// createExporter creates the appropriate metrics exporter based on configuration.
func (m *Metrics) createExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// registerInstruments creates and registers all metric instruments.
func (m *Metrics) registerInstruments() error {
	var err error

	// Execution duration histogram (in seconds)
	m.executionDuration, err = m.meter.Float64Histogram(
		"toolrelay.execution.duration",
		metric.WithDescription("Wall-clock duration of tool executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution duration histogram: %w", err)
	}

	// Retry counter
	m.retryCounter, err = m.meter.Int64Counter(
		"toolrelay.dispatch.retries",
		metric.WithDescription("Count of retried dispatch attempts"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry counter: %w", err)
	}

	// Error counter with category attribute
	m.errorCounter, err = m.meter.Int64Counter(
		"toolrelay.dispatch.errors",
		metric.WithDescription("Count of dispatch errors by category"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	// Health check counter
	m.healthCounter, err = m.meter.Int64Counter(
		"toolrelay.health.checks",
		metric.WithDescription("Count of tool health probes"),
	)
	if err != nil {
		return fmt.Errorf("failed to create health check counter: %w", err)
	}

	// Registered tools gauge (up/down counter)
	m.registeredTools, err = m.meter.Int64UpDownCounter(
		"toolrelay.tools.registered",
		metric.WithDescription("Number of registered tools"),
	)
	if err != nil {
		return fmt.Errorf("failed to create registered tools counter: %w", err)
	}

	return nil
}

// RecordExecution records the duration and outcome of a tool execution.
func (m *Metrics) RecordExecution(ctx context.Context, toolName string, durationSeconds float64, success bool) {
	if m.executionDuration == nil {
		return
	}

	m.executionDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("success", success),
	))
}

// RecordRetry increments the retry counter for a tool.
func (m *Metrics) RecordRetry(ctx context.Context, toolName string) {
	if m.retryCounter == nil {
		return
	}

	m.retryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
	))
}

// RecordError records a dispatch error with the specified category.
func (m *Metrics) RecordError(ctx context.Context, toolName, category string) {
	if m.errorCounter == nil {
		return
	}

	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("category", category),
	))
}

// RecordHealthCheck records the outcome of a health probe.
func (m *Metrics) RecordHealthCheck(ctx context.Context, toolName string, healthy bool) {
	if m.healthCounter == nil {
		return
	}

	m.healthCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("healthy", healthy),
	))
}

// ToolRegistered adjusts the registered tools gauge. delta is +1 for a
// registration and -1 for a deregistration.
func (m *Metrics) ToolRegistered(ctx context.Context, delta int64) {
	if m.registeredTools == nil {
		return
	}

	m.registeredTools.Add(ctx, delta)
}

// Shutdown gracefully shuts down the metrics provider, flushing any
// pending exports.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// SetGlobalMetrics sets the global metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the global metrics instance, or a no-op
// instance if none was set.
func GetGlobalMetrics() *Metrics {
	globalMetricsMu.RLock()
	m := globalMetrics
	globalMetricsMu.RUnlock()
	if m != nil {
		return m
	}

	noop, _ := NewMetrics(context.Background(), DefaultMetricsConfig())
	SetGlobalMetrics(noop)
	return noop
}

// createResource creates the OpenTelemetry resource with service information.
func createResource(serviceName, serviceVersion string, extra map[string]string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
	}

	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}

	for k, v := range extra {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}
