// Package dispatch executes calls against registered tool endpoints
// with bounded retries, per-attempt timeouts, and metric instrumentation
// around every attempt. It owns the tool registry and the health-check
// path; telemetry goes to the monitoring service, never to the caller.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/quaere-ai/toolrelay/internal/events"
	"github.com/quaere-ai/toolrelay/internal/monitor"
	"github.com/quaere-ai/toolrelay/internal/otelx"
	"github.com/quaere-ai/toolrelay/internal/sampler"
)

// maxResultBytes caps how much of a tool response is read.
const maxResultBytes = 4 << 20

// ResourceSampler supplies the best-effort resource readings taken
// around each execution. *sampler.Sampler satisfies it.
type ResourceSampler interface {
	SystemUsage() sampler.Usage
}

// ToolStatus is one entry of ListTools: the descriptor plus a live
// health probe and the derived health summary.
type ToolStatus struct {
	Descriptor Descriptor
	IsHealthy  bool
	Health     monitor.HealthSummary
}

// Dispatcher executes and health-checks registered tools. Any number of
// executions may be in flight concurrently; no call blocks another.
type Dispatcher struct {
	registry *Registry
	monitor  *monitor.Service
	sampler  ResourceSampler
	client   *http.Client
	backoff  BackoffStrategy
	events   *events.EventLogger
	otel     *otelx.Metrics
	tracer   *otelx.Tracer
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client used for tool calls.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// WithBackoff replaces the retry backoff strategy.
func WithBackoff(strategy BackoffStrategy) Option {
	return func(d *Dispatcher) { d.backoff = strategy }
}

// WithEventLogger replaces the event logger.
func WithEventLogger(logger *events.EventLogger) Option {
	return func(d *Dispatcher) { d.events = logger }
}

// WithMetrics replaces the OpenTelemetry metrics instance.
func WithMetrics(m *otelx.Metrics) Option {
	return func(d *Dispatcher) { d.otel = m }
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t *otelx.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a dispatcher over the given registry, reporting
// outcomes to monitorService and sampling resources around each call.
func NewDispatcher(registry *Registry, monitorService *monitor.Service, resourceSampler ResourceSampler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		monitor:  monitorService,
		sampler:  resourceSampler,
		client:   &http.Client{},
		backoff:  DefaultBackoff(),
		events:   events.GetGlobalEventLogger(),
		otel:     otelx.GetGlobalMetrics(),
		tracer:   otelx.GetGlobalTracer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs the named tool with the given parameters, retrying up to
// the descriptor's MaxRetries with the descriptor's per-attempt timeout.
func (d *Dispatcher) Execute(ctx context.Context, toolName string, parameters map[string]any) (map[string]any, error) {
	return d.execute(ctx, toolName, parameters, 0)
}

// ExecuteWithTimeout is Execute with the per-attempt timeout overridden.
func (d *Dispatcher) ExecuteWithTimeout(ctx context.Context, toolName string, parameters map[string]any, timeout time.Duration) (map[string]any, error) {
	return d.execute(ctx, toolName, parameters, timeout)
}

func (d *Dispatcher) execute(ctx context.Context, toolName string, parameters map[string]any, timeoutOverride time.Duration) (map[string]any, error) {
	desc, ok := d.registry.Get(toolName)
	if !ok {
		d.events.LogUnregisteredTool(toolName, "execute")
		return nil, &UnregisteredToolError{Tool: toolName}
	}

	timeout := desc.Timeout
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}

	body, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters for tool %s: %w", toolName, err)
	}

	invocationID := uuid.NewString()
	ctx, span := d.tracer.StartExecuteSpan(ctx, toolName, invocationID)
	defer span.End()

	// Pre-call sample is best-effort; failures degrade to zero values
	// and never abort the call.
	before := d.sampler.SystemUsage()

	start := time.Now()
	var lastErr *AttemptError
	attempts := 0

	for attempt := 0; attempt < desc.MaxRetries; attempt++ {
		attempts = attempt + 1

		result, attemptErr := d.attempt(ctx, desc, body, timeout)
		if attemptErr == nil {
			duration := time.Since(start)
			d.recordSuccess(ctx, toolName, invocationID, duration, before)
			span.SetStatus(codes.Ok, "")
			return result, nil
		}

		lastErr = attemptErr
		d.otel.RecordError(ctx, toolName, string(attemptErr.Category))

		if attempt == desc.MaxRetries-1 {
			break
		}

		wait := d.backoff.Next(attempt)
		d.events.LogDispatchRetry(toolName, invocationID, attempts, lastErr.Message, wait.Milliseconds())
		d.otel.RecordRetry(ctx, toolName)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			// Cancelled mid-backoff; stop retrying.
			timer.Stop()
			lastErr = &AttemptError{
				Category: CategoryTransport,
				Message:  ctx.Err().Error(),
				Err:      ctx.Err(),
			}
		case <-timer.C:
			continue
		}
		break
	}

	duration := time.Since(start)
	d.monitor.RecordExecution(monitor.Execution{
		Tool:     toolName,
		Duration: duration,
		Success:  false,
		Error:    lastErr.Message,
	})
	d.events.LogDispatchFailed(toolName, invocationID, attempts, lastErr.Message)

	execErr := &ExecutionFailedError{Tool: toolName, Attempts: attempts, LastError: lastErr.Message}
	span.SetStatus(codes.Error, execErr.Error())
	return nil, execErr
}

// attempt performs one network call. All failures come back as
// AttemptErrors; nothing is retried inside.
func (d *Dispatcher) attempt(ctx context.Context, desc Descriptor, body []byte, timeout time.Duration) (map[string]any, *AttemptError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, desc.Endpoint+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, classifyAttemptError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classifyAttemptError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResultBytes))
		return nil, rejectedError(resp.StatusCode)
	}

	var result map[string]any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResultBytes))
	if err := dec.Decode(&result); err != nil {
		return nil, &AttemptError{
			Category: CategoryTransport,
			Message:  fmt.Sprintf("decode tool response: %v", err),
			Err:      err,
		}
	}
	return result, nil
}

// recordSuccess samples resources after the call and reports the
// successful execution with the post-call reading attached.
func (d *Dispatcher) recordSuccess(ctx context.Context, toolName, invocationID string, duration time.Duration, before sampler.Usage) {
	after := d.sampler.SystemUsage()

	labels := map[string]string{
		"invocation_id": invocationID,
		"cpu_delta_pct": strconv.FormatFloat(after.CPUPercent-before.CPUPercent, 'f', 2, 64),
	}

	d.monitor.RecordExecution(monitor.Execution{
		Tool:       toolName,
		Duration:   duration,
		Success:    true,
		CPUPercent: &after.CPUPercent,
		MemoryGB:   &after.MemoryGB,
		GPUPercent: after.GPUPercent,
		Labels:     labels,
	})
	d.otel.RecordExecution(ctx, toolName, duration.Seconds(), true)
}

// CheckHealth probes a tool's health endpoint. An unregistered tool is
// a caller error: it logs, returns false, and records nothing. Every
// probe of a registered tool is recorded as a tool_health point, so
// health history stays queryable like any other metric.
func (d *Dispatcher) CheckHealth(ctx context.Context, toolName string) bool {
	desc, ok := d.registry.Get(toolName)
	if !ok {
		d.events.LogUnregisteredTool(toolName, "check_health")
		return false
	}

	healthy, reason := d.probe(ctx, desc)

	d.monitor.RecordHealthCheck(toolName, healthy, reason)
	d.events.LogHealthCheck(toolName, healthy, reason)
	d.otel.RecordHealthCheck(ctx, toolName, healthy)
	return healthy
}

// probe issues the bounded-timeout health request. The body is ignored;
// only the status code matters.
func (d *Dispatcher) probe(ctx context.Context, desc Descriptor) (healthy bool, reason string) {
	probeCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, desc.HealthEndpoint, nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, classifyAttemptError(err).Message
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResultBytes))

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("health check failed with status %d", resp.StatusCode)
	}
	return true, ""
}

// ListTools probes every registered tool concurrently and returns each
// descriptor with its live health and derived health summary, sorted by
// name. It is a convenience aggregation and holds no state of its own.
func (d *Dispatcher) ListTools(ctx context.Context) []ToolStatus {
	descriptors := d.registry.List()
	statuses := make([]ToolStatus, len(descriptors))

	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range descriptors {
		i, desc := i, desc
		g.Go(func() error {
			statuses[i] = ToolStatus{
				Descriptor: desc,
				IsHealthy:  d.CheckHealth(gctx, desc.Name),
				Health:     d.monitor.Health(desc.Name),
			}
			return nil
		})
	}
	g.Wait()
	return statuses
}
