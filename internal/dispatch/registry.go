package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quaere-ai/toolrelay/internal/events"
	"github.com/quaere-ai/toolrelay/internal/otelx"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Second
)

// Descriptor is the registered configuration for one tool endpoint.
// Descriptors are immutable once registered; replacing one means
// registering a new descriptor under the same name.
type Descriptor struct {
	// Name uniquely identifies the tool in the registry.
	Name string

	// Container is an informational label for the deployment unit
	// hosting the tool (e.g., a container name).
	Container string

	// Endpoint is the tool's base network address. Execution requests
	// go to {Endpoint}/execute.
	Endpoint string

	// HealthEndpoint is probed by health checks. Defaults to
	// {Endpoint}/health.
	HealthEndpoint string

	// MaxRetries is the total number of attempts per execution.
	// Default: 3.
	MaxRetries int

	// Timeout bounds each individual attempt. Default: 30s.
	Timeout time.Duration
}

// withDefaults returns a copy with zero values replaced by defaults.
func (d Descriptor) withDefaults() Descriptor {
	result := d
	if result.HealthEndpoint == "" {
		result.HealthEndpoint = result.Endpoint + "/health"
	}
	if result.MaxRetries <= 0 {
		result.MaxRetries = defaultMaxRetries
	}
	if result.Timeout <= 0 {
		result.Timeout = defaultTimeout
	}
	return result
}

// Registry holds tool descriptors keyed by name. It is read-mostly:
// any number of dispatch and health-check calls may read concurrently.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor

	events *events.EventLogger
	otel   *otelx.Metrics
}

// NewRegistry creates an empty tool registry. Nil logger or metrics
// fall back to the global instances.
func NewRegistry(logger *events.EventLogger, otelMetrics *otelx.Metrics) *Registry {
	if logger == nil {
		logger = events.GetGlobalEventLogger()
	}
	if otelMetrics == nil {
		otelMetrics = otelx.GetGlobalMetrics()
	}
	return &Registry{
		tools:  make(map[string]Descriptor),
		events: logger,
		otel:   otelMetrics,
	}
}

// Register inserts or replaces the descriptor under its name.
// Duplicate registration silently replaces the previous descriptor
// (last write wins); that permissive policy is deliberate, since tool
// deployments re-announce themselves on restart.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if d.Endpoint == "" {
		return fmt.Errorf("tool endpoint cannot be empty")
	}
	d = d.withDefaults()

	r.mu.Lock()
	_, replaced := r.tools[d.Name]
	r.tools[d.Name] = d
	r.mu.Unlock()

	r.events.LogToolRegistered(d.Name, d.Endpoint, replaced)
	if !replaced {
		r.otel.ToolRegistered(context.Background(), 1)
	}
	return nil
}

// Deregister removes a tool. Returns true if it was registered.
func (r *Registry) Deregister(name string) bool {
	r.mu.Lock()
	_, existed := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()

	if existed {
		r.events.LogToolDeregistered(name)
		r.otel.ToolRegistered(context.Background(), -1)
	}
	return existed
}

// Get returns the descriptor for a tool and whether it is registered.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// List returns every registered descriptor, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
