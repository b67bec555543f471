// Package metrics defines the typed time-series model for tool telemetry:
// metric kinds, points, series, and the per-tool record that owns them.
package metrics

import (
	"fmt"
	"time"
)

// Kind identifies one measured quantity. The set of kinds is closed;
// every ToolMetrics record carries exactly one series per kind.
type Kind string

const (
	KindExecutionTime Kind = "execution_time"
	KindMemoryUsage   Kind = "memory_usage"
	KindCPUUsage      Kind = "cpu_usage"
	KindGPUUsage      Kind = "gpu_usage"
	KindErrorCount    Kind = "error_count"
	KindSuccessCount  Kind = "success_count"
	KindRequestCount  Kind = "request_count"
	KindResponseTime  Kind = "response_time"
	KindToolHealth    Kind = "tool_health"
)

// allKinds is the fixed enumeration order used when building records.
var allKinds = []Kind{
	KindExecutionTime,
	KindMemoryUsage,
	KindCPUUsage,
	KindGPUUsage,
	KindErrorCount,
	KindSuccessCount,
	KindRequestCount,
	KindResponseTime,
	KindToolHealth,
}

// Kinds returns the closed set of metric kinds in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// IsValid reports whether k is a recognised metric kind.
func (k Kind) IsValid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Point is a single immutable observation. Points are created once,
// appended to a series, and never mutated afterwards.
type Point struct {
	// Timestamp is when the observation was taken (RFC3339Nano on the wire).
	Timestamp time.Time `json:"timestamp"`

	// Value is the observed quantity.
	Value float64 `json:"value"`

	// Labels are dimensional identifiers (e.g., invocation_id).
	Labels map[string]string `json:"labels"`

	// Metadata carries free-form context such as success or error text.
	Metadata map[string]any `json:"metadata"`
}

// Series is the append-only, chronologically ordered history of one
// metric kind for one tool. A Series is owned by exactly one ToolMetrics
// record and is not safe for unsynchronised concurrent mutation.
type Series struct {
	Name        string  `json:"name"`
	Kind        Kind    `json:"type"`
	Description string  `json:"description"`
	Points      []Point `json:"points"`
}

// Add appends a new observation taken now. Nil labels or metadata are
// normalised to empty maps so encoded points always carry both keys.
func (s *Series) Add(value float64, labels map[string]string, metadata map[string]any) {
	if labels == nil {
		labels = map[string]string{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	s.Points = append(s.Points, Point{
		Timestamp: time.Now().UTC(),
		Value:     value,
		Labels:    labels,
		Metadata:  metadata,
	})
}

// ToolMetrics is the in-memory metric record for one tool. Construction
// eagerly populates a series for every kind, so callers never branch on
// a missing series. Mutation is the aggregator's responsibility and must
// happen under its per-tool lock.
type ToolMetrics struct {
	ToolName    string
	Series      map[Kind]*Series
	LastUpdated time.Time
}

// NewToolMetrics builds a record with one empty series per metric kind.
func NewToolMetrics(toolName string) *ToolMetrics {
	tm := &ToolMetrics{
		ToolName:    toolName,
		Series:      make(map[Kind]*Series, len(allKinds)),
		LastUpdated: time.Now().UTC(),
	}
	for _, kind := range allKinds {
		tm.Series[kind] = &Series{
			Name:        fmt.Sprintf("%s_%s", toolName, kind),
			Kind:        kind,
			Description: fmt.Sprintf("%s for %s", kind, toolName),
		}
	}
	return tm
}

// RecordExecution appends an execution-time point plus the matching
// success or error count point.
func (tm *ToolMetrics) RecordExecution(duration time.Duration, success bool, errText string) {
	tm.LastUpdated = time.Now().UTC()

	meta := map[string]any{"success": success}
	if errText != "" {
		meta["error"] = errText
	}
	tm.Series[KindExecutionTime].Add(duration.Seconds(), nil, meta)

	if success {
		tm.Series[KindSuccessCount].Add(1, nil, nil)
		return
	}
	errMeta := map[string]any{}
	if errText != "" {
		errMeta["error"] = errText
	}
	tm.Series[KindErrorCount].Add(1, nil, errMeta)
}

// RecordResources appends resource usage points. GPU is optional; a nil
// reading appends nothing to the gpu_usage series.
func (tm *ToolMetrics) RecordResources(cpuPercent, memoryGB float64, gpuPercent *float64, labels map[string]string) {
	tm.LastUpdated = time.Now().UTC()
	tm.Series[KindCPUUsage].Add(cpuPercent, labels, nil)
	tm.Series[KindMemoryUsage].Add(memoryGB, labels, nil)
	if gpuPercent != nil {
		tm.Series[KindGPUUsage].Add(*gpuPercent, labels, nil)
	}
}

// RecordHealthCheck appends a tool_health point. The value carries no
// information (probes are pass/fail); outcome lives in the metadata so
// health history stays queryable like any other series.
func (tm *ToolMetrics) RecordHealthCheck(healthy bool, errText string) {
	tm.LastUpdated = time.Now().UTC()
	meta := map[string]any{"success": healthy}
	if errText != "" {
		meta["error"] = errText
	}
	tm.Series[KindToolHealth].Add(0, nil, meta)
}
