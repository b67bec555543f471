// Package events provides structured logging for key events in toolrelay.
package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured JSON logging for dispatch and
// monitoring events.
type EventLogger struct {
	logger  *slog.Logger
	service string
}

// NewEventLogger creates a new EventLogger with JSON output to stdout.
// It includes the service name as a base attribute.
func NewEventLogger(service string) *EventLogger {
	return NewEventLoggerWithWriter(service, os.Stdout)
}

// NewEventLoggerWithWriter creates a new EventLogger with JSON output to
// a custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(service string, w io.Writer) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(handler).With(
		"service", service,
	)
	return &EventLogger{
		logger:  logger,
		service: service,
	}
}

// LogToolRegistered logs a tool registration.
// event: "tool_registered"
// Attributes: tool, endpoint, replaced
func (el *EventLogger) LogToolRegistered(tool, endpoint string, replaced bool) {
	el.logger.Info("tool_registered",
		"tool", tool,
		"endpoint", endpoint,
		"replaced", replaced,
	)
}

// LogToolDeregistered logs a tool deregistration.
// event: "tool_deregistered"
// Attributes: tool
func (el *EventLogger) LogToolDeregistered(tool string) {
	el.logger.Info("tool_deregistered",
		"tool", tool,
	)
}

// LogDispatchRetry logs a failed attempt that will be retried.
// event: "dispatch_retry"
// Attributes: tool, invocation_id, attempt, reason, backoff_ms
func (el *EventLogger) LogDispatchRetry(tool, invocationID string, attempt int, reason string, backoffMs int64) {
	el.logger.Warn("dispatch_retry",
		"tool", tool,
		"invocation_id", invocationID,
		"attempt", attempt,
		"reason", reason,
		"backoff_ms", backoffMs,
	)
}

// LogDispatchFailed logs an execution that exhausted its retries.
// event: "dispatch_failed"
// Attributes: tool, invocation_id, attempts, last_error
func (el *EventLogger) LogDispatchFailed(tool, invocationID string, attempts int, lastError string) {
	el.logger.Error("dispatch_failed",
		"tool", tool,
		"invocation_id", invocationID,
		"attempts", attempts,
		"last_error", lastError,
	)
}

// LogHealthCheck logs the outcome of a health probe.
// event: "health_check"
// Attributes: tool, healthy, reason
func (el *EventLogger) LogHealthCheck(tool string, healthy bool, reason string) {
	el.logger.Info("health_check",
		"tool", tool,
		"healthy", healthy,
		"reason", reason,
	)
}

// LogUnregisteredTool logs a call naming an unknown tool.
// event: "unregistered_tool"
// Attributes: tool, operation
func (el *EventLogger) LogUnregisteredTool(tool, operation string) {
	el.logger.Warn("unregistered_tool",
		"tool", tool,
		"operation", operation,
	)
}

// LogPersistError logs a failed metrics persistence cycle. Persistence
// failures are telemetry-layer errors and never reach business callers.
// event: "persist_error"
// Attributes: tool, error
func (el *EventLogger) LogPersistError(tool string, err error) {
	el.logger.Error("persist_error",
		"tool", tool,
		"error", err.Error(),
	)
}

// LogRetentionSweep logs one completed retention pass.
// event: "retention_sweep"
// Attributes: documents, points_dropped, failures
func (el *EventLogger) LogRetentionSweep(documents, pointsDropped, failures int) {
	el.logger.Info("retention_sweep",
		"documents", documents,
		"points_dropped", pointsDropped,
		"failures", failures,
	)
}

// LogSamplingError logs a failed resource reading. Sampling errors are
// always swallowed; the reading degrades to zero.
// event: "sampling_error"
// Attributes: probe, error
func (el *EventLogger) LogSamplingError(probe string, err error) {
	el.logger.Warn("sampling_error",
		"probe", probe,
		"error", err.Error(),
	)
}

// Global logger management
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events.
// Useful for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &EventLogger{
		logger: slog.New(handler),
	}
}
