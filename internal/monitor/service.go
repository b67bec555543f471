// Package monitor owns the in-memory metric record for every tool and
// keeps a durable, retention-bounded copy of each on disk. It is the
// metrics-aggregation half of the dispatch loop: the dispatcher reports
// outcomes here, callers read derived health from here.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/quaere-ai/toolrelay/internal/events"
	"github.com/quaere-ai/toolrelay/internal/metrics"
	"github.com/quaere-ai/toolrelay/internal/store"
)

// Execution describes one completed tool call, successful or not.
// Resource readings are optional; absent readings append no points.
type Execution struct {
	Tool     string
	Duration time.Duration
	Success  bool
	Error    string

	CPUPercent *float64
	MemoryGB   *float64
	GPUPercent *float64

	// Labels are attached to any resource points recorded for this
	// execution (e.g., invocation_id).
	Labels map[string]string
}

// HealthSummary is derived on demand from the in-memory series; it is
// never stored.
type HealthSummary struct {
	ToolName         string    `json:"tool_name"`
	SuccessRate      float64   `json:"success_rate"`
	AvgExecutionTime float64   `json:"average_execution_time"`
	TotalExecutions  int       `json:"total_executions"`
	LastUpdated      time.Time `json:"last_updated"`
}

// toolRecord pairs one tool's metrics with the lock that guards them.
// Locking is per tool so unrelated tools' telemetry never serialises.
type toolRecord struct {
	mu      sync.Mutex
	metrics *metrics.ToolMetrics
}

// Service is the monitoring service. Readers of Health see the latest
// in-memory state immediately; durable documents are written by a
// background persister and are eventually consistent.
type Service struct {
	config Config
	store  *store.DocumentStore
	events *events.EventLogger

	mu      sync.Mutex
	records map[string]*toolRecord

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
	notify  chan struct{}

	lifecycleMu sync.Mutex
	running     bool
	stopCh      chan struct{}
	stoppedCh   chan struct{}
	wg          sync.WaitGroup
}

// NewService creates a monitoring service persisting to documentStore.
// A nil logger falls back to the global event logger.
func NewService(config Config, documentStore *store.DocumentStore, logger *events.EventLogger) *Service {
	if logger == nil {
		logger = events.GetGlobalEventLogger()
	}
	return &Service{
		config:  config.WithDefaults(),
		store:   documentStore,
		events:  logger,
		records: make(map[string]*toolRecord),
		dirty:   make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Start launches the background persister and the retention loop.
// Starting an already-started service is a no-op.
func (s *Service) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})

	s.wg.Add(2)
	go s.persistLoop()
	go s.retentionLoop()

	go func() {
		s.wg.Wait()
		close(s.stoppedCh)
	}()
}

// Stop cancels the background loops and waits for them to drain. Any
// records still dirty are persisted before Stop returns, unless ctx
// expires first.
func (s *Service) Stop(ctx context.Context) error {
	shouldStop := false
	s.lifecycleMu.Lock()
	if s.running {
		s.running = false
		shouldStop = true
	}
	s.lifecycleMu.Unlock()

	if !shouldStop {
		return nil
	}

	close(s.stopCh)
	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record returns the in-memory record for a tool, creating it lazily on
// first reference.
func (s *Service) record(toolName string) *toolRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[toolName]
	if !ok {
		rec = &toolRecord{metrics: metrics.NewToolMetrics(toolName)}
		s.records[toolName] = rec
	}
	return rec
}

// RecordExecution appends the execution-time point, the matching
// success/error count point, and any resource points, then schedules an
// asynchronous persist of the tool's record. It never returns an error:
// telemetry durability failures must not fail business calls.
func (s *Service) RecordExecution(exec Execution) {
	rec := s.record(exec.Tool)

	rec.mu.Lock()
	rec.metrics.RecordExecution(exec.Duration, exec.Success, exec.Error)
	if exec.CPUPercent != nil && exec.MemoryGB != nil {
		rec.metrics.RecordResources(*exec.CPUPercent, *exec.MemoryGB, exec.GPUPercent, exec.Labels)
	}
	rec.mu.Unlock()

	s.markDirty(exec.Tool)
}

// RecordHealthCheck appends a tool_health point for a probe outcome and
// schedules a persist.
func (s *Service) RecordHealthCheck(toolName string, healthy bool, errText string) {
	rec := s.record(toolName)

	rec.mu.Lock()
	rec.metrics.RecordHealthCheck(healthy, errText)
	rec.mu.Unlock()

	s.markDirty(toolName)
}

// Health derives the tool's current health from the in-memory series.
// A tool with no recorded executions reports a zero success rate and
// zero averages rather than an error.
func (s *Service) Health(toolName string) HealthSummary {
	rec := s.record(toolName)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	tm := rec.metrics
	successCount := seriesSum(tm.Series[metrics.KindSuccessCount])
	errorCount := seriesSum(tm.Series[metrics.KindErrorCount])
	total := successCount + errorCount

	successRate := 0.0
	if total > 0 {
		successRate = successCount / total * 100
	}

	execSeries := tm.Series[metrics.KindExecutionTime]
	avg := 0.0
	if len(execSeries.Points) > 0 {
		avg = seriesSum(execSeries) / float64(len(execSeries.Points))
	}

	return HealthSummary{
		ToolName:         toolName,
		SuccessRate:      successRate,
		AvgExecutionTime: avg,
		TotalExecutions:  int(total),
		LastUpdated:      tm.LastUpdated,
	}
}

// Persist writes the tool's current record through the store's
// read-merge-write cycle. Exposed so callers can force durability at a
// known point; the background persister uses the same path.
func (s *Service) Persist(toolName string) error {
	rec := s.record(toolName)

	rec.mu.Lock()
	doc := rec.metrics.Document()
	rec.mu.Unlock()

	return s.store.Save(doc)
}

func (s *Service) markDirty(toolName string) {
	s.dirtyMu.Lock()
	s.dirty[toolName] = struct{}{}
	s.dirtyMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// takeDirty snapshots and clears the set of tools awaiting persistence.
func (s *Service) takeDirty() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	tools := make([]string, 0, len(s.dirty))
	for tool := range s.dirty {
		tools = append(tools, tool)
	}
	s.dirty = make(map[string]struct{})
	return tools
}

// persistLoop flushes dirty records to disk as they arrive and drains
// whatever remains when the service stops. Persist failures are logged
// and the record stays dirty for the next pass.
func (s *Service) persistLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			s.flushDirty()
			return
		case <-s.notify:
			s.flushDirty()
		}
	}
}

// flushDirty persists every dirty record. A failed persist is logged
// and dropped; the record becomes dirty again on its next update.
func (s *Service) flushDirty() {
	for _, tool := range s.takeDirty() {
		if err := s.Persist(tool); err != nil {
			s.events.LogPersistError(tool, err)
		}
	}
}
