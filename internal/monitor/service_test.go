package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quaere-ai/toolrelay/internal/events"
	"github.com/quaere-ai/toolrelay/internal/metrics"
	"github.com/quaere-ai/toolrelay/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.DocumentStore) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return NewService(DefaultConfig(), st, events.NoopEventLogger()), st
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.RetentionDays != 7 {
		t.Errorf("expected 7 retention days, got %d", cfg.RetentionDays)
	}
	if cfg.CleanupInterval != time.Hour {
		t.Errorf("expected 1h cleanup interval, got %v", cfg.CleanupInterval)
	}
	if cfg.CleanupRetryInterval != time.Minute {
		t.Errorf("expected 1m retry interval, got %v", cfg.CleanupRetryInterval)
	}

	custom := Config{RetentionDays: 30}.WithDefaults()
	if custom.RetentionDays != 30 {
		t.Errorf("expected explicit retention preserved, got %d", custom.RetentionDays)
	}
}

func TestHealth_Derivation(t *testing.T) {
	svc, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		svc.RecordExecution(Execution{Tool: "search", Duration: 100 * time.Millisecond, Success: true})
	}
	svc.RecordExecution(Execution{Tool: "search", Duration: 500 * time.Millisecond, Success: false, Error: "tool returned status 502"})

	h := svc.Health("search")
	if h.ToolName != "search" {
		t.Errorf("expected tool name search, got %s", h.ToolName)
	}
	if h.SuccessRate != 75.0 {
		t.Errorf("expected success rate 75.0, got %v", h.SuccessRate)
	}
	if h.TotalExecutions != 4 {
		t.Errorf("expected 4 total executions, got %d", h.TotalExecutions)
	}
	// (0.1*3 + 0.5) / 4 = 0.2
	if h.AvgExecutionTime < 0.199 || h.AvgExecutionTime > 0.201 {
		t.Errorf("expected average execution time ~0.2, got %v", h.AvgExecutionTime)
	}
	if h.LastUpdated.IsZero() {
		t.Error("expected last updated to be set")
	}
}

func TestHealth_NoExecutions(t *testing.T) {
	svc, _ := newTestService(t)

	h := svc.Health("idle")
	if h.SuccessRate != 0 {
		t.Errorf("expected 0 success rate, got %v", h.SuccessRate)
	}
	if h.AvgExecutionTime != 0 {
		t.Errorf("expected 0 average, got %v", h.AvgExecutionTime)
	}
	if h.TotalExecutions != 0 {
		t.Errorf("expected 0 executions, got %d", h.TotalExecutions)
	}
}

func TestHealth_HealthChecksDoNotCountAsExecutions(t *testing.T) {
	svc, _ := newTestService(t)

	svc.RecordExecution(Execution{Tool: "search", Duration: time.Millisecond, Success: true})
	svc.RecordHealthCheck("search", false, "health check failed with status 503")

	h := svc.Health("search")
	if h.TotalExecutions != 1 {
		t.Errorf("expected health probes excluded from executions, got %d", h.TotalExecutions)
	}
	if h.SuccessRate != 100.0 {
		t.Errorf("expected 100.0 success rate, got %v", h.SuccessRate)
	}
}

func TestRecordExecution_Concurrent(t *testing.T) {
	svc, st := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.RecordExecution(Execution{
				Tool:     "search",
				Duration: time.Duration(i) * time.Millisecond,
				Success:  i%2 == 0,
				Error:    "induced failure",
			})
		}(i)
	}
	wg.Wait()

	h := svc.Health("search")
	if h.TotalExecutions != 100 {
		t.Errorf("expected 100 executions, got %d", h.TotalExecutions)
	}
	if h.SuccessRate != 50.0 {
		t.Errorf("expected 50.0 success rate, got %v", h.SuccessRate)
	}

	if err := svc.Persist("search"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	doc, err := st.Load("search")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(doc.Metrics["search_execution_time"].Points); got != 100 {
		t.Errorf("expected 100 persisted execution points, got %d", got)
	}
}

func TestRecordExecution_ResourcePoints(t *testing.T) {
	svc, st := newTestService(t)

	cpu, mem, gpu := 12.5, 3.25, 42.0
	svc.RecordExecution(Execution{
		Tool:       "chart",
		Duration:   time.Millisecond,
		Success:    true,
		CPUPercent: &cpu,
		MemoryGB:   &mem,
		GPUPercent: &gpu,
		Labels:     map[string]string{"invocation_id": "abc"},
	})
	// Without both CPU and memory readings, no resource points at all.
	svc.RecordExecution(Execution{Tool: "chart", Duration: time.Millisecond, Success: true, CPUPercent: &cpu})

	if err := svc.Persist("chart"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	doc, err := st.Load("chart")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(doc.Metrics["chart_cpu_usage"].Points); got != 1 {
		t.Errorf("expected 1 cpu point, got %d", got)
	}
	if got := len(doc.Metrics["chart_gpu_usage"].Points); got != 1 {
		t.Errorf("expected 1 gpu point, got %d", got)
	}
	if got := doc.Metrics["chart_cpu_usage"].Points[0].Labels["invocation_id"]; got != "abc" {
		t.Errorf("expected invocation_id label, got %q", got)
	}
}

func TestPersist_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	svc.RecordExecution(Execution{Tool: "search", Duration: time.Millisecond, Success: true})

	if err := svc.Persist("search"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := svc.Persist("search"); err != nil {
		t.Fatalf("second persist: %v", err)
	}

	doc, err := st.Load("search")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(doc.Metrics["search_execution_time"].Points); got != 1 {
		t.Errorf("expected repeated persist to keep 1 point, got %d", got)
	}
}

func TestStop_DrainsDirtyRecords(t *testing.T) {
	svc, st := newTestService(t)
	svc.Start()

	svc.RecordExecution(Execution{Tool: "search", Duration: time.Millisecond, Success: true})
	svc.RecordHealthCheck("summarizer", true, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	tools, err := st.ListTools()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("expected both tools persisted on stop, got %v", tools)
	}
}

func TestStop_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Start()

	ctx := context.Background()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Errorf("expected second stop to be a no-op, got %v", err)
	}
}

func TestRunRetention_PrunesOldPoints(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	svc := NewService(Config{RetentionDays: 7}, st, events.NoopEventLogger())

	now := time.Now().UTC()
	doc := &metrics.Document{
		ToolName:    "search",
		LastUpdated: now,
		Metrics: map[string]metrics.SeriesDocument{
			"search_execution_time": {
				Type: metrics.KindExecutionTime,
				Points: []metrics.Point{
					{Timestamp: now.Add(-8 * 24 * time.Hour), Value: 1.0, Labels: map[string]string{}, Metadata: map[string]any{}},
					{Timestamp: now.Add(-time.Hour), Value: 2.0, Labels: map[string]string{}, Metadata: map[string]any{}},
				},
			},
		},
	}
	if err := st.Save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	svc.RunRetentionNow()

	loaded, err := st.Load("search")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.PointCount(); got != 1 {
		t.Errorf("expected 1 surviving point after retention, got %d", got)
	}

	// A second sweep drops nothing further.
	svc.RunRetentionNow()
	loaded, err = st.Load("search")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.PointCount(); got != 1 {
		t.Errorf("expected retention to be monotone, got %d points", got)
	}
}

func TestRunRetention_ContinuesPastCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	svc := NewService(Config{RetentionDays: 7}, st, events.NoopEventLogger())

	if err := os.WriteFile(filepath.Join(dir, "broken_metrics.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	now := time.Now().UTC()
	doc := &metrics.Document{
		ToolName: "search",
		Metrics: map[string]metrics.SeriesDocument{
			"search_execution_time": {
				Type: metrics.KindExecutionTime,
				Points: []metrics.Point{
					{Timestamp: now.Add(-8 * 24 * time.Hour), Value: 1.0, Labels: map[string]string{}, Metadata: map[string]any{}},
				},
			},
		},
	}
	if err := st.Save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	svc.RunRetentionNow()

	loaded, err := st.Load("search")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.PointCount(); got != 0 {
		t.Errorf("expected healthy document pruned despite corrupt neighbor, got %d points", got)
	}
}
