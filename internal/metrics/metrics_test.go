package metrics

import (
	"testing"
	"time"
)

func TestNewToolMetrics_EagerSeries(t *testing.T) {
	tm := NewToolMetrics("summarizer")

	if got, want := len(tm.Series), len(Kinds()); got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}
	for _, kind := range Kinds() {
		s, ok := tm.Series[kind]
		if !ok {
			t.Fatalf("missing series for kind %s", kind)
		}
		if s.Kind != kind {
			t.Errorf("series %s: expected kind %s, got %s", s.Name, kind, s.Kind)
		}
		if s.Name != "summarizer_"+string(kind) {
			t.Errorf("expected series name summarizer_%s, got %s", kind, s.Name)
		}
		if len(s.Points) != 0 {
			t.Errorf("series %s: expected no points at construction, got %d", s.Name, len(s.Points))
		}
	}
}

func TestKind_IsValid(t *testing.T) {
	for _, kind := range Kinds() {
		if !kind.IsValid() {
			t.Errorf("expected kind %s to be valid", kind)
		}
	}
	if Kind("latency_p99").IsValid() {
		t.Error("expected unknown kind to be invalid")
	}
}

func TestSeries_Add_NormalizesNilMaps(t *testing.T) {
	s := &Series{Name: "x", Kind: KindRequestCount}
	s.Add(1, nil, nil)

	if len(s.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(s.Points))
	}
	p := s.Points[0]
	if p.Labels == nil || p.Metadata == nil {
		t.Error("expected labels and metadata to be non-nil")
	}
	if p.Timestamp.IsZero() {
		t.Error("expected a timestamp to be set")
	}
}

func TestRecordExecution_Success(t *testing.T) {
	tm := NewToolMetrics("search")
	tm.RecordExecution(250*time.Millisecond, true, "")

	exec := tm.Series[KindExecutionTime]
	if len(exec.Points) != 1 {
		t.Fatalf("expected 1 execution point, got %d", len(exec.Points))
	}
	if got := exec.Points[0].Value; got != 0.25 {
		t.Errorf("expected execution value 0.25, got %v", got)
	}
	if got := exec.Points[0].Metadata["success"]; got != true {
		t.Errorf("expected success metadata true, got %v", got)
	}
	if _, ok := exec.Points[0].Metadata["error"]; ok {
		t.Error("expected no error metadata on success")
	}

	if got := len(tm.Series[KindSuccessCount].Points); got != 1 {
		t.Errorf("expected 1 success_count point, got %d", got)
	}
	if got := len(tm.Series[KindErrorCount].Points); got != 0 {
		t.Errorf("expected 0 error_count points, got %d", got)
	}
}

func TestRecordExecution_Failure(t *testing.T) {
	tm := NewToolMetrics("search")
	tm.RecordExecution(time.Second, false, "tool returned status 502")

	exec := tm.Series[KindExecutionTime]
	if got := exec.Points[0].Metadata["error"]; got != "tool returned status 502" {
		t.Errorf("expected error metadata, got %v", got)
	}
	if got := len(tm.Series[KindErrorCount].Points); got != 1 {
		t.Errorf("expected 1 error_count point, got %d", got)
	}
	errPoint := tm.Series[KindErrorCount].Points[0]
	if errPoint.Value != 1 {
		t.Errorf("expected error count value 1, got %v", errPoint.Value)
	}
	if got := errPoint.Metadata["error"]; got != "tool returned status 502" {
		t.Errorf("expected error metadata on error_count point, got %v", got)
	}
	if got := len(tm.Series[KindSuccessCount].Points); got != 0 {
		t.Errorf("expected 0 success_count points, got %d", got)
	}
}

func TestRecordResources(t *testing.T) {
	tm := NewToolMetrics("chart")
	gpu := 42.5
	tm.RecordResources(12.5, 3.25, &gpu, map[string]string{"invocation_id": "abc"})

	if got := tm.Series[KindCPUUsage].Points[0].Value; got != 12.5 {
		t.Errorf("expected cpu 12.5, got %v", got)
	}
	if got := tm.Series[KindMemoryUsage].Points[0].Value; got != 3.25 {
		t.Errorf("expected memory 3.25, got %v", got)
	}
	if got := tm.Series[KindGPUUsage].Points[0].Value; got != 42.5 {
		t.Errorf("expected gpu 42.5, got %v", got)
	}
	if got := tm.Series[KindCPUUsage].Points[0].Labels["invocation_id"]; got != "abc" {
		t.Errorf("expected invocation_id label, got %q", got)
	}
}

func TestRecordResources_NoGPU(t *testing.T) {
	tm := NewToolMetrics("chart")
	tm.RecordResources(10, 1, nil, nil)

	if got := len(tm.Series[KindGPUUsage].Points); got != 0 {
		t.Errorf("expected no gpu points without a reading, got %d", got)
	}
}

func TestRecordHealthCheck(t *testing.T) {
	tm := NewToolMetrics("search")
	tm.RecordHealthCheck(true, "")
	tm.RecordHealthCheck(false, "health check failed with status 503")

	points := tm.Series[KindToolHealth].Points
	if len(points) != 2 {
		t.Fatalf("expected 2 tool_health points, got %d", len(points))
	}
	for _, p := range points {
		if p.Value != 0 {
			t.Errorf("expected health point value 0, got %v", p.Value)
		}
	}
	if got := points[0].Metadata["success"]; got != true {
		t.Errorf("expected first probe success, got %v", got)
	}
	if got := points[1].Metadata["error"]; got != "health check failed with status 503" {
		t.Errorf("expected failure reason metadata, got %v", got)
	}
}

func TestRecordExecution_UpdatesLastUpdated(t *testing.T) {
	tm := NewToolMetrics("search")
	before := tm.LastUpdated

	time.Sleep(time.Millisecond)
	tm.RecordExecution(time.Millisecond, true, "")

	if !tm.LastUpdated.After(before) {
		t.Error("expected LastUpdated to advance")
	}
}
