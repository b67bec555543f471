package sampler

import (
	"testing"

	"github.com/quaere-ai/toolrelay/internal/events"
)

func TestSystemUsage_NeverErrors(t *testing.T) {
	s := New(events.NoopEventLogger())
	defer s.Close()

	usage := s.SystemUsage()
	if usage.CPUPercent < 0 {
		t.Errorf("expected non-negative cpu, got %v", usage.CPUPercent)
	}
	if usage.MemoryPercent < 0 || usage.MemoryPercent > 100 {
		t.Errorf("expected memory percent in [0,100], got %v", usage.MemoryPercent)
	}
	if usage.MemoryGB < 0 {
		t.Errorf("expected non-negative memory, got %v", usage.MemoryGB)
	}
	if usage.GPUPercent != nil && (*usage.GPUPercent < 0 || *usage.GPUPercent > 100) {
		t.Errorf("expected gpu percent in [0,100], got %v", *usage.GPUPercent)
	}
}

func TestProcessUsage_MissingProcess(t *testing.T) {
	s := New(events.NoopEventLogger())
	defer s.Close()

	// PIDs are positive; -1 can never name a live process.
	if _, ok := s.ProcessUsage(-1); ok {
		t.Error("expected false for nonexistent process")
	}
}

func TestGPUAvailable_ConsistentWithReadings(t *testing.T) {
	s := New(events.NoopEventLogger())
	defer s.Close()

	usage := s.SystemUsage()
	if !s.GPUAvailable() && usage.GPUPercent != nil {
		t.Error("expected no gpu reading when gpu is unavailable")
	}
}
