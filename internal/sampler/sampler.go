// Package sampler provides best-effort point-in-time resource readings
// for the host and for individual processes. Readings are advisory
// telemetry, not a control input: the sampler never returns an error,
// and every failed probe is logged and degrades to a zero reading.
package sampler

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/quaere-ai/toolrelay/internal/events"
)

const bytesPerGB = 1 << 30

// Usage is one point-in-time resource reading. GPUPercent is nil when
// no GPU is available or the GPU probe failed at startup.
type Usage struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryGB      float64
	GPUPercent    *float64
}

// Sampler reads host and process resource usage on demand. GPU
// availability is probed once at construction and cached; when the
// probe fails, GPU readings stay absent for the sampler's lifetime.
type Sampler struct {
	events *events.EventLogger
	gpu    *gpuReader
}

// New creates a Sampler, probing for GPU support. A nil logger falls
// back to the global event logger.
func New(logger *events.EventLogger) *Sampler {
	if logger == nil {
		logger = events.GetGlobalEventLogger()
	}
	return &Sampler{
		events: logger,
		gpu:    newGPUReader(logger),
	}
}

// Close releases any GPU driver resources held by the sampler.
func (s *Sampler) Close() {
	if s.gpu != nil {
		s.gpu.close()
	}
}

// GPUAvailable reports whether the startup GPU probe succeeded.
func (s *Sampler) GPUAvailable() bool {
	return s.gpu != nil
}

// SystemUsage reads host-wide CPU, memory, and (when available) GPU
// utilization. Individual probe failures degrade to zero values.
func (s *Sampler) SystemUsage() Usage {
	var usage Usage

	if percents, err := cpu.Percent(0, false); err != nil {
		s.events.LogSamplingError("cpu", err)
	} else if len(percents) > 0 {
		usage.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		s.events.LogSamplingError("memory", err)
	} else if vm != nil {
		usage.MemoryPercent = vm.UsedPercent
		usage.MemoryGB = float64(vm.Used) / bytesPerGB
	}

	usage.GPUPercent = s.gpuPercent()
	return usage
}

// ProcessUsage mirrors SystemUsage for a single process. The second
// return value is false when the process no longer exists, in which
// case the reading is empty.
func (s *Sampler) ProcessUsage(pid int32) (Usage, bool) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		s.events.LogSamplingError("process", err)
		return Usage{}, false
	}

	var usage Usage
	if cpuPct, err := proc.CPUPercent(); err != nil {
		s.events.LogSamplingError("process_cpu", err)
	} else {
		usage.CPUPercent = cpuPct
	}

	if memPct, err := proc.MemoryPercent(); err != nil {
		s.events.LogSamplingError("process_memory", err)
	} else {
		usage.MemoryPercent = float64(memPct)
	}

	if memInfo, err := proc.MemoryInfo(); err != nil {
		s.events.LogSamplingError("process_memory", err)
	} else if memInfo != nil {
		usage.MemoryGB = float64(memInfo.RSS) / bytesPerGB
	}

	usage.GPUPercent = s.gpuPercent()
	return usage, true
}

func (s *Sampler) gpuPercent() *float64 {
	if s.gpu == nil {
		return nil
	}
	pct, err := s.gpu.utilization()
	if err != nil {
		s.events.LogSamplingError("gpu", err)
		return nil
	}
	return &pct
}
