package sampler

import (
	"errors"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/quaere-ai/toolrelay/internal/events"
)

// gpuReader reads device-level GPU utilization through NVML. NVML
// reports utilization per device, not per process, so process readings
// reuse the device figure.
type gpuReader struct {
	devices []nvml.Device
}

// newGPUReader probes NVML once. Returns nil when the driver is missing
// or no devices are present; the sampler then runs without a GPU leg.
func newGPUReader(logger *events.EventLogger) *gpuReader {
	if ret := nvml.Init(); !errors.Is(ret, nvml.SUCCESS) {
		logger.LogSamplingError("gpu_probe", fmt.Errorf("initialize NVML: %s", nvml.ErrorString(ret)))
		return nil
	}

	count, ret := nvml.DeviceGetCount()
	if !errors.Is(ret, nvml.SUCCESS) || count == 0 {
		nvml.Shutdown()
		logger.LogSamplingError("gpu_probe", fmt.Errorf("no NVIDIA devices found"))
		return nil
	}

	devices := make([]nvml.Device, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if errors.Is(ret, nvml.SUCCESS) {
			devices = append(devices, device)
		}
	}
	if len(devices) == 0 {
		nvml.Shutdown()
		return nil
	}
	return &gpuReader{devices: devices}
}

// utilization returns the mean GPU utilization across devices.
func (g *gpuReader) utilization() (float64, error) {
	var total float64
	read := 0
	for _, device := range g.devices {
		rates, ret := device.GetUtilizationRates()
		if !errors.Is(ret, nvml.SUCCESS) {
			continue
		}
		total += float64(rates.Gpu)
		read++
	}
	if read == 0 {
		return 0, fmt.Errorf("no GPU utilization readings available")
	}
	return total / float64(read), nil
}

func (g *gpuReader) close() {
	nvml.Shutdown()
}
