// Package governor derives a safe upper bound on worker concurrency from
// host CPU and memory headroom.
package governor

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Empirical planning constants, validated against interactive-workstation runs.
const (
	// MemoryPerWorker is the measured per-worker memory cost.
	MemoryPerWorker = 1 << 20 // 1 MiB

	// CPUOverheadPercent is reserved for the rest of the system.
	CPUOverheadPercent = 20.0

	// cpuWorkerRatio converts a percent of CPU headroom into workers.
	cpuWorkerRatio = 10

	// HardCap bounds concurrency regardless of measured headroom.
	HardCap = 2000

	// saturationPercent is the pre-run abort threshold for CPU and memory.
	saturationPercent = 80.0

	// cpuSampleWindow is how long the CPU utilization sample observes.
	cpuSampleWindow = 100 * time.Millisecond
)

// Sample is one observation of host resource state.
type Sample struct {
	CPUPercent     float64
	MemoryPercent  float64
	AvailableBytes uint64
}

// SampleFunc produces a Sample. Production code uses the gopsutil-backed
// default; tests inject fixed samples.
type SampleFunc func() (Sample, error)

// InsufficientResourcesError is returned when the host is already saturated
// before the run starts. It is fatal: no request is issued.
type InsufficientResourcesError struct {
	CPUPercent    float64
	MemoryPercent float64
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient system resources: CPU %.1f%%, memory %.1f%%",
		e.CPUPercent, e.MemoryPercent)
}

// Governor computes safe concurrency ceilings. It generates no request
// traffic; aside from sampling it is pure computation.
type Governor struct {
	sample  SampleFunc
	hardCap int
}

// New returns a Governor backed by live host sampling.
func New() *Governor {
	return &Governor{sample: systemSample, hardCap: HardCap}
}

// NewWithSampler returns a Governor using the given sampler. Used by tests
// and by embedders that meter resources themselves.
func NewWithSampler(sample SampleFunc) *Governor {
	return &Governor{sample: sample, hardCap: HardCap}
}

// Capacity returns min(requested, memoryCeiling, cpuCeiling, hardCap).
//
// The memory ceiling is available memory divided by the per-worker cost. The
// CPU ceiling is the headroom below the reserved overhead, scaled by the
// worker ratio. If CPU and memory are both at or beyond the saturation
// threshold the run must not start and an InsufficientResourcesError is
// returned.
func (g *Governor) Capacity(requested int) (int, error) {
	s, err := g.sample()
	if err != nil {
		return 0, fmt.Errorf("failed to sample system resources: %w", err)
	}

	if s.CPUPercent >= saturationPercent && s.MemoryPercent >= saturationPercent {
		return 0, &InsufficientResourcesError{
			CPUPercent:    s.CPUPercent,
			MemoryPercent: s.MemoryPercent,
		}
	}

	memCeiling := int(s.AvailableBytes / MemoryPerWorker)

	headroom := 100.0 - s.CPUPercent - CPUOverheadPercent
	if headroom < 0 {
		headroom = 0
	}
	cpuCeiling := int(headroom * cpuWorkerRatio)

	safe := requested
	if memCeiling < safe {
		safe = memCeiling
	}
	if cpuCeiling < safe {
		safe = cpuCeiling
	}
	if g.hardCap < safe {
		safe = g.hardCap
	}

	if safe <= 0 {
		return 0, &InsufficientResourcesError{
			CPUPercent:    s.CPUPercent,
			MemoryPercent: s.MemoryPercent,
		}
	}
	return safe, nil
}

// systemSample reads instantaneous CPU utilization and memory availability.
func systemSample() (Sample, error) {
	percents, err := cpu.Percent(cpuSampleWindow, false)
	if err != nil {
		return Sample{}, err
	}
	cpuPercent := 0.0
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		CPUPercent:     cpuPercent,
		MemoryPercent:  vm.UsedPercent,
		AvailableBytes: vm.Available,
	}, nil
}
