package report

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostInfo describes the machine that ran the pollers.
type HostInfo struct {
	Hostname   string
	OS         string
	Platform   string
	CPUs       int
	MemTotalMB uint64
	Load1      float64
	Load5      float64
	Load15     float64
}

// String renders a compact one-line description.
// Params: none.
// Returns: host summary.
func (h HostInfo) String() string {
	return fmt.Sprintf(
		"%s (%s/%s, cpus=%d, mem=%dMB, load=%.2f/%.2f/%.2f)",
		h.Hostname, h.OS, h.Platform, h.CPUs, h.MemTotalMB, h.Load1, h.Load5, h.Load15,
	)
}

// CollectHostInfo reads host identity, CPU count, memory and load average.
// Params: ctx for cancellation.
// Returns: host info; fields that cannot be read stay zero and the first error is returned.
func CollectHostInfo(ctx context.Context) (HostInfo, error) {
	info := HostInfo{OS: runtime.GOOS, CPUs: runtime.NumCPU()}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	stat, err := host.InfoWithContext(ctx)
	if err == nil {
		info.Hostname = stat.Hostname
		info.Platform = stat.Platform + " " + stat.PlatformVersion
	}
	keep(wrap("read host info", err))

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil && counts > 0 {
		info.CPUs = counts
	} else {
		keep(wrap("read cpu count", err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemTotalMB = vm.Total / (1024 * 1024)
	} else {
		keep(wrap("read memory", err))
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		info.Load1, info.Load5, info.Load15 = avg.Load1, avg.Load5, avg.Load15
	} else {
		keep(wrap("read load average", err))
	}

	return info, firstErr
}

// wrap prefixes err with action.
// Params: action description; err cause or nil.
// Returns: wrapped error or nil.
func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}
