package util

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryUsagePercent reports system memory utilization as 0-100.
func MemoryUsagePercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read memory stats: %w", err)
	}
	return vm.UsedPercent, nil
}

// CPUUsagePercent reports aggregate CPU utilization as 0-100 since the
// previous call. The first call in a process may report zero.
func CPUUsagePercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("read cpu stats: %w", err)
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu samples")
	}
	return percents[0], nil
}
