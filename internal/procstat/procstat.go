package procstat

import (
	"github.com/shirou/gopsutil/v3/process"

	"screenrec/internal/domain"
)

// Sample reads CPU and resident memory for pid. It reports false when the
// process is gone or cannot be inspected.
func Sample(pid int) (domain.ProcessStats, bool) {
	if pid <= 0 {
		return domain.ProcessStats{}, false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return domain.ProcessStats{}, false
	}

	var stats domain.ProcessStats
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return domain.ProcessStats{}, false
	}
	stats.RSSBytes = mem.RSS
	return stats, true
}

// Enrich attaches a sample to every worker that reports a live PID.
func Enrich(status domain.Status) domain.Status {
	for i, worker := range status.Workers {
		if stats, ok := Sample(worker.PID); ok {
			s := stats
			status.Workers[i].Process = &s
		}
	}
	return status
}
