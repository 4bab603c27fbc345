package ffmpeg

import (
	"fmt"
	"log"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"video2audio/config"
)

// ResourceGuard refuses new work when the host is short on idle CPU, memory
// or disk space. A zero threshold disables that check.
type ResourceGuard struct {
	MinIdleCPU  float64 // percent
	MinFreeMem  int64   // bytes
	MinFreeDisk int64   // bytes
	SampleTime  time.Duration
}

func NewResourceGuard(cfg *config.Config) *ResourceGuard {
	return &ResourceGuard{
		MinIdleCPU:  cfg.ThrottleCPU,
		MinFreeMem:  cfg.ThrottleFreeMem,
		MinFreeDisk: cfg.ThrottleFreeDisk,
		SampleTime:  time.Second,
	}
}

// Enabled reports whether any threshold is set.
func (g *ResourceGuard) Enabled() bool {
	return g.MinIdleCPU > 0 || g.MinFreeMem > 0 || g.MinFreeDisk > 0
}

// Check verifies that the system has enough free resources to start a job
// writing into dir. Metrics that cannot be read are logged and skipped.
func (g *ResourceGuard) Check(dir string) error {
	if g.MinIdleCPU > 0 {
		p, err := cpu.Percent(g.SampleTime, false)
		if err != nil {
			log.Printf("Warning: could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > (100.0-g.MinIdleCPU) {
			return fmt.Errorf("%w: not enough idle CPU, usage %.2f%%, idle threshold %.2f%%",
				ErrInsufficientResources, p[0], g.MinIdleCPU)
		}
	}

	if g.MinFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Printf("Warning: could not get memory usage: %v", err)
		} else if vm.Available < uint64(g.MinFreeMem) {
			return fmt.Errorf("%w: not enough free memory, available %s, required %s",
				ErrInsufficientResources, humanSize(vm.Available), humanSize(uint64(g.MinFreeMem)))
		}
	}

	if g.MinFreeDisk > 0 {
		d, err := disk.Usage(dir)
		if err != nil {
			log.Printf("Warning: could not get disk usage for %s: %v", dir, err)
		} else if d.Free < uint64(g.MinFreeDisk) {
			return fmt.Errorf("%w: not enough free disk space in %s, available %s, required %s",
				ErrInsufficientResources, dir, humanSize(d.Free), humanSize(uint64(g.MinFreeDisk)))
		}
	}
	return nil
}

func humanSize(b uint64) string {
	return datasize.ByteSize(b).HumanReadable()
}
