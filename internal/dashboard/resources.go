package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"energylink/logger"
)

// hostSample is one reading of host utilisation. Disk figures refer to the
// volume holding the audit database.
type hostSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

type hostSampler struct {
	samples  *ring[hostSample]
	interval time.Duration
	diskPath string
	log      *logger.Entry

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

func newHostSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *hostSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &hostSampler{
		samples:  newRing[hostSample](limit),
		interval: interval,
		diskPath: diskPath,
		log:      log.WithComponent("host_sampler"),
	}
}

func (s *hostSampler) start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		for ctx.Err() == nil {
			sample, err := s.sample(ctx)
			if err != nil {
				s.log.WithError(err).Debug("host sample failed")
				select {
				case <-ctx.Done():
				case <-time.After(s.interval):
				}
				continue
			}
			s.samples.push(sample)
		}
	}()
}

func (s *hostSampler) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// sample blocks for the sampling interval while cpu usage is measured.
func (s *hostSampler) sample(ctx context.Context) (hostSample, error) {
	cpuPct, err := cpuPercentFn(ctx, s.interval)
	if err != nil {
		return hostSample{}, err
	}
	vm, err := memoryStatsFn(ctx)
	if err != nil {
		return hostSample{}, err
	}
	du, err := diskUsageFn(ctx, s.diskPath)
	if err != nil {
		return hostSample{}, err
	}

	out := hostSample{
		Timestamp:   time.Now().UTC(),
		MemoryUsed:  vm.Used,
		MemoryTotal: vm.Total,
		MemoryPct:   vm.UsedPercent,
		DiskUsed:    du.Used,
		DiskTotal:   du.Total,
		DiskPct:     du.UsedPercent,
	}
	if len(cpuPct) > 0 {
		out.CPUPercent = cpuPct[0]
	}
	return out, nil
}

func (s *hostSampler) history() []hostSample {
	return s.samples.snapshot(nil)
}

// latest returns the newest sample, if any.
func (s *hostSampler) latest() (hostSample, bool) {
	all := s.history()
	if len(all) == 0 {
		return hostSample{}, false
	}
	return all[len(all)-1], true
}
