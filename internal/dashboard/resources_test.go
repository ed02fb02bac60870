package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"energylink/logger"
)

func stubHost(t *testing.T, diskErr error) *atomic.Int32 {
	t.Helper()
	originalCPU, originalMem, originalDisk := cpuPercentFn, memoryStatsFn, diskUsageFn
	t.Cleanup(func() {
		cpuPercentFn = originalCPU
		memoryStatsFn = originalMem
		diskUsageFn = originalDisk
	})

	calls := &atomic.Int32{}
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		calls.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
		return []float64{42.5}, nil
	}
	memoryStatsFn = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
	}
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		if diskErr != nil {
			return nil, diskErr
		}
		return &disk.UsageStat{Path: path, Used: 4096, Total: 8192, UsedPercent: 50}, nil
	}
	return calls
}

func TestHostSamplerCollectsSamples(t *testing.T) {
	calls := stubHost(t, nil)
	sampler := newHostSampler(3, 5*time.Millisecond, "", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)

	deadline := time.Now().Add(time.Second)
	for len(sampler.history()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("host sampler did not collect samples in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sampler.stop()

	if got := len(sampler.history()); got != 3 {
		t.Fatalf("history should be capped at 3, got %d", got)
	}
	latest, ok := sampler.latest()
	if !ok {
		t.Fatal("expected a latest sample")
	}
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 || latest.DiskPct != 50 {
		t.Fatalf("unexpected sample: %#v", latest)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected cpu collector to run at least 3 times, got %d", calls.Load())
	}
}

func TestHostSamplerSkipsFailedSamples(t *testing.T) {
	stubHost(t, errors.New("no such volume"))
	sampler := newHostSampler(3, 5*time.Millisecond, "/data", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	sampler.start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	sampler.stop()

	if _, ok := sampler.latest(); ok {
		t.Fatal("failed samples must not be recorded")
	}
}

func TestHostSamplerBacksOffAfterImmediateFailure(t *testing.T) {
	stubHost(t, nil)
	var calls atomic.Int32
	cpuPercentFn = func(context.Context, time.Duration) ([]float64, error) {
		calls.Add(1)
		return nil, errors.New("cpu stats unavailable")
	}
	sampler := newHostSampler(3, 20*time.Millisecond, "", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	sampler.start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	sampler.stop()

	if n := calls.Load(); n < 1 || n > 10 {
		t.Fatalf("expected the sampler to wait between failed samples, got %d attempts", n)
	}
}
