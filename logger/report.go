package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	warnsCompliance  int64
	warnsMarketData  int64
	warnsConnector   int64
	errorsCompliance int64
	errorsMarketData int64
	errorsConnector  int64

	priceFetchOK      int64
	priceFetchFailed  int64
	submissionsOK     int64
	submissionsFailed int64
	auditAppends      int64
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "compliance"), strings.Contains(component, "audit"):
		atomic.AddInt64(&warnsCompliance, 1)
	case strings.Contains(component, "market_data"):
		atomic.AddInt64(&warnsMarketData, 1)
	case strings.Contains(component, "connector"):
		atomic.AddInt64(&warnsConnector, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "compliance"), strings.Contains(component, "audit"):
		atomic.AddInt64(&errorsCompliance, 1)
	case strings.Contains(component, "market_data"):
		atomic.AddInt64(&errorsMarketData, 1)
	case strings.Contains(component, "connector"):
		atomic.AddInt64(&errorsConnector, 1)
	}
}

// IncrementPriceFetch counts one market-data fetch attempt outcome.
func IncrementPriceFetch(ok bool) {
	if ok {
		atomic.AddInt64(&priceFetchOK, 1)
		return
	}
	atomic.AddInt64(&priceFetchFailed, 1)
}

// IncrementSubmission counts one terminal regulatory submission outcome.
func IncrementSubmission(ok bool) {
	if ok {
		atomic.AddInt64(&submissionsOK, 1)
		return
	}
	atomic.AddInt64(&submissionsFailed, 1)
}

// IncrementAuditAppend counts one audit log append.
func IncrementAuditAppend() {
	atomic.AddInt64(&auditAppends, 1)
}

// StartReport begins periodic logging of runtime and activity counters.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func reportFields() Fields {
	return Fields{
		"warns_compliance":   atomic.LoadInt64(&warnsCompliance),
		"warns_market_data":  atomic.LoadInt64(&warnsMarketData),
		"warns_connector":    atomic.LoadInt64(&warnsConnector),
		"errors_compliance":  atomic.LoadInt64(&errorsCompliance),
		"errors_market_data": atomic.LoadInt64(&errorsMarketData),
		"errors_connector":   atomic.LoadInt64(&errorsConnector),
		"price_fetch_ok":     atomic.LoadInt64(&priceFetchOK),
		"price_fetch_failed": atomic.LoadInt64(&priceFetchFailed),
		"submissions_ok":     atomic.LoadInt64(&submissionsOK),
		"submissions_failed": atomic.LoadInt64(&submissionsFailed),
		"audit_appends":      atomic.LoadInt64(&auditAppends),
		"goroutines":         runtime.NumGoroutine(),
	}
}

func logReport(ctx context.Context, log *Log) {
	fields := reportFields()

	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / 1024 / 1024
	}
	fields["cpu_percent"] = cpuPct
	fields["memory_mb"] = int64(memMB)

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("EnergyLink-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("EnergyLink-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
	}
	for _, name := range []string{"price_fetch_ok", "price_fetch_failed", "submissions_ok", "submissions_failed", "audit_appends"} {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("EnergyLink-" + name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(fields[name].(int64))),
		})
	}

	publishMetrics(ctx, data)
}
