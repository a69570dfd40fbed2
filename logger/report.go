package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	cyclesCompleted int64
	filingsSeen     int64
	entriesOpened   int64
	exitsClosed     int64
	orderFailures   int64

	componentErrors sync.Map // map[string]*int64
	componentWarns  sync.Map // map[string]*int64
)

func recordWarn(component string) {
	v, _ := componentWarns.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := componentErrors.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// IncrementCycle tallies one completed poll cycle.
func IncrementCycle() { atomic.AddInt64(&cyclesCompleted, 1) }

// IncrementFilings tallies filings pulled from the feed.
func IncrementFilings(n int) { atomic.AddInt64(&filingsSeen, int64(n)) }

// IncrementEntries tallies opened positions.
func IncrementEntries() { atomic.AddInt64(&entriesOpened, 1) }

// IncrementExits tallies closed positions.
func IncrementExits() { atomic.AddInt64(&exitsClosed, 1) }

// IncrementOrderFailures tallies broker submissions that failed.
func IncrementOrderFailures() { atomic.AddInt64(&orderFailures, 1) }

// StartReport begins periodic logging of runtime and trading statistics,
// published to CloudWatch when the client is configured.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}
	diskMB := int64(0)
	if diskStats != nil {
		diskMB = int64(diskStats.Used) / 1024 / 1024
	}

	errorData := map[string]int64{}
	componentErrors.Range(func(k, v any) bool {
		errorData[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	warnData := map[string]int64{}
	componentWarns.Range(func(k, v any) bool {
		warnData[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	fields := Fields{
		"cycles":         atomic.LoadInt64(&cyclesCompleted),
		"filings_seen":   atomic.LoadInt64(&filingsSeen),
		"entries_opened": atomic.LoadInt64(&entriesOpened),
		"exits_closed":   atomic.LoadInt64(&exitsClosed),
		"order_failures": atomic.LoadInt64(&orderFailures),
		"errors":         errorData,
		"warns":          warnData,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      memMB,
		"disk_mb":        diskMB,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskMB))},
		{MetricName: aws.String("CyclesCompleted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&cyclesCompleted)))},
		{MetricName: aws.String("FilingsSeen"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&filingsSeen)))},
		{MetricName: aws.String("EntriesOpened"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&entriesOpened)))},
		{MetricName: aws.String("ExitsClosed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&exitsClosed)))},
		{MetricName: aws.String("OrderFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&orderFailures)))},
	}

	for component, count := range errorData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("ComponentErrors"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Component"), Value: aws.String(component)}},
			Value:      aws.Float64(float64(count)),
		})
	}

	publishMetrics(ctx, data)
}
