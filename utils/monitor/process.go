package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ProcessMonitor samples Go runtime statistics into gauges while the CLI
// serves metrics.
type ProcessMonitor struct {
	cancel   context.CancelFunc
	logger   *zap.Logger
	interval time.Duration
	metrics  struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
		uptime      prometheus.Gauge
	}
	started time.Time
	wg      sync.WaitGroup
}

// NewProcessMonitor creates the gauges on reg. Call Start to begin sampling.
func NewProcessMonitor(namespace string, reg prometheus.Registerer, interval time.Duration, logger *zap.Logger) *ProcessMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	factory := promauto.With(reg)
	m := &ProcessMonitor{logger: logger, interval: interval, started: time.Now()}

	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.heapObjects = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_objects",
		Help:      "Current number of heap objects",
	})
	m.metrics.heapAlloc = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_heap_alloc_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.metrics.gcPause = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_gc_pause_seconds",
		Help:      "Duration of the last GC pause",
	})
	m.metrics.uptime = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_uptime_seconds",
		Help:      "Seconds since the monitor was created",
	})
	return m
}

// Start samples once immediately and then every interval until ctx is done
// or Stop is called.
func (m *ProcessMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.Collect()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Collect()
			}
		}
	}()
}

// Collect takes one sample.
func (m *ProcessMonitor) Collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.gcPause.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Second))
	m.metrics.uptime.Set(time.Since(m.started).Seconds())
}

// Stop ends sampling and waits for the sampler to exit.
func (m *ProcessMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil
	m.logger.Debug("Process monitor stopped", zap.Duration("uptime", time.Since(m.started)))
}
