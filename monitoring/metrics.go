package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType is counter or gauge.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Names recorded by the training service.
const (
	MetricTrainingRuns      = "training_runs_total"
	MetricTrainingFailures  = "training_failures_total"
	MetricTrainingDuration  = "training_duration_seconds"
	MetricTrainingEpochs    = "training_epochs"
	MetricValAccuracy       = "validation_accuracy"
	MetricValLoss           = "validation_loss"
	MetricPredictionsServed = "predictions_served_total"
	MetricPersistFailures   = "persist_failures_total"
)

const maxHistory = 1000

// Metric is one recorded sample.
type Metric struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// MetricsCollector keeps a bounded history per metric name.
type MetricsCollector struct {
	metrics     map[string][]Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]Metric),
		startTime: time.Now(),
	}
}

func (mc *MetricsCollector) record(name string, typ MetricType, value func(prev float64) float64) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	history := mc.metrics[name]
	prev := 0.0
	if len(history) > 0 {
		prev = history[len(history)-1].Value
	}
	history = append(history, Metric{Name: name, Type: typ, Value: value(prev), Timestamp: time.Now()})
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	mc.metrics[name] = history
}

// IncrCounter adds delta to a counter.
func (mc *MetricsCollector) IncrCounter(name string, delta float64) {
	mc.record(name, MetricTypeCounter, func(prev float64) float64 { return prev + delta })
}

// SetGauge records the current value of a gauge.
func (mc *MetricsCollector) SetGauge(name string, value float64) {
	mc.record(name, MetricTypeGauge, func(float64) float64 { return value })
}

// GetMetric returns a copy of the history for name.
func (mc *MetricsCollector) GetMetric(name string) ([]Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	history, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	return append([]Metric(nil), history...), nil
}

// Latest returns the most recent value of name, if any.
func (mc *MetricsCollector) Latest(name string) (float64, bool) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	history := mc.metrics[name]
	if len(history) == 0 {
		return 0, false
	}
	return history[len(history)-1].Value, true
}

// Snapshot returns the latest value of every metric.
func (mc *MetricsCollector) Snapshot() map[string]Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	out := make(map[string]Metric, len(mc.metrics))
	for name, history := range mc.metrics {
		if len(history) > 0 {
			out[name] = history[len(history)-1]
		}
	}
	return out
}

// ExportPrometheus renders the latest values in the text exposition format.
func (mc *MetricsCollector) ExportPrometheus() string {
	snapshot := mc.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		m := snapshot[name]
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, m.Type)
		fmt.Fprintf(&b, "%s %g\n", name, m.Value)
	}
	return b.String()
}

// Uptime returns the time since the collector was created.
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.startTime)
}

// CollectSystemMetrics samples runtime gauges every interval until ctx is done.
func (mc *MetricsCollector) CollectSystemMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			mc.SetGauge("go_goroutines", float64(runtime.NumGoroutine()))
			mc.SetGauge("go_memstats_heap_alloc_bytes", float64(m.HeapAlloc))
			mc.SetGauge("uptime_seconds", mc.Uptime().Seconds())
		}
	}
}
