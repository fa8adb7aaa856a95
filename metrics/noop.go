package metrics

import (
	"time"

	"github.com/saiset-co/servicehub-client/types"
)

// NoopMetrics backs every component when metrics are disabled.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) Start() error    { return nil }
func (NoopMetrics) Stop() error     { return nil }
func (NoopMetrics) IsRunning() bool { return false }

func (NoopMetrics) Counter(string, map[string]string) types.Counter { return noopMetric{} }
func (NoopMetrics) Gauge(string, map[string]string) types.Gauge     { return noopMetric{} }

func (NoopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return noopMetric{}
}

func (NoopMetrics) GetMetrics() ([]byte, error) { return []byte("[]"), nil }

type noopMetric struct{}

func (noopMetric) Inc()                      {}
func (noopMetric) Dec()                      {}
func (noopMetric) Add(float64)               {}
func (noopMetric) Sub(float64)               {}
func (noopMetric) Set(float64)               {}
func (noopMetric) Get() float64              { return 0 }
func (noopMetric) Observe(float64)           {}
func (noopMetric) ObserveDuration(time.Time) {}
func (noopMetric) GetCount() uint64          { return 0 }
func (noopMetric) GetSum() float64           { return 0 }
