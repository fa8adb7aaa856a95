package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/servicehub-client/config"
	"github.com/saiset-co/servicehub-client/logger"
	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

func newPrometheus(t *testing.T) *PrometheusMetrics {
	t.Helper()
	m, err := NewPrometheusMetrics(context.Background(), logger.NewNopLogger(), &types.MetricsConfig{
		Enabled:   true,
		Type:      "prometheus",
		Namespace: "test",
	})
	require.NoError(t, err)
	return m
}

func TestCounterSharesFamilyAcrossLabels(t *testing.T) {
	m := newPrometheus(t)

	hit := m.Counter("cache_operations_total", map[string]string{"kind": "tickets", "result": "hit"})
	miss := m.Counter("cache_operations_total", map[string]string{"kind": "tickets", "result": "miss"})

	hit.Inc()
	hit.Inc()
	miss.Add(3)

	assert.Equal(t, float64(2), hit.Get())
	assert.Equal(t, float64(3), miss.Get())
}

func TestGaugeAndHistogram(t *testing.T) {
	m := newPrometheus(t)

	g := m.Gauge("listeners_active", map[string]string{"query": "branch"})
	g.Set(2)
	g.Inc()
	g.Sub(1)
	assert.Equal(t, float64(2), g.Get())

	h := m.Histogram("request_duration_seconds", []float64{0.1, 1}, map[string]string{"path": "tickets"})
	h.Observe(0.5)
	h.ObserveDuration(time.Now())
	assert.Equal(t, uint64(2), h.GetCount())
	assert.GreaterOrEqual(t, h.GetSum(), 0.5)
}

func TestGetMetricsJSON(t *testing.T) {
	m := newPrometheus(t)
	m.Counter("notify_events_total", map[string]string{"type": "modified"}).Inc()

	data, err := m.GetMetrics()
	require.NoError(t, err)

	var values []MetricValue
	require.NoError(t, utils.Unmarshal(data, &values))
	require.Len(t, values, 1)
	assert.Equal(t, "test_notify_events_total", values[0].Name)
	assert.Equal(t, "counter", values[0].Type)
	assert.Equal(t, float64(1), values[0].Value)
	assert.Equal(t, "modified", values[0].Labels["type"])
}

func TestManagerDisabledYieldsNoop(t *testing.T) {
	cm, err := config.NewStaticManager(context.Background(), config.NewLoader().Defaults())
	require.NoError(t, err)

	m, err := NewManager(context.Background(), cm, logger.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &NoopMetrics{}, m)

	m.Counter("anything", nil).Inc()
	assert.Equal(t, float64(0), m.Counter("anything", nil).Get())
}

func TestLifecycle(t *testing.T) {
	m := newPrometheus(t)
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrServiceIsRunning)
	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), types.ErrServiceIsNotRunning)
}
