package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	require.NotNil(t, m)

	t.Run("Client", func(t *testing.T) {
		require.NotPanics(t, func() { m.WriteTime(time.Second) })
		require.NotPanics(t, func() { m.WriteFailed() })
		require.NotPanics(t, func() { m.PayloadArchived() })
		require.Equal(t, float64(1), testutil.ToFloat64(m.clientWrites))
	})

	t.Run("Relay", func(t *testing.T) {
		require.NotPanics(t, func() { m.PollTime(time.Second) })
		require.NotPanics(t, func() { m.PollFailed() })
		m.EventIngested(true)
		m.EventIngested(true)
		m.EventIngested(false)
		m.Cursor(1234)
		m.Subscribers(3)

		require.Equal(t, float64(2), testutil.ToFloat64(m.relayEvents))
		require.Equal(t, float64(1), testutil.ToFloat64(m.relayDuplicates))
		require.Equal(t, float64(1234), testutil.ToFloat64(m.relayCursor))
		require.Equal(t, float64(3), testutil.ToFloat64(m.relaySubscribers))
	})
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.WriteTime(time.Second)
		m.WriteFailed()
		m.PayloadArchived()
		m.PollTime(time.Second)
		m.PollFailed()
		m.EventIngested(true)
		m.Cursor(1)
		m.Subscribers(1)
	})
}

func TestNewCounter(t *testing.T) {
	require.NotNil(t, newCounter("client", "metric_name", "Some help"))
}

func TestNewHistogram(t *testing.T) {
	require.NotNil(t, newHistogram("client", "metric_name", "Some help"))
}

func TestNewGauge(t *testing.T) {
	require.NotNil(t, newGauge("relay", "metric_name", "Some help"))
}
