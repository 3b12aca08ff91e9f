// Package metrics holds the Prometheus collectors for the lumen client and
// relay. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "lumen"

	// Client.
	client                = "client"
	clientWriteTimeMetric = "write_time"
	clientWritesMetric    = "writes_total"
	clientFailuresMetric  = "write_failures_total"
	clientArchivedMetric  = "archived_payloads_total"

	// Relay.
	relay                  = "relay"
	relayPollTimeMetric    = "poll_time"
	relayPollErrorsMetric  = "poll_errors_total"
	relayEventsMetric      = "events_ingested_total"
	relayDuplicatesMetric  = "events_duplicate_total"
	relayCursorMetric      = "cursor_block"
	relaySubscribersMetric = "stream_subscribers"
)

// Metrics manages the metrics for lumen.
type Metrics struct {
	clientWriteTime prometheus.Histogram
	clientWrites    prometheus.Counter
	clientFailures  prometheus.Counter
	clientArchived  prometheus.Counter

	relayPollTime    prometheus.Histogram
	relayPollErrors  prometheus.Counter
	relayEvents      prometheus.Counter
	relayDuplicates  prometheus.Counter
	relayCursor      prometheus.Gauge
	relaySubscribers prometheus.Gauge
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		clientWriteTime: newHistogram(
			client, clientWriteTimeMetric,
			"The time (in seconds) from canonicalization to ledger acceptance of a context write",
		),
		clientWrites: newCounter(
			client, clientWritesMetric,
			"The number of context writes accepted by the ledger",
		),
		clientFailures: newCounter(
			client, clientFailuresMetric,
			"The number of context writes that failed",
		),
		clientArchived: newCounter(
			client, clientArchivedMetric,
			"The number of canonical payloads stored in the content-addressed archive",
		),
		relayPollTime: newHistogram(
			relay, relayPollTimeMetric,
			"The time (in seconds) that it takes to poll the kernel for new context events",
		),
		relayPollErrors: newCounter(
			relay, relayPollErrorsMetric,
			"The number of failed poll attempts",
		),
		relayEvents: newCounter(
			relay, relayEventsMetric,
			"The number of new context events stored by the relay",
		),
		relayDuplicates: newCounter(
			relay, relayDuplicatesMetric,
			"The number of context events skipped because they were already stored",
		),
		relayCursor: newGauge(
			relay, relayCursorMetric,
			"The next block the relay will poll from",
		),
		relaySubscribers: newGauge(
			relay, relaySubscribersMetric,
			"The number of connected stream subscribers",
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.clientWriteTime,
			m.clientWrites,
			m.clientFailures,
			m.clientArchived,
			m.relayPollTime,
			m.relayPollErrors,
			m.relayEvents,
			m.relayDuplicates,
			m.relayCursor,
			m.relaySubscribers,
		)
	}

	return m
}

// WriteTime records the duration of a successful write.
func (m *Metrics) WriteTime(value time.Duration) {
	if m == nil {
		return
	}
	m.clientWriteTime.Observe(value.Seconds())
	m.clientWrites.Inc()
}

// WriteFailed counts a failed write.
func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.clientFailures.Inc()
}

// PayloadArchived counts a payload stored in the archive.
func (m *Metrics) PayloadArchived() {
	if m == nil {
		return
	}
	m.clientArchived.Inc()
}

// PollTime records the duration of one poll pass.
func (m *Metrics) PollTime(value time.Duration) {
	if m == nil {
		return
	}
	m.relayPollTime.Observe(value.Seconds())
}

// PollFailed counts a failed poll pass.
func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.relayPollErrors.Inc()
}

// EventIngested counts a stored event, or a duplicate when inserted is false.
func (m *Metrics) EventIngested(inserted bool) {
	if m == nil {
		return
	}
	if inserted {
		m.relayEvents.Inc()
	} else {
		m.relayDuplicates.Inc()
	}
}

// Cursor records the relay cursor.
func (m *Metrics) Cursor(block uint64) {
	if m == nil {
		return
	}
	m.relayCursor.Set(float64(block))
}

// Subscribers records the number of stream subscribers.
func (m *Metrics) Subscribers(n int) {
	if m == nil {
		return
	}
	m.relaySubscribers.Set(float64(n))
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newHistogram(subsystem, name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}
