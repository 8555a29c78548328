// internal/ipc/metrics.go
package ipc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts traffic crossing a transport. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Messages  *prometheus.CounterVec
	RoundTrip *prometheus.HistogramVec
	Failures  *prometheus.CounterVec
}

// NewMetrics registers the transport collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guestwin_ipc_messages_total",
				Help: "Messages crossing the transport, by direction, kind and channel",
			},
			[]string{"direction", "kind", "channel"},
		),
		RoundTrip: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guestwin_ipc_round_trip_seconds",
				Help:    "Latency of blocking round-trips",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"channel"},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guestwin_ipc_failures_total",
				Help: "Failed sends and round-trips",
			},
			[]string{"channel"},
		),
	}
}

func (m *Metrics) sent(kind frameKind, channel string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("out", string(kind), metricLabel(channel)).Inc()
}

func (m *Metrics) received(kind frameKind, channel string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues("in", string(kind), metricLabel(channel)).Inc()
}

func (m *Metrics) observeRoundTrip(channel string, started time.Time, err error) {
	if m == nil {
		return
	}
	label := metricLabel(channel)
	m.RoundTrip.WithLabelValues(label).Observe(time.Since(started).Seconds())
	if err != nil {
		m.Failures.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) failed(channel string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(metricLabel(channel)).Inc()
}
