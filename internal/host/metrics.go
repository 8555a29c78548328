// internal/host/metrics.go
package host

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the window table. A nil *Metrics records nothing.
type Metrics struct {
	Windows prometheus.Gauge
	Opens   *prometheus.CounterVec
}

// NewMetrics registers the host collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Windows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "guestwin_host_windows",
			Help: "Windows currently open on the host",
		}),
		Opens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guestwin_host_opens_total",
			Help: "Window open requests, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) setWindows(n int) {
	if m == nil {
		return
	}
	m.Windows.Set(float64(n))
}

func (m *Metrics) opened(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "refused"
	}
	m.Opens.WithLabelValues(result).Inc()
}
