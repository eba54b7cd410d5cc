package simulator

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts simulator traffic. A nil *Metrics records nothing.
type Metrics struct {
	Connections *prometheus.CounterVec // labels: result=served|dropped
	Frames      *prometheus.CounterVec // labels: command, result
	Devices     prometheus.Gauge
}

// NewMetrics registers and returns simulator metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuyalocal_sim",
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		}, []string{"result"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuyalocal_sim",
			Name:      "frames_total",
			Help:      "Frames received by command and result.",
		}, []string{"command", "result"}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tuyalocal_sim",
			Name:      "devices",
			Help:      "Number of simulated devices.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Frames, m.Devices)
	}
	return m
}

func (m *Metrics) connection(result string) {
	if m != nil {
		m.Connections.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) frame(command, result string) {
	if m != nil {
		m.Frames.WithLabelValues(command, result).Inc()
	}
}

func (m *Metrics) devices(n int) {
	if m != nil {
		m.Devices.Set(float64(n))
	}
}
