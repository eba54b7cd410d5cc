package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange results recorded by Metrics
const (
	ResultOK           = "ok"
	ResultConnectError = "connect_error"
	ResultIOError      = "io_error"
	ResultCanceled     = "canceled"
)

// Metrics holds transport counters. A nil *Metrics records nothing.
type Metrics struct {
	DialAttempts     *prometheus.CounterVec // labels: result=ok|error
	Exchanges        *prometheus.CounterVec // labels: result
	ExchangeDuration prometheus.Histogram
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
}

// NewMetrics registers and returns transport metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuyalocal",
			Name:      "dial_attempts_total",
			Help:      "TCP connect attempts to devices.",
		}, []string{"result"}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuyalocal",
			Name:      "exchanges_total",
			Help:      "Request/response exchanges by result.",
		}, []string{"result"}),
		ExchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tuyalocal",
			Name:      "exchange_duration_seconds",
			Help:      "Time from first dial to first response byte.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuyalocal",
			Name:      "bytes_sent_total",
			Help:      "Frame bytes written to devices.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tuyalocal",
			Name:      "bytes_received_total",
			Help:      "Response bytes read from devices.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DialAttempts, m.Exchanges, m.ExchangeDuration, m.BytesSent, m.BytesReceived)
	}
	return m
}

func (m *Metrics) observeDial(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.DialAttempts.WithLabelValues("error").Inc()
		return
	}
	m.DialAttempts.WithLabelValues("ok").Inc()
}

func (m *Metrics) observeExchange(result string, started time.Time) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(result).Inc()
	m.ExchangeDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) addSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) addReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesReceived.Add(float64(n))
}
