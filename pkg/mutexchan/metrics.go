package mutexchan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mutexchan"

// Metrics holds the Prometheus collectors of a process.
type Metrics struct {
	bits       *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	rendezvous *prometheus.HistogramVec
	state      *prometheus.GaugeVec
	misses     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bits_total",
			Help:      "Bits set or sampled on the primitive.",
		}, []string{"role", "bit"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_total",
			Help:      "Payload bytes transmitted or decoded.",
		}, []string{"role"}),
		rendezvous: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rendezvous_seconds",
			Help:      "Time from opening the channel to detecting the peer.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"role"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_state",
			Help:      "Current session state (0 idle, 1 rendezvous, 2 streaming, 3 done, 4 aborted).",
		}, []string{"role"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquire_misses_total",
			Help:      "0 bits the Sender could not set because the primitive was held elsewhere.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bits, m.bytes, m.rendezvous, m.state, m.misses)
	}
	return m
}

func (m *Metrics) addBit(role Role, bit bool) {
	v := "0"
	if bit {
		v = "1"
	}
	m.bits.WithLabelValues(string(role), v).Inc()
}

func (m *Metrics) addByte(role Role) {
	m.bytes.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) observeRendezvous(role Role, d time.Duration) {
	m.rendezvous.WithLabelValues(string(role)).Observe(d.Seconds())
}

func (m *Metrics) setState(role Role, s State) {
	m.state.WithLabelValues(string(role)).Set(float64(s))
}

func (m *Metrics) miss() {
	m.misses.Inc()
}
