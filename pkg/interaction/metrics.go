package interaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hwcp-protocol/hwcp-go/pkg/wire"
)

// Metrics collects request counters for a Server. A nil *Metrics records
// nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	decodeErrors prometheus.Counter
	rateLimited  prometheus.Counter
	sessions     prometheus.Gauge
}

// NewMetrics registers the HWCP server metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hwcp",
			Name:      "requests_total",
			Help:      "Requests served, by command, access target and reply ack.",
		}, []string{"command", "access", "ack"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hwcp",
			Name:      "request_duration_seconds",
			Help:      "Time from request decode to reply, by command.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"command"}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hwcp",
			Name:      "decode_errors_total",
			Help:      "Frames that could not be decoded as messages.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hwcp",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the per-connection rate limit.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hwcp",
			Name:      "sessions",
			Help:      "Connections currently being served.",
		}),
	}
}

func (m *Metrics) observe(req wire.Message, ack wire.AckState, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(req.Command().String(), req.Access().String(), ack.String()).Inc()
	m.duration.WithLabelValues(req.Command().String()).Observe(elapsed.Seconds())
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) limited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionEnded() {
	if m != nil {
		m.sessions.Dec()
	}
}
