package deepgram

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for sessions and one-shot requests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of currently open streaming sessions",
			},
			[]string{"mode"},
		),
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of streaming sessions started",
			},
			[]string{"mode", "status"}, // status: ok, error
		),
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_sent_total",
				Help:      "Total number of audio frames sent to the remote",
			},
			[]string{"mode"},
		),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Total number of captured frames that were not sent",
			},
			[]string{"mode", "reason"}, // reason: suppressed, queue_full, not_open, encoding
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of one-shot API requests",
			},
			[]string{"kind", "status"}, // status: ok, error, aborted
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of one-shot API requests in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
	}
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsActive,
		m.sessionsTotal,
		m.framesSent,
		m.framesDropped,
		m.requestsTotal,
		m.requestDuration,
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) sessionOpened(mode string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(mode).Inc()
	m.sessionsTotal.WithLabelValues(mode, "ok").Inc()
}

func (m *Metrics) sessionFailed(mode string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(mode, "error").Inc()
}

func (m *Metrics) sessionClosed(mode string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(mode).Dec()
}

func (m *Metrics) frameSent(mode string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(mode).Inc()
}

func (m *Metrics) frameDropped(mode, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(mode, reason).Inc()
}

func (m *Metrics) observeRequest(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrRequestAborted):
		status = "aborted"
	case err != nil:
		status = "error"
	}
	m.requestsTotal.WithLabelValues(kind, status).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
