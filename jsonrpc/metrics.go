package jsonrpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded by Metrics.
const (
	OutcomeOK        = "ok"
	OutcomeFault     = "fault"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

// unknownMethod labels calls whose path did not resolve, so that arbitrary
// client input cannot grow the label space.
const unknownMethod = "<unknown>"

// Metrics records dispatch outcomes. A nil *Metrics records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the dispatcher collectors with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "JSON-RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from dispatch to settled result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		if err := reg.Register(m.calls); err != nil {
			return nil, err
		}
		if err := reg.Register(m.duration); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(method string, resolved bool, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if !resolved {
		method = unknownMethod
	}
	outcome := OutcomeOK
	if err != nil {
		switch f, ok := AsFault(err); {
		case !ok:
			outcome = OutcomeAbandoned
		case f.kind == ErrInternal:
			outcome = OutcomeFailure
		default:
			outcome = OutcomeFault
		}
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
