package providers

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records provider call outcomes and latency.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers provider metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "provider_requests_total",
			Help:      "Provider calls by provider, purpose and outcome (success or error kind).",
		}, []string{"provider", "purpose", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chat_relay",
			Name:      "provider_request_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider", "purpose"}),
	}
}

// Observe records one call.
func (m *Metrics) Observe(provider, purpose string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	m.requests.WithLabelValues(provider, purpose, outcome).Inc()
	m.latency.WithLabelValues(provider, purpose).Observe(elapsed.Seconds())
}

type instrumented struct {
	Client
	purpose string
	metrics *Metrics
}

// Instrument wraps a client so each call is recorded under purpose ("chat" or "title").
// Calls short-circuited for a missing credential are not recorded: nothing was sent.
func Instrument(c Client, purpose string, m *Metrics) Client {
	if m == nil {
		return c
	}
	return &instrumented{Client: c, purpose: purpose, metrics: m}
}

func (i *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.Client.Complete(ctx, req)

	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindMissingCredential {
		return text, err
	}
	i.metrics.Observe(i.Client.Name(), i.purpose, err, time.Since(start))
	return text, err
}
