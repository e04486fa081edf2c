package infra

import (
	"github.com/prometheus/client_golang/prometheus"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// PromRecorder implements domain.Recorder on a Prometheus registry.
type PromRecorder struct {
	decisions *prometheus.CounterVec
	rejected  prometheus.Counter
	latency   *prometheus.HistogramVec
}

func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	r := &PromRecorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Rate limit decisions by limit class and result.",
		}, []string{"class", "result"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_concurrency_rejected_total",
			Help: "Requests rejected by the concurrency cap.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_ratelimit_decision_seconds",
			Help:    "Latency of rate limit decisions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
	}
	reg.MustRegister(r.decisions, r.rejected, r.latency)
	return r
}

func (r *PromRecorder) Add(name string, value float64, tags map[string]string) {
	switch name {
	case domain.MetricDecision:
		r.decisions.With(prometheus.Labels{
			"class":  tags["class"],
			"result": tags["result"],
		}).Add(value)
	case MetricConcurrencyRejected:
		r.rejected.Add(value)
	}
}

func (r *PromRecorder) Observe(name string, value float64, tags map[string]string) {
	if name != domain.MetricLatency {
		return
	}
	r.latency.With(prometheus.Labels{"class": tags["class"]}).Observe(value)
}

// MetricConcurrencyRejected counts requests turned away by the concurrency
// middleware.
const MetricConcurrencyRejected = "concurrency.rejected"
