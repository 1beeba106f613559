package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitAdmittedTotal *prometheus.CounterVec
	RateLimitDeniedTotal   *prometheus.CounterVec
	RateLimitRemaining     *prometheus.GaugeVec
	RateLimitResetsTotal   *prometheus.CounterVec
}

// New registers the rate limit metrics on reg. Pass prometheus.NewRegistry()
// in tests to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitAdmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_ratelimit_admitted_total",
			Help: "Total number of chat operations admitted by the rate limiter",
		}, []string{"class"}),
		RateLimitDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_ratelimit_denied_total",
			Help: "Total number of chat operations denied by the rate limiter",
		}, []string{"class"}),
		RateLimitRemaining: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "petchat_ratelimit_remaining",
			Help: "Remaining quota in the current window, as of the last decision",
		}, []string{"class"}),
		RateLimitResetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "petchat_ratelimit_resets_total",
			Help: "Total number of manual limiter resets",
		}, []string{"class"}),
	}
}

func (m *Metrics) RecordDecision(class string, allowed bool, remaining int) {
	if allowed {
		m.RateLimitAdmittedTotal.WithLabelValues(class).Inc()
	} else {
		m.RateLimitDeniedTotal.WithLabelValues(class).Inc()
	}
	m.RateLimitRemaining.WithLabelValues(class).Set(float64(remaining))
}

func (m *Metrics) IncrementResets(class string) {
	m.RateLimitResetsTotal.WithLabelValues(class).Inc()
}
