package meter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ineyio/imgguard"
)

// PrometheusMeter exports moderation events as Prometheus metrics.
type PrometheusMeter struct {
	routes       *prometheus.CounterVec
	quotaDenials *prometheus.CounterVec
	results      *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	usageErrors  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

var _ imgguard.Meter = (*PrometheusMeter)(nil)

// NewPrometheusMeter creates the metrics under namespace and registers them
// with reg.
func NewPrometheusMeter(namespace string, reg prometheus.Registerer) (*PrometheusMeter, error) {
	m := &PrometheusMeter{
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Provider selections, by provider and whether the caller named it.",
		}, []string{"provider", "requested"}),
		quotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Providers skipped or rejected by the local quota, by exhausted period.",
		}, []string{"provider", "period"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_results_total",
			Help:      "Provider invocations, by outcome and error kind.",
		}, []string{"provider", "outcome", "kind"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts produced, by reason.",
		}, []string{"provider", "reason"}),
		usageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_record_errors_total",
			Help:      "Verdicts whose usage could not be recorded.",
		}, []string{"provider"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Provider call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	for _, c := range []prometheus.Collector{m.routes, m.quotaDenials, m.results, m.verdicts, m.usageErrors, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMeter) OnRoute(e imgguard.RouteEvent) {
	m.routes.WithLabelValues(e.Provider, strconv.FormatBool(e.Requested)).Inc()
}

func (m *PrometheusMeter) OnQuotaDenied(e imgguard.QuotaEvent) {
	m.quotaDenials.WithLabelValues(e.Provider, string(e.Period)).Inc()
}

func (m *PrometheusMeter) OnResult(e imgguard.ResultEvent) {
	m.duration.WithLabelValues(e.Provider).Observe(e.Duration.Seconds())

	if !e.Success {
		m.results.WithLabelValues(e.Provider, "error", string(imgguard.KindOf(e.Error))).Inc()
		return
	}
	m.results.WithLabelValues(e.Provider, "success", "none").Inc()
	m.verdicts.WithLabelValues(e.Provider, string(e.Verdict.Reason)).Inc()
	if e.UsageErr != nil {
		m.usageErrors.WithLabelValues(e.Provider).Inc()
	}
}
