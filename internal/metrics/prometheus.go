package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

const milliseconds = 1000

// PrometheusCollector exposes a Summarizer as Prometheus metrics computed at
// scrape time. Register it on a caller supplied registry.
type PrometheusCollector struct {
	source      Summarizer
	operations  *prom.Desc
	avgDuration *prom.Desc
	successRate *prom.Desc
	errors      *prom.Desc
}

var _ prom.Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector(namespace string, source Summarizer) *PrometheusCollector {
	labels := []string{"component"}

	return &PrometheusCollector{
		source: source,
		operations: prom.NewDesc(
			prom.BuildFQName(namespace, "", "operations_total"),
			"Operations recorded per component",
			labels, nil,
		),
		avgDuration: prom.NewDesc(
			prom.BuildFQName(namespace, "", "operation_duration_avg_seconds"),
			"Mean operation duration per component",
			labels, nil,
		),
		successRate: prom.NewDesc(
			prom.BuildFQName(namespace, "", "operation_success_percent"),
			"Share of successful operations per component",
			labels, nil,
		),
		errors: prom.NewDesc(
			prom.BuildFQName(namespace, "", "operation_errors_total"),
			"Sum of reported operation errors per component",
			labels, nil,
		),
	}
}

func (p *PrometheusCollector) Describe(ch chan<- *prom.Desc) {
	ch <- p.operations
	ch <- p.avgDuration
	ch <- p.successRate
	ch <- p.errors
}

// Collect sends one sample per component and descriptor. A component name
// Prometheus rejects, such as invalid UTF-8, becomes an invalid metric so
// Gather reports it as an error.
func (p *PrometheusCollector) Collect(ch chan<- prom.Metric) {
	for component, s := range p.source.Summary() {
		ch <- constMetric(p.operations, prom.CounterValue, float64(s.TotalOperations), component)
		ch <- constMetric(p.avgDuration, prom.GaugeValue, s.AvgDurationMs/milliseconds, component)
		ch <- constMetric(p.successRate, prom.GaugeValue, s.SuccessRate, component)
		ch <- constMetric(p.errors, prom.CounterValue, float64(s.TotalErrors), component)
	}
}

func constMetric(desc *prom.Desc, kind prom.ValueType, value float64, labels ...string) prom.Metric {
	m, err := prom.NewConstMetric(desc, kind, value, labels...)
	if err != nil {
		return prom.NewInvalidMetric(desc, err)
	}

	return m
}
