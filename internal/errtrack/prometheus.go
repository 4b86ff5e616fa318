package errtrack

import (
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes a Tracker's counts and queue depth at scrape time.
type PrometheusCollector struct {
	tracker *Tracker
	byType  *prom.Desc
	history *prom.Desc
}

var _ prom.Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector(namespace string, tracker *Tracker) *PrometheusCollector {
	return &PrometheusCollector{
		tracker: tracker,
		byType: prom.NewDesc(
			prom.BuildFQName(namespace, "", "errors_total"),
			"Errors recorded since start by error type",
			[]string{"type"}, nil,
		),
		history: prom.NewDesc(
			prom.BuildFQName(namespace, "", "error_history_entries"),
			"Entries currently held in the recent error history",
			nil, prom.Labels{"max_history": strconv.Itoa(tracker.MaxHistory())},
		),
	}
}

func (p *PrometheusCollector) Describe(ch chan<- *prom.Desc) {
	ch <- p.byType
	ch <- p.history
}

func (p *PrometheusCollector) Collect(ch chan<- prom.Metric) {
	for errType, n := range p.tracker.Summary().ErrorTypes {
		m, err := prom.NewConstMetric(p.byType, prom.CounterValue, float64(n), errType)
		if err != nil {
			// error types are caller supplied and may not be valid label values
			m = prom.NewInvalidMetric(p.byType, err)
		}
		ch <- m
	}
	ch <- prom.MustNewConstMetric(p.history, prom.GaugeValue, float64(p.tracker.Len()))
}
