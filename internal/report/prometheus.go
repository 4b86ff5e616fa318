package report

import (
	"io"

	"codeberg.org/mutker/opstrack/internal/errtrack"
	"codeberg.org/mutker/opstrack/internal/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// NewRegistry returns a registry exposing both summaries under namespace.
func NewRegistry(namespace string, m metrics.Summarizer, tracker *errtrack.Tracker) (*prom.Registry, error) {
	reg := prom.NewRegistry()

	if err := reg.Register(metrics.NewPrometheusCollector(namespace, m)); err != nil {
		return nil, err
	}
	if err := reg.Register(errtrack.NewPrometheusCollector(namespace, tracker)); err != nil {
		return nil, err
	}

	return reg, nil
}

func writePrometheus(w io.Writer, g prom.Gatherer) error {
	// Gather returns the valid families alongside any error
	families, gatherErr := g.Gather()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}

	return gatherErr
}
