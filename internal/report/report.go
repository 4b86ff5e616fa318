// Package report renders the performance and error summaries for operators.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/errtrack"
	"codeberg.org/mutker/opstrack/internal/logger"
	"codeberg.org/mutker/opstrack/internal/metrics"
	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Format selects how a Reporter renders summaries
type Format string

const (
	FormatTable      Format = "table"
	FormatLog        Format = "log"
	FormatPrometheus Format = "prometheus"
)

const timeLayout = "15:04:05.000"

// ParseFormat converts a configured format name to a Format
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatTable, FormatLog, FormatPrometheus:
		return f, nil
	default:
		return "", errors.New().WithMessage(errors.ErrInvalidArgument, "unknown report format").WithData(name)
	}
}

type Reporter struct {
	format   Format
	metrics  metrics.Summarizer
	errors   errtrack.Summarizer
	log      logger.Logger
	gatherer prom.Gatherer
}

type Option func(*Reporter)

// WithLogger sets the logger used by the log format.
func WithLogger(log logger.Logger) Option {
	return func(r *Reporter) {
		if log != nil {
			r.log = log
		}
	}
}

// WithGatherer sets the source for the prometheus format.
func WithGatherer(g prom.Gatherer) Option {
	return func(r *Reporter) {
		r.gatherer = g
	}
}

func New(format Format, m metrics.Summarizer, e errtrack.Summarizer, opts ...Option) (*Reporter, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}

	r := &Reporter{
		format:  format,
		metrics: m,
		errors:  e,
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.format == FormatPrometheus && r.gatherer == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "prometheus format needs a gatherer")
	}

	return r, nil
}

func (r *Reporter) Format() Format {
	return r.format
}

// Render writes one report. The log format emits through the logger and
// ignores w.
func (r *Reporter) Render(w io.Writer) error {
	errFactory := errors.New()

	var err error
	switch r.format {
	case FormatTable:
		err = r.renderTable(w)
	case FormatLog:
		r.renderLog()
	case FormatPrometheus:
		err = writePrometheus(w, r.gatherer)
	}
	if err != nil {
		return errFactory.Wrap(errors.ErrReporting, err)
	}

	return nil
}

func (r *Reporter) renderTable(w io.Writer) error {
	perf := r.metrics.Summary()
	errs := r.errors.Summary()

	if _, err := fmt.Fprintf(w, "Performance (%d components)\n", len(perf)); err != nil {
		return err
	}
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
	t.AddHeader("Component", "Operations", "Avg ms", "Success %", "Errors")
	for _, name := range sortedKeys(perf) {
		s := perf[name]
		t.AddLine(name,
			humanize.Comma(int64(s.TotalOperations)),
			humanize.CommafWithDigits(s.AvgDurationMs, 3),
			humanize.FtoaWithDigits(s.SuccessRate, 2),
			humanize.Comma(int64(s.TotalErrors)))
	}
	t.Print()

	if _, err := fmt.Fprintf(w, "\nErrors: %s total\n", humanize.Comma(int64(errs.TotalErrors))); err != nil {
		return err
	}
	if len(errs.ErrorTypes) > 0 {
		t = tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
		t.AddHeader("Type", "Count")
		for _, name := range sortedKeys(errs.ErrorTypes) {
			t.AddLine(name, humanize.Comma(int64(errs.ErrorTypes[name])))
		}
		t.Print()
	}

	if len(errs.RecentErrors) > 0 {
		if _, err := fmt.Fprintln(w, "\nRecent errors"); err != nil {
			return err
		}
		t = tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
		t.AddHeader("Time", "Component", "Type", "Message")
		for _, e := range errs.RecentErrors {
			t.AddLine(e.Timestamp.Format(timeLayout), e.Component, e.Type, e.Message)
		}
		t.Print()
	}

	return nil
}

func (r *Reporter) renderLog() {
	perf := r.metrics.Summary()
	for _, name := range sortedKeys(perf) {
		s := perf[name]
		r.log.Info().
			Str("component", name).
			Int("total_operations", s.TotalOperations).
			Float64("avg_duration_ms", s.AvgDurationMs).
			Float64("success_rate", s.SuccessRate).
			Int("total_errors", s.TotalErrors).
			Msg("Performance summary")
	}

	errs := r.errors.Summary()
	r.log.Info().
		Int("total_errors", errs.TotalErrors).
		Interface("error_types", errs.ErrorTypes).
		Int("recent_errors", len(errs.RecentErrors)).
		Msg("Error summary")

	for _, e := range errs.RecentErrors {
		r.log.Debug().
			Time("timestamp", e.Timestamp).
			Str("component", e.Component).
			Str("error_type", e.Type).
			Str("error_message", e.Message).
			Msg("Recent error")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
