package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/errtrack"
	"codeberg.org/mutker/opstrack/internal/logger"
	"codeberg.org/mutker/opstrack/internal/metrics"
	"codeberg.org/mutker/opstrack/internal/report"
	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 5, 1, 12, 30, 15, 0, time.UTC)
	return func() time.Time { return ts }
}

func populated() (*metrics.Collector, *errtrack.Tracker) {
	collector := metrics.NewCollector()
	collector.Add(metrics.PerformanceMetric{Component: "Calculator", Operation: "Add", DurationMs: 2, Success: true})
	collector.Add(metrics.PerformanceMetric{Component: "Calculator", Operation: "Divide", DurationMs: 4, Success: false, ErrorCount: 1})
	collector.Add(metrics.PerformanceMetric{Component: "Auth", Operation: "Login", DurationMs: 1500, Success: true})

	tracker := errtrack.New(10, errtrack.WithClock(fixedClock()))
	tracker.Record("division_by_zero", "cannot divide by zero", "Calculator")

	return collector, tracker
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"table", "LOG", "prometheus"} {
		f, err := report.ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), string(f))
	}

	_, err := report.ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestNewPrometheusNeedsGatherer(t *testing.T) {
	collector, tracker := populated()

	_, err := report.New(report.FormatPrometheus, collector, tracker)
	require.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	collector, tracker := populated()
	r, err := report.New(report.FormatTable, collector, tracker)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "Performance (2 components)")
	assert.Contains(t, out, "Component")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "Errors: 1 total")
	assert.Contains(t, out, "division_by_zero")
	assert.Contains(t, out, "12:30:15.000")
	assert.Contains(t, out, "cannot divide by zero")

	// components are listed alphabetically
	assert.Less(t, strings.Index(out, "Auth"), strings.Index(out, "Calculator"))
}

func TestRenderTableEmpty(t *testing.T) {
	r, err := report.New(report.FormatTable, metrics.NewCollector(), errtrack.New(errtrack.DefaultMaxHistory))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Contains(t, buf.String(), "Performance (0 components)")
	assert.Contains(t, buf.String(), "Errors: 0 total")
	assert.NotContains(t, buf.String(), "Recent errors")
}

func TestRenderLog(t *testing.T) {
	collector, tracker := populated()

	var buf bytes.Buffer
	log := logger.New(&buf, logger.DebugLevel)
	r, err := report.New(report.FormatLog, collector, tracker, report.WithLogger(log))
	require.NoError(t, err)

	require.NoError(t, r.Render(nil))

	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 4)

	assert.Equal(t, "Auth", events[0]["component"])
	assert.Equal(t, "Calculator", events[1]["component"])
	assert.InDelta(t, 50.0, events[1]["success_rate"], 0.001)
	assert.InDelta(t, 3.0, events[1]["avg_duration_ms"], 0.001)

	assert.Equal(t, "Error summary", events[2]["message"])
	assert.InDelta(t, 1, events[2]["total_errors"], 0)

	assert.Equal(t, "Recent error", events[3]["message"])
	assert.Equal(t, "division_by_zero", events[3]["error_type"])
}

func TestRenderPrometheus(t *testing.T) {
	collector, tracker := populated()
	reg, err := report.NewRegistry("opstrack", collector, tracker)
	require.NoError(t, err)

	r, err := report.New(report.FormatPrometheus, collector, tracker, report.WithGatherer(reg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE opstrack_operations_total counter")
	assert.Contains(t, out, `opstrack_operations_total{component="Calculator"} 2`)
	assert.Contains(t, out, `opstrack_operation_success_percent{component="Calculator"} 50`)
	assert.Contains(t, out, `opstrack_errors_total{type="division_by_zero"} 1`)
	assert.Contains(t, out, `opstrack_error_history_entries{max_history="10"} 1`)
}

func TestRenderPrometheusGatherFailure(t *testing.T) {
	collector, tracker := populated()
	failing := prom.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, assert.AnError
	})

	r, err := report.New(report.FormatPrometheus, collector, tracker, report.WithGatherer(failing))
	require.NoError(t, err)

	err = r.Render(&bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReporting))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRenderPrometheusInvalidLabel(t *testing.T) {
	collector, tracker := populated()
	collector.Add(metrics.PerformanceMetric{Component: "bad\xff", Operation: "Add", DurationMs: 1, Success: true})

	reg, err := report.NewRegistry("opstrack", collector, tracker)
	require.NoError(t, err)
	r, err := report.New(report.FormatPrometheus, collector, tracker, report.WithGatherer(reg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NotPanics(t, func() {
		err = r.Render(&buf)
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReporting))
	assert.Contains(t, buf.String(), `opstrack_operations_total{component="Calculator"} 2`)
}
