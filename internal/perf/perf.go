// Package perf times units of work and feeds their outcome into a metrics
// sink and an error recorder.
//
// Every call records exactly one PerformanceMetric. A failing call also
// records one error event and then hands the original failure back to the
// caller: errors are returned unchanged and panics are re-raised with the
// original value.
package perf

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	apperrors "codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/errtrack"
	"codeberg.org/mutker/opstrack/internal/logger"
	"codeberg.org/mutker/opstrack/internal/metrics"
	"github.com/google/uuid"
)

const bytesPerMB = 1 << 20

// Tracker wraps operations with timing and bookkeeping. It is safe for
// concurrent use as long as its sinks are.
type Tracker struct {
	metrics      metrics.Sink
	errors       errtrack.Recorder
	log          logger.Logger
	sampleMemory bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for per-operation events.
func WithLogger(log logger.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithMemorySampling makes every sample carry the heap growth observed across
// the call. Reading memory statistics briefly stops the world, so it is off
// by default and MemoryUsedMB is reported as 0.
func WithMemorySampling(enabled bool) Option {
	return func(t *Tracker) {
		t.sampleMemory = enabled
	}
}

func New(sink metrics.Sink, recorder errtrack.Recorder, opts ...Option) *Tracker {
	t := &Tracker{
		metrics: sink,
		errors:  recorder,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Run tracks an operation that produces no value.
func (t *Tracker) Run(ctx context.Context, component, operation string, fn func(context.Context) error) error {
	_, err := Track(ctx, t, component, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// Track runs fn, records its outcome and returns whatever fn returned.
func Track[T any](
	ctx context.Context,
	t *Tracker,
	component, operation string,
	fn func(context.Context) (T, error),
) (T, error) {
	call := t.begin(component, operation)

	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit: nothing to re-raise
			call.fail("runtime.Goexit", "goroutine exited during operation", nil)
			return
		}
		errType, message := describePanic(r)
		call.fail(errType, message, r)
		panic(r)
	}()

	result, err := fn(ctx)
	finished = true

	if err != nil {
		call.fail(typeName(err), err.Error(), err)
		return result, err
	}

	call.succeed()

	return result, nil
}

// call holds the state of one tracked invocation.
type call struct {
	t          *Tracker
	log        logger.Logger
	component  string
	operation  string
	start      time.Time
	heapBefore uint64
}

func (t *Tracker) begin(component, operation string) *call {
	c := &call{
		t:         t,
		log:       t.log.With("operation_id", uuid.NewString()),
		component: component,
		operation: operation,
	}
	if t.sampleMemory {
		c.heapBefore = heapAlloc()
	}
	c.start = time.Now()

	return c
}

func (c *call) metric(success bool, errorCount int) (metrics.PerformanceMetric, float64) {
	durationMs := float64(time.Since(c.start)) / float64(time.Millisecond)

	var memoryMB float64
	if c.t.sampleMemory {
		if after := heapAlloc(); after > c.heapBefore {
			memoryMB = float64(after-c.heapBefore) / bytesPerMB
		}
	}

	return metrics.PerformanceMetric{
		Component:    c.component,
		Operation:    c.operation,
		DurationMs:   durationMs,
		MemoryUsedMB: memoryMB,
		Success:      success,
		ErrorCount:   errorCount,
	}, durationMs
}

func (c *call) succeed() {
	m, durationMs := c.metric(true, 0)

	c.bookkeep(func() {
		c.t.metrics.Add(m)
	})

	c.log.Debug().
		Str("component", c.component).
		Str("operation", c.operation).
		Float64("duration_ms", durationMs).
		Msg("Operation completed successfully")
}

// fail records a failed sample and one error event. cause is only used for
// logging.
func (c *call) fail(errType, message string, cause any) {
	m, durationMs := c.metric(false, 1)

	c.bookkeep(func() {
		c.t.metrics.Add(m)
	})
	c.bookkeep(func() {
		c.t.errors.Record(errType, message, c.component)
	})

	ev := c.log.Error().
		Str("component", c.component).
		Str("operation", c.operation).
		Str("error_type", errType).
		Float64("duration_ms", durationMs)
	if err, ok := cause.(error); ok {
		ev.Err(err).Msg("Operation failed")
		return
	}
	ev.Str("error", message).Msg("Operation failed")
}

// bookkeep shields the caller's outcome from failures inside the sinks.
func (c *call) bookkeep(record func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().
				Str("component", c.component).
				Str("operation", c.operation).
				Str("panic", fmt.Sprint(r)).
				Msg("Failed to record operation outcome")
		}
	}()

	record()
}

// typeName classifies err: coded application errors by their code, anything
// else by its dynamic type.
func typeName(err error) string {
	var coded apperrors.Error
	if apperrors.As(err, &coded) {
		return string(coded.Code())
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

func describePanic(r any) (string, string) {
	if err, ok := r.(error); ok {
		return typeName(err), err.Error()
	}

	return strings.TrimPrefix(fmt.Sprintf("%T", r), "*"), fmt.Sprint(r)
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return ms.HeapAlloc
}
