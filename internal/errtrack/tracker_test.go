package errtrack_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/opstrack/internal/errtrack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func messages(entries []errtrack.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestRecordAddsToHistory(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	tracker.Record("TestException", "Test error message", "TestComponent")

	summary := tracker.Summary()
	assert.Equal(t, 1, summary.TotalErrors)
	require.Len(t, summary.RecentErrors, 1)
	assert.Equal(t, "TestException", summary.RecentErrors[0].Type)
	assert.Equal(t, "Test error message", summary.RecentErrors[0].Message)
	assert.Equal(t, "TestComponent", summary.RecentErrors[0].Component)
}

func TestRecordCountsByType(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	tracker.Record("ArgumentException", "bad arg", "C1")
	tracker.Record("ArgumentException", "bad arg 2", "C2")
	tracker.Record("NullReferenceException", "npe", "C3")

	summary := tracker.Summary()
	assert.Equal(t, map[string]int{"ArgumentException": 2, "NullReferenceException": 1}, summary.ErrorTypes)
	assert.Equal(t, 3, summary.TotalErrors)
}

func TestRecordBoundsHistory(t *testing.T) {
	tracker := errtrack.New(5)

	for i := range 10 {
		tracker.Record("TestException", fmt.Sprintf("Error %d", i), "TestComponent")
		assert.LessOrEqual(t, tracker.Len(), 5)
	}

	summary := tracker.Summary()
	assert.Equal(t, 5, tracker.Len())
	assert.Equal(t, 10, summary.TotalErrors)
	assert.Equal(t,
		[]string{"Error 5", "Error 6", "Error 7", "Error 8", "Error 9"},
		messages(summary.RecentErrors))
}

func TestSummaryKeepsOnlyFiveMostRecent(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	for i := range 10 {
		tracker.Record("TestException", fmt.Sprintf("Error %d", i), "TestComponent")
	}

	summary := tracker.Summary()
	assert.Equal(t, 10, tracker.Len())
	assert.Equal(t,
		[]string{"Error 5", "Error 6", "Error 7", "Error 8", "Error 9"},
		messages(summary.RecentErrors))
}

func TestSummaryRecentOrderAndTimestamps(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	tracker := errtrack.New(errtrack.DefaultMaxHistory, errtrack.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	tracker.Record("Exception1", "First error", "Component1")
	tracker.Record("Exception2", "Second error", "Component2")

	recent := tracker.Summary().RecentErrors
	require.Len(t, recent, 2)
	assert.Equal(t, "First error", recent[0].Message)
	assert.Equal(t, "Second error", recent[1].Message)
	assert.True(t, recent[0].Timestamp.Before(recent[1].Timestamp))
	assert.Equal(t, base.Add(time.Second), recent[0].Timestamp)
}

func TestSummaryFewerThanLimit(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	tracker.Record("A", "one", "C")
	tracker.Record("B", "two", "C")
	tracker.Record("A", "three", "C")

	assert.Equal(t, []string{"one", "two", "three"}, messages(tracker.Summary().RecentErrors))
}

func TestSummaryWithNoErrors(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	summary := tracker.Summary()
	assert.Zero(t, summary.TotalErrors)
	assert.NotNil(t, summary.ErrorTypes)
	assert.Empty(t, summary.ErrorTypes)
	assert.NotNil(t, summary.RecentErrors)
	assert.Empty(t, summary.RecentErrors)
}

func TestZeroMaxHistory(t *testing.T) {
	tracker := errtrack.New(0)

	tracker.Record("IOException", "disk", "Storage")
	tracker.Record("IOException", "disk again", "Storage")

	summary := tracker.Summary()
	assert.Empty(t, summary.RecentErrors)
	assert.Zero(t, tracker.Len())
	assert.Equal(t, 2, summary.TotalErrors)
	assert.Equal(t, map[string]int{"IOException": 2}, summary.ErrorTypes)
}

func TestNegativeMaxHistoryBehavesAsZero(t *testing.T) {
	tracker := errtrack.New(-4)

	tracker.Record("X", "y", "z")

	assert.Zero(t, tracker.MaxHistory())
	assert.Empty(t, tracker.Summary().RecentErrors)
	assert.Equal(t, 1, tracker.Summary().TotalErrors)
}

func TestSummaryCountsAreACopy(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)
	tracker.Record("A", "m", "C")

	summary := tracker.Summary()
	summary.ErrorTypes["A"] = 99
	summary.RecentErrors[0].Message = "changed"

	again := tracker.Summary()
	assert.Equal(t, 1, again.ErrorTypes["A"])
	assert.Equal(t, "m", again.RecentErrors[0].Message)
}

func TestRecordConcurrent(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	var g errgroup.Group
	for i := range 10 {
		g.Go(func() error {
			tracker.Record("TestException", fmt.Sprintf("Error %d", i), "TestComponent")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	summary := tracker.Summary()
	assert.Equal(t, 10, summary.TotalErrors)
	assert.Equal(t, 10, tracker.Len())
}

func TestRecordConcurrentNeverExceedsBound(t *testing.T) {
	const maxHistory = 7
	tracker := errtrack.New(maxHistory)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			assert.LessOrEqual(t, tracker.Len(), maxHistory)
			assert.LessOrEqual(t, len(tracker.Summary().RecentErrors), errtrack.RecentErrorsLimit)
		}
	}()

	var g errgroup.Group
	for w := range 16 {
		g.Go(func() error {
			for i := range 100 {
				tracker.Record(fmt.Sprintf("Type%d", w%4), fmt.Sprintf("w%d-%d", w, i), "Worker")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(stop)
	wg.Wait()

	summary := tracker.Summary()
	assert.Equal(t, 1600, summary.TotalErrors)
	assert.Len(t, summary.ErrorTypes, 4)
	assert.Equal(t, maxHistory, tracker.Len())
	assert.Len(t, summary.RecentErrors, errtrack.RecentErrorsLimit)
}

func TestSummaryNeverShowsMoreEntriesThanErrors(t *testing.T) {
	tracker := errtrack.New(errtrack.DefaultMaxHistory)

	done := make(chan struct{})
	var g errgroup.Group
	for w := range 4 {
		g.Go(func() error {
			for i := range 2000 {
				tracker.Record("TestException", fmt.Sprintf("worker %d error %d", w, i), "TestComponent")
			}
			return nil
		})
	}

	violations := 0
	reader := make(chan struct{})
	go func() {
		defer close(reader)
		for {
			select {
			case <-done:
				return
			default:
			}
			s := tracker.Summary()
			if len(s.RecentErrors) > s.TotalErrors {
				violations++
			}
		}
	}()

	require.NoError(t, g.Wait())
	close(done)
	<-reader

	assert.Zero(t, violations)
	assert.Equal(t, 8000, tracker.Summary().TotalErrors)
}
