package metrics

import (
	"slices"
	"sync"
)

// Collector accumulates performance samples keyed by component. History is
// unbounded for the lifetime of the collector.
type Collector struct {
	mu      sync.RWMutex
	samples map[string][]PerformanceMetric
}

var (
	_ Sink       = (*Collector)(nil)
	_ Summarizer = (*Collector)(nil)
)

func NewCollector() *Collector {
	return &Collector{
		samples: make(map[string][]PerformanceMetric),
	}
}

// Add appends metric to the history of metric.Component.
func (c *Collector) Add(metric PerformanceMetric) {
	c.mu.Lock()
	c.samples[metric.Component] = append(c.samples[metric.Component], metric)
	c.mu.Unlock()
}

// Summary computes aggregates for every component with at least one sample.
// The result is freshly allocated and owned by the caller.
func (c *Collector) Summary() map[string]ComponentSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := make(map[string]ComponentSummary, len(c.samples))
	for component, samples := range c.samples {
		if len(samples) == 0 {
			continue
		}
		summary[component] = summarize(samples)
	}

	return summary
}

// Components returns the names of all components seen so far, sorted.
func (c *Collector) Components() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.samples))
	for name := range c.samples {
		names = append(names, name)
	}
	c.mu.RUnlock()

	slices.Sort(names)

	return names
}

// Count returns the number of samples recorded for component.
func (c *Collector) Count(component string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.samples[component])
}

func summarize(samples []PerformanceMetric) ComponentSummary {
	var (
		totalDuration float64
		successes     int
		errorCount    int
	)

	for i := range samples {
		totalDuration += samples[i].DurationMs
		errorCount += samples[i].ErrorCount
		if samples[i].Success {
			successes++
		}
	}

	total := len(samples)

	return ComponentSummary{
		TotalOperations: total,
		AvgDurationMs:   totalDuration / float64(total),
		SuccessRate:     float64(successes) / float64(total) * 100,
		TotalErrors:     errorCount,
	}
}
