package metrics

// Sink receives completed operation samples.
type Sink interface {
	Add(metric PerformanceMetric)
}

// Summarizer produces per-component aggregates on demand.
type Summarizer interface {
	Summary() map[string]ComponentSummary
}

// PerformanceMetric is one timed operation. It is a value: the collector keeps
// its own copy and never hands out pointers into its history.
type PerformanceMetric struct {
	Component    string  `json:"component"`
	Operation    string  `json:"operation"`
	DurationMs   float64 `json:"duration_ms"`
	MemoryUsedMB float64 `json:"memory_used_mb"`
	Success      bool    `json:"success"`
	// ErrorCount is 0 for successful operations and at least 1 otherwise by
	// convention of the caller; the collector sums whatever it is given.
	ErrorCount int `json:"error_count"`
}

// ComponentSummary aggregates every sample recorded for one component.
type ComponentSummary struct {
	TotalOperations int     `json:"total_operations"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	SuccessRate     float64 `json:"success_rate"`
	TotalErrors     int     `json:"total_errors"`
}
