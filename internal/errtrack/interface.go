package errtrack

import "time"

const (
	// DefaultMaxHistory bounds the recent-error queue when no size is configured.
	DefaultMaxHistory = 100

	// RecentErrorsLimit is how many queued entries a Summary carries.
	RecentErrorsLimit = 5
)

// Recorder accepts error events.
type Recorder interface {
	Record(errType, message, component string)
}

// Summarizer produces an error summary on demand.
type Summarizer interface {
	Summary() Summary
}

// Entry is one recorded error.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
}

// Summary is a point-in-time view of a Tracker.
type Summary struct {
	// TotalErrors counts every Record call since the tracker was created,
	// independent of how many entries the queue still holds.
	TotalErrors  int            `json:"total_errors"`
	ErrorTypes   map[string]int `json:"error_types"`
	RecentErrors []Entry        `json:"recent_errors"`
}
