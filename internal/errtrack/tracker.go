package errtrack

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

// Tracker keeps a bounded FIFO history of recent errors together with an
// all-time count per error type. The count map is never pruned, so a process
// producing an unbounded variety of error types grows it without limit.
type Tracker struct {
	maxHistory int
	now        func() time.Time

	queueMu sync.Mutex
	queue   *circularbuffer.Queue // nil when maxHistory is 0

	countsMu sync.Mutex
	counts   map[string]int
}

var (
	_ Recorder   = (*Tracker)(nil)
	_ Summarizer = (*Tracker)(nil)
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New returns a tracker retaining at most maxHistory recent entries.
// Negative sizes are treated as 0, which keeps counts but no history.
func New(maxHistory int, opts ...Option) *Tracker {
	if maxHistory < 0 {
		maxHistory = 0
	}

	t := &Tracker{
		maxHistory: maxHistory,
		now:        time.Now,
		counts:     make(map[string]int),
	}
	if maxHistory > 0 {
		t.queue = circularbuffer.New(maxHistory)
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// MaxHistory returns the queue bound.
func (t *Tracker) MaxHistory() int {
	return t.maxHistory
}

// Record stores an entry stamped with the current time and bumps the count
// for errType. A full queue drops its oldest entry.
func (t *Tracker) Record(errType, message, component string) {
	entry := Entry{
		Timestamp: t.now(),
		Type:      errType,
		Message:   message,
		Component: component,
	}

	// counts before queue, Summary reads in the opposite order: a reader
	// never sees more queued entries than counted errors
	t.countsMu.Lock()
	t.counts[errType]++
	t.countsMu.Unlock()

	if t.queue != nil {
		t.queueMu.Lock()
		if t.queue.Full() {
			t.queue.Dequeue()
		}
		t.queue.Enqueue(entry)
		t.queueMu.Unlock()
	}
}

// Len returns the number of entries currently queued.
func (t *Tracker) Len() int {
	if t.queue == nil {
		return 0
	}

	t.queueMu.Lock()
	defer t.queueMu.Unlock()

	return t.queue.Size()
}

// Summary returns totals, a copy of the per-type counts and up to
// RecentErrorsLimit most recent entries, oldest first.
func (t *Tracker) Summary() Summary {
	recent := t.recent(RecentErrorsLimit)

	t.countsMu.Lock()
	types := make(map[string]int, len(t.counts))
	total := 0
	for errType, n := range t.counts {
		types[errType] = n
		total += n
	}
	t.countsMu.Unlock()

	return Summary{
		TotalErrors:  total,
		ErrorTypes:   types,
		RecentErrors: recent,
	}
}

func (t *Tracker) recent(limit int) []Entry {
	if t.queue == nil {
		return []Entry{}
	}

	t.queueMu.Lock()
	values := t.queue.Values()
	t.queueMu.Unlock()

	if len(values) > limit {
		values = values[len(values)-limit:]
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		entries = append(entries, v.(Entry))
	}

	return entries
}
