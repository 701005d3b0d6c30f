package app

import "time"

// runIDFormat timestamps an invocation to the second. IDs sort
// chronologically, which keeps the shared log file greppable by run.
const runIDFormat = "20060102T150405Z"

// Run identifies one invocation of the tool. The ID is stamped on every
// log line the invocation writes, so lines from interleaved runs stay
// separable in the shared log.
type Run struct {
	ID        string
	Operation string
	StartedAt time.Time
}

// NewRun creates a run for the named operation (e.g. "Scan", "Serve").
func NewRun(operation string, now time.Time) Run {
	now = now.UTC()
	return Run{
		ID:        now.Format(runIDFormat),
		Operation: operation,
		StartedAt: now,
	}
}
