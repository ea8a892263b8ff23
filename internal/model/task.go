package model

import "time"

// TaskStatus is the lifecycle state of a verification task
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed" // All spans resolved before the deadline
	TaskFailed    TaskStatus = "failed"    // Cancelled or malformed submission
	TaskTimedOut  TaskStatus = "timed_out" // Deadline elapsed; partial outcomes preserved
)

// Terminal reports whether the status admits no further transitions
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskTimedOut
}

// TaskSnapshot is a consistent, read-only copy of one task's state. The
// registry never hands out live task structures; every query returns a
// fresh snapshot with copied maps and slices.
type TaskSnapshot struct {
	ID         string                      `json:"task_id"`
	Status     TaskStatus                  `json:"status"`
	Progress   float64                     `json:"progress"` // completed spans / total spans, monotone until terminal
	Outcomes   map[int]VerificationOutcome `json:"outcomes"` // span identifier (1..N) -> outcome
	Error      string                      `json:"error,omitempty"`
	SourceText string                      `json:"-"`
	Spans      []CitationSpan              `json:"-"` // ascending by Start; identifier i+1 belongs to Spans[i]
	CreatedAt  time.Time                   `json:"-"`
	FinishedAt time.Time                   `json:"-"`
}

// Completed reports whether the task reached any terminal state
func (t TaskSnapshot) Completed() bool {
	return t.Status != TaskRunning
}

// HasPartial reports whether a still-running task already has outcomes
// worth showing.
func (t TaskSnapshot) HasPartial() bool {
	return t.Status == TaskRunning && len(t.Outcomes) > 0
}

// OrderedOutcomes returns the recorded outcomes in identifier order,
// skipping spans that have not resolved yet.
func (t TaskSnapshot) OrderedOutcomes() []VerificationOutcome {
	out := make([]VerificationOutcome, 0, len(t.Outcomes))
	for id := 1; id <= len(t.Spans); id++ {
		if o, ok := t.Outcomes[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
