package task

import (
	"context"
	"sync"
	"time"

	"github.com/citewatch/citewatch/internal/model"
)

// state is the mutable record for one verification task. Only the
// registry touches it, always under its own lock; workers report results
// back through recordOutcome and never see the struct.
type state struct {
	mu sync.Mutex

	id         string
	status     model.TaskStatus
	outcomes   map[int]model.VerificationOutcome
	done       int
	errMsg     string
	sourceText string
	spans      []model.CitationSpan // ascending by Start; identifier i+1 <-> spans[i]
	createdAt  time.Time
	finishedAt time.Time

	cancel  context.CancelFunc
	allDone chan struct{} // closed when every span has an outcome
}

func newState(id, sourceText string, spans []model.CitationSpan, cancel context.CancelFunc) *state {
	return &state{
		id:         id,
		status:     model.TaskRunning,
		outcomes:   make(map[int]model.VerificationOutcome, len(spans)),
		sourceText: sourceText,
		spans:      spans,
		createdAt:  time.Now(),
		cancel:     cancel,
		allDone:    make(chan struct{}),
	}
}

// recordOutcome stores one worker's result under its span identifier and
// advances progress. Results arriving after the task reached a terminal
// state are discarded.
func (t *state) recordOutcome(spanID int, outcome model.VerificationOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != model.TaskRunning {
		return
	}
	if _, dup := t.outcomes[spanID]; dup {
		return
	}

	t.outcomes[spanID] = outcome
	t.done++

	if t.done == len(t.spans) {
		t.status = model.TaskCompleted
		t.finishedAt = time.Now()
		close(t.allDone)
		t.cancel()
	}
}

// markTimedOut transitions a still-running task to timed_out, keeping
// every outcome collected so far.
func (t *state) markTimedOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != model.TaskRunning {
		return
	}
	t.status = model.TaskTimedOut
	t.errMsg = "timeout"
	t.finishedAt = time.Now()
}

// markFailed transitions a still-running task to failed with a reason
func (t *state) markFailed(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != model.TaskRunning {
		return
	}
	t.status = model.TaskFailed
	t.errMsg = reason
	t.finishedAt = time.Now()
	t.cancel()
}

// snapshot returns a consistent deep copy of the task
func (t *state) snapshot() model.TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcomes := make(map[int]model.VerificationOutcome, len(t.outcomes))
	for id, o := range t.outcomes {
		outcomes[id] = o
	}
	spans := make([]model.CitationSpan, len(t.spans))
	copy(spans, t.spans)

	progress := 0.0
	if len(t.spans) > 0 {
		progress = float64(t.done) / float64(len(t.spans))
	}

	return model.TaskSnapshot{
		ID:         t.id,
		Status:     t.status,
		Progress:   progress,
		Outcomes:   outcomes,
		Error:      t.errMsg,
		SourceText: t.sourceText,
		Spans:      spans,
		CreatedAt:  t.createdAt,
		FinishedAt: t.finishedAt,
	}
}

// terminalSince reports whether the task has been terminal longer than age
func (t *state) terminalSince(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Terminal() && !t.finishedAt.IsZero() && t.finishedAt.Before(cutoff)
}
