// Package task owns the verification task lifecycle: it fans one
// submission out to a bounded pool of workers, tracks progress, keeps
// partial results available while the task runs, and evicts terminal
// tasks after a retention window. No ambient globals: callers hold a
// Registry and all state lives inside it.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citewatch/citewatch/internal/model"
)

// Checker is the worker contract the registry schedules. Implementations
// must convert their own failures into error-status outcomes.
type Checker interface {
	Check(ctx context.Context, span model.CitationSpan, sourceContext string) model.VerificationOutcome
}

// Registry is the task orchestrator. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*state
	closed bool

	checker    Checker
	maxWorkers int
	deadline   time.Duration
	retention  time.Duration

	janitorStop chan struct{}
	janitorOnce sync.Once
	wg          sync.WaitGroup
}

// NewRegistry creates a task registry running its own eviction janitor
func NewRegistry(checker Checker, cfg model.TaskConfig) *Registry {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 45 * time.Second
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}

	r := &Registry{
		tasks:       make(map[string]*state),
		checker:     checker,
		maxWorkers:  maxWorkers,
		deadline:    deadline,
		retention:   retention,
		janitorStop: make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Submit creates a verification task for sourceText and its detected
// spans and returns immediately. Spans may arrive in any order; the task
// assigns identifiers 1..N by ascending Start before any worker runs, so
// identifiers never depend on completion order. An empty span list
// returns ErrEmptyInput and creates nothing.
func (r *Registry) Submit(sourceText string, spans []model.CitationSpan) (string, error) {
	if len(spans) == 0 {
		return "", ErrEmptyInput
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), r.deadline)
	ts := newState(id, sourceText, model.SortSpans(spans), cancel)
	r.tasks[id] = ts
	r.mu.Unlock()

	// Malformed offsets are an orchestrator-level failure: the task
	// exists but goes straight to failed, with no workers started.
	if err := model.ValidateSpans(sourceText, spans); err != nil {
		ts.markFailed(fmt.Sprintf("malformed submission: %v", err))
		return id, nil
	}

	r.wg.Add(1)
	go r.run(ctx, ts)
	return id, nil
}

// run fans out one worker per span, bounded by a semaphore, and resolves
// the task's terminal state.
func (r *Registry) run(ctx context.Context, ts *state) {
	defer r.wg.Done()
	defer ts.cancel()

	semaphore := make(chan struct{}, r.maxWorkers)

	for i, span := range ts.spans {
		spanID := i + 1
		select {
		case <-ctx.Done():
			// Deadline or cancellation hit before this worker started
		case semaphore <- struct{}{}:
			r.wg.Add(1)
			go func(spanID int, span model.CitationSpan) {
				defer r.wg.Done()
				defer func() { <-semaphore }()

				outcome := r.checker.Check(ctx, span, ts.sourceText)
				// recordOutcome discards results for terminal tasks, so a
				// straggler finishing after cancel or timeout changes nothing.
				ts.recordOutcome(spanID, outcome)
			}(spanID, span)
		}
	}

	select {
	case <-ts.allDone:
		// recordOutcome already transitioned to completed
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			ts.markTimedOut()
		}
		// Explicit cancel already transitioned the task via Cancel
	}
}

// Snapshot returns a consistent read-only copy of the task's state
func (r *Registry) Snapshot(taskID string) (model.TaskSnapshot, error) {
	r.mu.RLock()
	ts, ok := r.tasks[taskID]
	r.mu.RUnlock()
	if !ok {
		return model.TaskSnapshot{}, ErrNotFound
	}
	return ts.snapshot(), nil
}

// Cancel transitions a running task to failed with reason "cancelled".
// Outstanding workers are signalled to stop; results that still arrive
// are discarded. Cancelling a terminal task is a no-op.
func (r *Registry) Cancel(taskID string) error {
	r.mu.RLock()
	ts, ok := r.tasks[taskID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	ts.markFailed("cancelled")
	return nil
}

// Clear removes a task immediately, regardless of retention
func (r *Registry) Clear(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	ts.cancel()
	delete(r.tasks, taskID)
	return nil
}

// ActiveTasks returns the number of tasks currently held, running or not
func (r *Registry) ActiveTasks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Close stops the janitor, cancels all running tasks and waits for
// workers to wind down.
func (r *Registry) Close() {
	r.janitorOnce.Do(func() { close(r.janitorStop) })

	r.mu.Lock()
	r.closed = true
	for _, ts := range r.tasks {
		ts.markFailed("registry shutting down")
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// janitor evicts terminal tasks older than the retention window
func (r *Registry) janitor() {
	interval := r.retention / 10
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.janitorStop:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *Registry) evictExpired() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.tasks {
		if ts.terminalSince(cutoff) {
			delete(r.tasks, id)
		}
	}
}
