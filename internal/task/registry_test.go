package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/citewatch/citewatch/internal/model"
)

// stubChecker resolves spans through an injectable function
type stubChecker struct {
	fn func(ctx context.Context, span model.CitationSpan) model.VerificationOutcome
}

func (s *stubChecker) Check(ctx context.Context, span model.CitationSpan, _ string) model.VerificationOutcome {
	return s.fn(ctx, span)
}

func verifiedOutcome(span model.CitationSpan) model.VerificationOutcome {
	return model.VerificationOutcome{Span: span, Status: model.StatusVerified, Confidence: 0.9}
}

func instantChecker() *stubChecker {
	return &stubChecker{fn: func(_ context.Context, span model.CitationSpan) model.VerificationOutcome {
		return verifiedOutcome(span)
	}}
}

func testConfig() model.TaskConfig {
	return model.TaskConfig{MaxWorkers: 3, Deadline: 5 * time.Second, Retention: time.Hour}
}

const registryText = "Smith (2020) claims X. See Jones (2019)."

func registrySpans() []model.CitationSpan {
	return []model.CitationSpan{
		{Text: "Smith (2020)", Start: 0, End: 12},
		{Text: "Jones (2019)", Start: 27, End: 39},
	}
}

// waitTerminal polls until the task leaves running or the test deadline hits
func waitTerminal(t *testing.T, r *Registry, id string) model.TaskSnapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := r.Snapshot(id)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
	return model.TaskSnapshot{}
}

func TestSubmitEmptyInput(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	defer r.Close()

	if _, err := r.Submit(registryText, nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if r.ActiveTasks() != 0 {
		t.Errorf("empty submission must not create a task, have %d", r.ActiveTasks())
	}
}

func TestSubmitCompletesWithOrderedIdentifiers(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	defer r.Close()

	// Reverse submission order; identifiers must follow ascending Start
	spans := registrySpans()
	id, err := r.Submit(registryText, []model.CitationSpan{spans[1], spans[0]})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskCompleted {
		t.Fatalf("expected completed, got %s (error %q)", snap.Status, snap.Error)
	}
	if snap.Progress != 1.0 {
		t.Errorf("completed task should report progress 1.0, got %v", snap.Progress)
	}
	if len(snap.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(snap.Outcomes))
	}
	if snap.Outcomes[1].Span.Start != 0 {
		t.Errorf("identifier 1 should belong to the earliest span, got start %d", snap.Outcomes[1].Span.Start)
	}
	if snap.Outcomes[2].Span.Start != 27 {
		t.Errorf("identifier 2 should belong to the later span, got start %d", snap.Outcomes[2].Span.Start)
	}
}

func TestWorkerErrorsStillComplete(t *testing.T) {
	checker := &stubChecker{fn: func(_ context.Context, span model.CitationSpan) model.VerificationOutcome {
		if span.Start == 0 {
			return model.ErrorOutcome(span, "search backend unreachable")
		}
		return verifiedOutcome(span)
	}}
	r := NewRegistry(checker, testConfig())
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskCompleted {
		t.Fatalf("failing span must not fail the task, got %s", snap.Status)
	}
	if snap.Outcomes[1].Status != model.StatusError {
		t.Errorf("expected error outcome for span 1, got %s", snap.Outcomes[1].Status)
	}
	if snap.Outcomes[2].Status != model.StatusVerified {
		t.Errorf("expected verified outcome for span 2, got %s", snap.Outcomes[2].Status)
	}
}

func TestProgressIsMonotone(t *testing.T) {
	release := make(chan struct{})
	checker := &stubChecker{fn: func(ctx context.Context, span model.CitationSpan) model.VerificationOutcome {
		if span.Start != 0 {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return verifiedOutcome(span)
	}}
	r := NewRegistry(checker, testConfig())
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Wait for the fast span to land, then check the halfway snapshot
	deadline := time.Now().Add(5 * time.Second)
	var mid model.TaskSnapshot
	for time.Now().Before(deadline) {
		mid, _ = r.Snapshot(id)
		if len(mid.Outcomes) == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if mid.Progress != 0.5 {
		t.Errorf("one of two spans resolved should report 0.5, got %v", mid.Progress)
	}
	if !mid.HasPartial() {
		t.Error("running task with outcomes should report partial results")
	}

	close(release)
	snap := waitTerminal(t, r, id)
	if snap.Progress < mid.Progress {
		t.Errorf("progress went backwards: %v -> %v", mid.Progress, snap.Progress)
	}
}

func TestDeadlinePreservesPartialResults(t *testing.T) {
	checker := &stubChecker{fn: func(ctx context.Context, span model.CitationSpan) model.VerificationOutcome {
		if span.Start != 0 {
			<-ctx.Done() // never resolves before the deadline
		}
		return verifiedOutcome(span)
	}}
	cfg := testConfig()
	cfg.Deadline = 50 * time.Millisecond
	r := NewRegistry(checker, cfg)
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskTimedOut {
		t.Fatalf("expected timed_out, got %s", snap.Status)
	}
	if snap.Error != "timeout" {
		t.Errorf("expected error \"timeout\", got %q", snap.Error)
	}
	if len(snap.Outcomes) != 1 {
		t.Errorf("partial outcomes must survive the deadline, got %d", len(snap.Outcomes))
	}
	if _, ok := snap.Outcomes[1]; !ok {
		t.Error("the fast span's outcome should be present under identifier 1")
	}
}

func TestMalformedSubmissionFailsTask(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	defer r.Close()

	bad := []model.CitationSpan{{Text: "x", Start: 10, End: 5}}
	id, err := r.Submit(registryText, bad)
	if err != nil {
		t.Fatalf("Submit should return a task even for malformed spans: %v", err)
	}

	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskFailed {
		t.Errorf("expected failed, got %s", snap.Status)
	}
	if snap.Error == "" {
		t.Error("failed task should carry a reason")
	}
}

func TestCancel(t *testing.T) {
	checker := &stubChecker{fn: func(ctx context.Context, span model.CitationSpan) model.VerificationOutcome {
		<-ctx.Done()
		return verifiedOutcome(span)
	}}
	r := NewRegistry(checker, testConfig())
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := r.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskFailed {
		t.Errorf("expected failed after cancel, got %s", snap.Status)
	}
	if snap.Error != "cancelled" {
		t.Errorf("expected reason \"cancelled\", got %q", snap.Error)
	}

	if err := r.Cancel("no-such-task"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSnapshotUnknownTask(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	defer r.Close()

	if _, err := r.Snapshot("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClearRemovesTask(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, r, id)

	if err := r.Clear(id); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := r.Snapshot(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("cleared task should be gone, got %v", err)
	}
}

func TestCloseRejectsSubmissions(t *testing.T) {
	r := NewRegistry(instantChecker(), testConfig())
	r.Close()

	if _, err := r.Submit(registryText, registrySpans()); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("expected ErrRegistryClosed, got %v", err)
	}
}

func TestManySpansBoundedWorkers(t *testing.T) {
	const n = 20
	checker := instantChecker()
	cfg := testConfig()
	cfg.MaxWorkers = 2
	r := NewRegistry(checker, cfg)
	defer r.Close()

	var text string
	var spans []model.CitationSpan
	for i := 0; i < n; i++ {
		word := fmt.Sprintf("cite%02d ", i)
		spans = append(spans, model.CitationSpan{
			Text:  word[:6],
			Start: len(text),
			End:   len(text) + 6,
		})
		text += word
	}

	id, err := r.Submit(text, spans)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	snap := waitTerminal(t, r, id)
	if snap.Status != model.TaskCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	if len(snap.Outcomes) != n {
		t.Errorf("expected %d outcomes, got %d", n, len(snap.Outcomes))
	}
	for i := 1; i <= n; i++ {
		if _, ok := snap.Outcomes[i]; !ok {
			t.Errorf("missing outcome for identifier %d", i)
		}
	}
}

func TestEvictExpired(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = 10 * time.Millisecond
	r := NewRegistry(instantChecker(), cfg)
	defer r.Close()

	id, err := r.Submit(registryText, registrySpans())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, r, id)

	time.Sleep(20 * time.Millisecond)
	r.evictExpired()

	if _, err := r.Snapshot(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired terminal task should be evicted, got %v", err)
	}
}
