package model

import "testing"

func TestCitationSpanValidate(t *testing.T) {
	tests := []struct {
		name    string
		span    CitationSpan
		textLen int
		ok      bool
	}{
		{"valid", CitationSpan{Start: 0, End: 12}, 40, true},
		{"at end", CitationSpan{Start: 27, End: 39}, 39, true},
		{"negative start", CitationSpan{Start: -1, End: 5}, 40, false},
		{"empty range", CitationSpan{Start: 5, End: 5}, 40, false},
		{"inverted", CitationSpan{Start: 10, End: 5}, 40, false},
		{"past end", CitationSpan{Start: 30, End: 41}, 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.span.Validate(tt.textLen)
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSortSpansDoesNotMutate(t *testing.T) {
	spans := []CitationSpan{
		{Text: "b", Start: 27, End: 39},
		{Text: "a", Start: 0, End: 12},
	}
	sorted := SortSpans(spans)
	if sorted[0].Start != 0 || sorted[1].Start != 27 {
		t.Errorf("not sorted: %+v", sorted)
	}
	if spans[0].Start != 27 {
		t.Error("input slice must not be reordered")
	}
}

func TestTaskSnapshotOrderedOutcomes(t *testing.T) {
	snap := TaskSnapshot{
		Status: TaskRunning,
		Spans: []CitationSpan{
			{Start: 0, End: 12},
			{Start: 27, End: 39},
			{Start: 50, End: 60},
		},
		Outcomes: map[int]VerificationOutcome{
			3: {Span: CitationSpan{Start: 50, End: 60}, Status: StatusVerified},
			1: {Span: CitationSpan{Start: 0, End: 12}, Status: StatusNotFound},
		},
	}

	ordered := snap.OrderedOutcomes()
	if len(ordered) != 2 {
		t.Fatalf("expected 2 resolved outcomes, got %d", len(ordered))
	}
	if ordered[0].Span.Start != 0 || ordered[1].Span.Start != 50 {
		t.Errorf("outcomes out of identifier order: %+v", ordered)
	}
	if !snap.HasPartial() {
		t.Error("running task with outcomes should report partial")
	}
	if snap.Completed() {
		t.Error("running task is not completed")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if TaskRunning.Terminal() {
		t.Error("running is not terminal")
	}
	for _, s := range []TaskStatus{TaskCompleted, TaskFailed, TaskTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
