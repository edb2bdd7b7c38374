package job

import (
	"testing"
)

// TestStatusTerminal: only the four final states are terminal.
func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusCompleted, StatusFailed, StatusExhausted, StatusCancelled}
	live := []Status{StatusPending, StatusRunning, StatusAwaitingResume}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

// TestNew: fresh jobs are pending with unique IDs.
func TestNew(t *testing.T) {
	t.Parallel()

	a := New("query one", nil, ModeSync)
	b := New("query two", nil, ModeBackground)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("job IDs not unique: %q vs %q", a.ID, b.ID)
	}
	if a.Status != StatusPending {
		t.Errorf("new job status = %s", a.Status)
	}
	if a.Mode != ModeSync || b.Mode != ModeBackground {
		t.Error("mode not preserved")
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}
