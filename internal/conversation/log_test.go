package conversation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rfontaine/sundog/internal/provider"
)

func sampleLog(maxBytes int) *Log {
	l := NewLog(maxBytes)
	l.Append(SystemPrimer("you analyze sensor records"))
	l.Append(UserQuery("how did system A perform last week?", json.RawMessage(`{"system_id":"A"}`)))
	return l
}

// TestAppend_PreservesOrder: turns come back in append order.
func TestAppend_PreservesOrder(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ModelOutput("let me fetch the records"))
	l.Append(ToolInvocation("fetch_records", "tc-1", json.RawMessage(`{"system_id":"A","days":7}`)))
	l.Append(ToolOutcome("fetch_records", "tc-1", true, `{"records":[]}`, "", 20*time.Millisecond))

	kinds := []Kind{KindSystemPrimer, KindUserQuery, KindModelOutput, KindToolInvocation, KindToolOutcome}
	turns := l.Turns()
	if len(turns) != len(kinds) {
		t.Fatalf("expected %d turns, got %d", len(kinds), len(turns))
	}
	for i, k := range kinds {
		if turns[i].Kind != k {
			t.Errorf("turn %d: kind %s, want %s", i, turns[i].Kind, k)
		}
	}
}

// TestPrune_NeverDropsEssentials: primer and query survive any ceiling.
func TestPrune_NeverDropsEssentials(t *testing.T) {
	t.Parallel()

	l := sampleLog(1) // absurdly small ceiling
	for i := 0; i < 20; i++ {
		l.Append(ModelOutput(strings.Repeat("x", 200)))
	}

	l.Prune()

	var primer, query bool
	for _, turn := range l.Turns() {
		switch turn.Kind {
		case KindSystemPrimer:
			primer = true
		case KindUserQuery:
			query = true
		case KindModelOutput:
			t.Error("prunable turn survived a 1-byte ceiling")
		}
	}
	if !primer || !query {
		t.Errorf("essential turns dropped: primer=%v query=%v", primer, query)
	}
	if l.Pruned() != 20 {
		t.Errorf("Pruned() = %d, want 20", l.Pruned())
	}
}

// TestPrune_DropsOldestFirst: pruning removes the oldest non-essential turn.
func TestPrune_DropsOldestFirst(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ModelOutput("first"))
	l.Append(ModelOutput("second"))

	// Ceiling just below current size forces exactly one removal.
	l.maxBytes = l.SerializedSize() - 1
	if removed := l.Prune(); removed != 1 {
		t.Fatalf("removed %d turns, want 1", removed)
	}

	for _, turn := range l.Turns() {
		if turn.Kind == KindModelOutput && turn.Text == "first" {
			t.Error("oldest prunable turn survived")
		}
	}
}

// TestMessages_AttachesToolCalls: a tool invocation rides on the preceding
// assistant message and its outcome becomes a tool-role message.
func TestMessages_AttachesToolCalls(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ModelOutput("fetching"))
	l.Append(ToolInvocation("fetch_records", "tc-1", json.RawMessage(`{"days":7}`)))
	l.Append(ToolOutcome("fetch_records", "tc-1", false, "", "no data in range", time.Millisecond))

	msgs := l.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	assistant := msgs[2]
	if assistant.Role != provider.MessageRoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant message missing tool call: %+v", assistant)
	}
	if assistant.ToolCalls[0].Name != "fetch_records" {
		t.Errorf("tool call name = %s", assistant.ToolCalls[0].Name)
	}

	outcome := msgs[3]
	if outcome.Role != provider.MessageRoleTool || !outcome.IsError || outcome.ToolID != "tc-1" {
		t.Errorf("tool outcome message wrong: %+v", outcome)
	}
	if outcome.Content != "no data in range" {
		t.Errorf("failure outcome content = %q", outcome.Content)
	}
}

// TestMessages_OrphanInvocation: an invocation whose model output was
// pruned still renders a valid assistant message.
func TestMessages_OrphanInvocation(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ToolInvocation("fetch_records", "tc-9", nil))

	msgs := l.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != provider.MessageRoleAssistant || len(last.ToolCalls) != 1 {
		t.Errorf("orphan invocation not wrapped in assistant message: %+v", last)
	}
}

// TestRestore_ReplaysExactOrder: a restored log equals the persisted one.
func TestRestore_ReplaysExactOrder(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ModelOutput("partial analysis"))
	persisted := l.Turns()

	restored := Restore(persisted, 0)
	got := restored.Turns()
	if len(got) != len(persisted) {
		t.Fatalf("restored %d turns, want %d", len(got), len(persisted))
	}
	for i := range got {
		if got[i].Kind != persisted[i].Kind || got[i].Text != persisted[i].Text {
			t.Errorf("turn %d differs after restore", i)
		}
	}
}

// TestLastModelText: most recent non-empty model output wins.
func TestLastModelText(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	if l.LastModelText() != "" {
		t.Error("expected empty text before any model output")
	}
	l.Append(ModelOutput("first draft"))
	l.Append(ModelOutput("final draft"))
	l.Append(ModelOutput(""))
	if got := l.LastModelText(); got != "final draft" {
		t.Errorf("LastModelText = %q", got)
	}
}

// TestToolNamesAttempted: invocation order is preserved.
func TestToolNamesAttempted(t *testing.T) {
	t.Parallel()

	l := sampleLog(0)
	l.Append(ToolInvocation("fetch_records", "1", nil))
	l.Append(ToolInvocation("weather_history", "2", nil))

	got := l.ToolNamesAttempted()
	if len(got) != 2 || got[0] != "fetch_records" || got[1] != "weather_history" {
		t.Errorf("ToolNamesAttempted = %v", got)
	}
}
