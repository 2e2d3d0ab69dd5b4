package contextmgr

import (
	"fmt"
	"strings"
	"testing"

	"rookit/internal/chat"
)

func conversation(n int) []chat.Message {
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		out = append(out, chat.Message{Role: role, Content: fmt.Sprintf("message %d %s", i, strings.Repeat("word ", 50))})
	}
	return out
}

func TestTruncateHalf(t *testing.T) {
	tests := []struct {
		n        int
		wantLen  int
		wantNext string
	}{
		{1, 1, ""},
		{2, 2, ""},
		{3, 3, ""},
		{5, 3, "message 3"},
		{9, 5, "message 5"},
		{10, 6, "message 5"},
	}
	for _, tt := range tests {
		msgs := conversation(tt.n)
		got := TruncateHalf(msgs)
		if len(got) != tt.wantLen {
			t.Errorf("TruncateHalf(%d) len=%d, want %d", tt.n, len(got), tt.wantLen)
			continue
		}
		if !strings.HasPrefix(got[0].Content, "message 0") {
			t.Errorf("TruncateHalf(%d) dropped the first message", tt.n)
		}
		if tt.wantNext != "" && !strings.HasPrefix(got[1].Content, tt.wantNext) {
			t.Errorf("TruncateHalf(%d) second=%q, want prefix %q", tt.n, got[1].Content[:12], tt.wantNext)
		}
	}
}

func TestFitWindow(t *testing.T) {
	tok := Offline()
	msgs := conversation(21)

	same, cut := FitWindow(tok, "system", msgs, 1_000_000)
	if cut || len(same) != len(msgs) {
		t.Fatalf("large window cut=%v len=%d", cut, len(same))
	}

	limit := tok.Count(msgs) / 2
	got, cut := FitWindow(tok, "system", msgs, limit)
	if !cut {
		t.Fatal("expected truncation")
	}
	if tok.Count(got)+tok.CountText("system") > limit*8/10 && len(got) > 3 {
		t.Fatalf("history still over budget with %d messages", len(got))
	}
	if got[0].Content != msgs[0].Content {
		t.Fatal("task message must survive truncation")
	}

	if _, cut := FitWindow(tok, "", msgs, 0); cut {
		t.Fatal("zero limit disables truncation")
	}
}
