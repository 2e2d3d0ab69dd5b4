package contextmgr

import (
	"testing"

	"rookit/internal/chat"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"你好世界", 4},
		{"hi 你好", 3},
		{"こんにちは", 5},
	}
	for _, tt := range tests {
		if got := estimate(tt.text); got != tt.want {
			t.Errorf("estimate(%q)=%d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestOfflineCounts(t *testing.T) {
	tok := Offline()
	if tok.IsPrecise() {
		t.Fatal("offline tokenizer reports precise counts")
	}
	if got := tok.CountText(""); got != 0 {
		t.Fatalf("CountText(\"\")=%d, want 0", got)
	}
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "abcdefgh"},
		{Role: chat.RoleAssistant, Content: "abcd"},
	}
	if got, want := tok.Count(history), 2*messageOverhead+2+1; got != want {
		t.Fatalf("Count=%d, want %d", got, want)
	}
	if got, want := tok.CountRequest("abcd", history), tok.Count(history)+messageOverhead+1+replyPriming; got != want {
		t.Fatalf("CountRequest=%d, want %d", got, want)
	}
	if got, want := tok.CountRequest("", nil), replyPriming; got != want {
		t.Fatalf("CountRequest(empty)=%d, want %d", got, want)
	}
}

func TestUnknownEncodingDegrades(t *testing.T) {
	tok := NewTokenizer("")
	if tok.IsPrecise() {
		t.Fatal("empty encoding name should not load a BPE table")
	}
	if tok.CountText("hello") <= 0 {
		t.Fatal("degraded tokenizer returned no tokens")
	}
}

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"GPT-4.1", "o200k_base"},
		{"openai/gpt-4o", "o200k_base"},
		{"o3-mini", "o200k_base"},
		{"claude-sonnet-4-20250514", "cl100k_base"},
		{"", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := EncodingFor(tt.model); got != tt.want {
			t.Errorf("EncodingFor(%q)=%q, want %q", tt.model, got, tt.want)
		}
	}
}
