package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"rookit/internal/chat"
	"rookit/internal/settings"
)

func TestAnthropicCreateMessage(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":9,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":4}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}))
	defer srv.Close()

	p := NewAnthropic(settings.ProviderSettings{APIKey: "k", BaseURL: srv.URL, APIModelID: "claude-test", User: "u-1"}, Transport{})
	s, err := p.CreateMessage(context.Background(), "system text", []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: ""},
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	var text string
	var usage Event
	for ev := range s.Events() {
		switch ev.Type {
		case EventText:
			text += ev.Text
		case EventUsage:
			usage = ev
		}
	}
	if s.Err() != nil {
		t.Fatalf("stream err: %v", s.Err())
	}
	if text != "Hi there" {
		t.Fatalf("text=%q, want %q", text, "Hi there")
	}
	if usage.InputTokens != 9 || usage.OutputTokens != 4 {
		t.Fatalf("usage=%+v, want 9/4", usage)
	}

	if seen["model"] != "claude-test" {
		t.Fatalf("model=%v", seen["model"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages len=%d, empty turns must be skipped", len(msgs))
	}
	meta, _ := seen["metadata"].(map[string]any)
	if meta["user_id"] != "u-1" {
		t.Fatalf("metadata=%v, want user_id u-1", seen["metadata"])
	}
	if seen["temperature"] != float64(0) {
		t.Fatalf("temperature=%v, want 0", seen["temperature"])
	}
}
