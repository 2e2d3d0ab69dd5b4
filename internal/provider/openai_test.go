package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"rookit/internal/chat"
	"rookit/internal/settings"
)

func sseServer(t *testing.T, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":11,"completion_tokens":2,"total_tokens":13}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompatibleCreateMessage(t *testing.T) {
	var seen map[string]any
	srv := sseServer(t, func(body map[string]any) { seen = body })
	p := NewOpenAICompatible(settings.ProviderOpenAICompatible, settings.ProviderSettings{
		APIKey: "k", BaseURL: srv.URL + "/", APIModelID: "local-model", User: "alice",
	}, Transport{})

	s, err := p.CreateMessage(context.Background(), "be brief", []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
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
	if text != "Hello" {
		t.Fatalf("text=%q, want Hello", text)
	}
	if usage.InputTokens != 11 || usage.OutputTokens != 2 {
		t.Fatalf("usage=%+v, want 11/2", usage)
	}

	if seen["model"] != "local-model" {
		t.Fatalf("model=%v, want local-model", seen["model"])
	}
	if seen["user"] != "alice" {
		t.Fatalf("user=%v, want alice", seen["user"])
	}
	opts, _ := seen["stream_options"].(map[string]any)
	if opts["include_usage"] != true {
		t.Fatalf("stream_options=%v, want include_usage", seen["stream_options"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages len=%d, want 2 (system + user)", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be brief" {
		t.Fatalf("messages[0]=%v", first)
	}
}

func TestOpenAICompatibleAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(settings.ProviderOpenAI, settings.ProviderSettings{APIKey: "k", BaseURL: srv.URL}, Transport{MaxRetries: 3})
	_, err := p.CreateMessage(context.Background(), "", []chat.Message{{Role: chat.RoleUser, Content: "hi"}})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v, want ProviderError", err)
	}
	if !strings.HasPrefix(err.Error(), "openai completion error: ") || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("err=%q", err.Error())
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d, 401 must not be retried", calls.Load())
	}
}

func TestOpenAICompatibleRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, `{"error":{"message":"upstream","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"done"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatible(settings.ProviderOpenAI, settings.ProviderSettings{APIKey: "k", BaseURL: srv.URL}, Transport{MaxRetries: 2})
	got, err := p.CompletePrompt(context.Background(), "summarize")
	if err != nil {
		t.Fatalf("CompletePrompt: %v", err)
	}
	if got != "done" {
		t.Fatalf("CompletePrompt=%q, want done", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d, want 2", calls.Load())
	}
}

func TestRetryable(t *testing.T) {
	if retryable(context.Canceled) {
		t.Fatal("context.Canceled must not be retryable")
	}
	if !retryable(errors.New("connection reset")) {
		t.Fatal("transport errors should be retryable")
	}
}
