package repl

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/logging"
	"rookit/internal/provider"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/webview"
)

type scriptInput struct {
	lines   []string
	prompts []string
}

func (s *scriptInput) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptInput) Close() error { return nil }

type host struct{}

func (host) UserSetting(string) (string, bool) { return "", false }
func (host) WorkspaceRoot() (string, bool)     { return "/work", true }
func (host) ShowError(string)                  {}
func (host) Language() string                  { return "en" }
func (host) OpenFile(string) error             { return nil }

type chunkHandler struct{ chunks []string }

func (h chunkHandler) CreateMessage(ctx context.Context, system string, history []chat.Message) (*provider.Stream, error) {
	return provider.NewStream(ctx, func(ctx context.Context, emit func(provider.Event) bool) error {
		for _, c := range h.chunks {
			if !emit(provider.Event{Type: provider.EventText, Text: c}) {
				return ctx.Err()
			}
		}
		emit(provider.Event{Type: provider.EventUsage, InputTokens: 5, OutputTokens: 2})
		return nil
	}), nil
}

func (h chunkHandler) CompletePrompt(context.Context, string) (string, error) { return "", nil }
func (chunkHandler) Model() string                                            { return "fake-model" }
func (chunkHandler) Vendor() string                                           { return "fake" }

// syncBuffer 供任务 goroutine 与测试并发写读
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newController(t *testing.T, h provider.Handler) *webview.Controller {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	ctx := context.Background()
	store := storage.NewMemoryStore()
	logger := logging.Discard()
	seed := settings.ProviderSettings{APIProvider: "openai", APIModelID: "gpt-4o-mini", APIKey: "sk-test"}
	mgr := settings.NewManager(store, settings.WithLogger(logger))
	if err := mgr.Init(ctx, seed); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := webview.New(webview.Config{
		Proxy:      contextproxy.New(store, store, contextproxy.WithLogger(logger)),
		Settings:   mgr,
		Host:       host{},
		History:    store,
		NewHandler: func(settings.ProviderSettings) (provider.Handler, error) { return h, nil },
		Seed:       seed,
		I18n:       i18n.New("en"),
		Logger:     logger,
	})
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return c
}

func runScript(t *testing.T, c *webview.Controller, lines ...string) (string, *scriptInput) {
	t.Helper()
	out := &syncBuffer{}
	in := &scriptInput{lines: lines}
	l, err := New(c, Options{Out: out, I18n: i18n.New("en"), Logger: logging.Discard(), input: in})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), in
}

func TestLoopRunsTaskAndStreamsReply(t *testing.T) {
	c := newController(t, chunkHandler{chunks: []string{"hel", "lo ", "world"}})
	out, _ := runScript(t, c, "say hello")

	for _, want := range []string{"rookit session ready", "task ", "hello world\n", "finished", "bye"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "hello world") != 1 {
		t.Fatalf("reply printed more than once:\n%s", out)
	}
	if _, ok := c.CurrentTask(); !ok {
		t.Fatalf("expected a current task after the session")
	}
}

func TestLoopFollowUpAnswersCurrentTask(t *testing.T) {
	c := newController(t, chunkHandler{chunks: []string{"ok"}})
	runScript(t, c, "first", "second")

	cur, ok := c.CurrentTask()
	if !ok {
		t.Fatalf("no current task")
	}
	if c.Stack().Size() != 1 {
		t.Fatalf("stack size=%d, want 1", c.Stack().Size())
	}
	var users []string
	for _, m := range cur.Messages() {
		if m.Role == chat.RoleUser {
			users = append(users, m.Content)
		}
	}
	if len(users) != 2 || users[1] != "second" {
		t.Fatalf("user messages=%q, want follow-up as second turn", users)
	}
}

func TestLoopModeAndPrompt(t *testing.T) {
	c := newController(t, chunkHandler{})
	out, in := runScript(t, c, "/mode architect", "/help")

	if !strings.Contains(out, "mode: architect") {
		t.Fatalf("output missing mode notice:\n%s", out)
	}
	if !strings.Contains(out, "Commands:") {
		t.Fatalf("output missing help:\n%s", out)
	}
	if got := in.prompts[0]; got != "[code] default> " {
		t.Fatalf("first prompt=%q, want %q", got, "[code] default> ")
	}
	if got := in.prompts[1]; got != "[architect] default> " {
		t.Fatalf("second prompt=%q, want %q", got, "[architect] default> ")
	}
}

func TestLoopLocalCommands(t *testing.T) {
	c := newController(t, chunkHandler{})
	out, in := runScript(t, c, "/profiles", "/state", "/bogus", "/quit", "never read")

	if !strings.Contains(out, "* default (openai)") {
		t.Fatalf("profiles output missing active marker:\n%s", out)
	}
	if !strings.Contains(out, `"currentApiConfigName": "default"`) {
		t.Fatalf("state output missing profile name:\n%s", out)
	}
	if strings.Contains(out, "sk-test") {
		t.Fatalf("state output leaked the api key:\n%s", out)
	}
	if !strings.Contains(out, "Unknown command: /bogus") {
		t.Fatalf("output missing unknown notice:\n%s", out)
	}
	if len(in.lines) != 1 {
		t.Fatalf("remaining lines=%d, want 1 after /quit", len(in.lines))
	}
}

func TestLoopReportsHandleErrors(t *testing.T) {
	c := newController(t, chunkHandler{})
	out, _ := runScript(t, c, "/profile missing")
	if !strings.Contains(out, "error:") {
		t.Fatalf("output missing error line:\n%s", out)
	}
}

func TestPrinterStreamsDeltas(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var out bytes.Buffer
	p := NewPrinter(&out, i18n.New("en"))

	post := func(m chat.UIMessage) {
		t.Helper()
		if err := p.PostMessage(webview.OutboundMessage{Type: webview.OutPartialMessage, PartialMessage: &m}); err != nil {
			t.Fatalf("PostMessage: %v", err)
		}
	}
	post(chat.UIMessage{Ts: 1, Type: chat.TypeSay, Say: chat.SayText, Text: "typed by user"})
	post(chat.UIMessage{Ts: 2, Type: chat.TypeSay, Say: chat.SayText, Text: "ab", Partial: true})
	post(chat.UIMessage{Ts: 2, Type: chat.TypeSay, Say: chat.SayText, Text: "abcd", Partial: true})
	post(chat.UIMessage{Ts: 2, Type: chat.TypeSay, Say: chat.SayText, Text: "abcd"})
	post(chat.UIMessage{Ts: 3, Type: chat.TypeSay, Say: chat.SayError, Text: "boom"})

	if got, want := out.String(), "abcd\nerror: boom\n"; got != want {
		t.Fatalf("output=%q, want %q", got, want)
	}
}

func TestCRLFWriter(t *testing.T) {
	var out bytes.Buffer
	w := &crlfWriter{out: &out}
	io.WriteString(w, "a\n")
	w.raw.Store(true)
	io.WriteString(w, "b\nc\r\n")
	if got, want := out.String(), "a\nb\r\nc\r\n"; got != want {
		t.Fatalf("output=%q, want %q", got, want)
	}
}

func TestBasicLineInput(t *testing.T) {
	var out bytes.Buffer
	in := newBasicLineInput(strings.NewReader("one\r\ntwo"), &out)
	first, err := in.ReadLine("> ")
	if err != nil || first != "one" {
		t.Fatalf("first=%q err=%v", first, err)
	}
	second, err := in.ReadLine("> ")
	if err != nil || second != "two" {
		t.Fatalf("second=%q err=%v", second, err)
	}
	if _, err := in.ReadLine("> "); err != io.EOF {
		t.Fatalf("err=%v, want io.EOF", err)
	}
	if out.String() != "> > > " {
		t.Fatalf("prompts=%q", out.String())
	}
}
