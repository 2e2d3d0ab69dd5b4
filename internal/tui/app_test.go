package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/webview"
)

type recorder struct {
	posted []webview.InboundMessage
	err    error
}

func (r *recorder) post(m webview.InboundMessage) error {
	r.posted = append(r.posted, m)
	return r.err
}

func newTestApp(r *recorder) App {
	app := NewApp("/tmp/ws", r.post, i18n.New("en"))
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m.(App)
}

// run 执行命令并把结果消息送回 Update
// run executes cmd and feeds its message back into Update
func run(t *testing.T, a App, cmd tea.Cmd) App {
	t.Helper()
	if cmd == nil {
		return a
	}
	if msg := cmd(); msg != nil {
		m, _ := a.Update(msg)
		return m.(App)
	}
	return a
}

func sampleState() webview.State {
	return webview.State{
		contextproxy.KeyMode:                 "architect",
		contextproxy.KeyCurrentAPIConfigName: "work",
		webview.StateAPIConfiguration: webview.APIConfiguration{
			ProviderSettings: settings.ProviderSettings{APIProvider: "anthropic", APIModelID: "claude-x"},
			APIKeySet:        true,
		},
		webview.StateCurrentTaskID: "t1",
		webview.StateTaskStackSize: 1,
		webview.StateClineMessages: []chat.UIMessage{
			{Type: chat.TypeSay, Say: chat.SayText, Text: "plan the refactor"},
			{Type: chat.TypeSay, Say: chat.SayAPIReqStarted},
			{Type: chat.TypeSay, Say: chat.SayText, Text: "Here is the plan"},
		},
		webview.StateTaskHistory: []storage.HistoryItem{{ID: "t1", Number: 1, Task: "plan the refactor", TokensIn: 12, TokensOut: 5, Mode: "architect"}},
		webview.StateListAPIConfigMeta: []settings.ConfigMeta{
			{ID: "a", Name: "default", APIProvider: "openai"},
			{ID: "b", Name: "work", APIProvider: "anthropic"},
		},
		webview.StateModeAPIConfigs: map[string]string{"architect": "b"},
	}
}

func TestAppAppliesState(t *testing.T) {
	app := newTestApp(&recorder{})
	m, _ := app.Update(OutboundMsg{Msg: webview.OutboundMessage{Type: webview.OutState, State: sampleState()}})
	a := m.(App)

	if a.mode != "architect" || a.profile != "work" || a.model != "claude-x" || a.provider != "anthropic" {
		t.Fatalf("mode=%q profile=%q provider=%q model=%q", a.mode, a.profile, a.provider, a.model)
	}
	if a.taskID != "t1" || a.stackSize != 1 || len(a.transcript) != 3 {
		t.Fatalf("task=%q stack=%d transcript=%d", a.taskID, a.stackSize, len(a.transcript))
	}
	if in, out, ok := a.currentUsage(); !ok || in != 12 || out != 5 {
		t.Fatalf("currentUsage=%d,%d,%v", in, out, ok)
	}
	session := a.renderSession(80)
	if !strings.Contains(session, "architect → work") || !strings.Contains(session, "• work") {
		t.Fatalf("session panel=%q", session)
	}
	if view := a.View(); !strings.Contains(view, "architect") {
		t.Fatalf("view missing mode: %q", view)
	}
}

func TestAppStreamsPartialMessages(t *testing.T) {
	app := newTestApp(&recorder{})
	m, _ := app.Update(OutboundMsg{Msg: webview.OutboundMessage{Type: webview.OutState, State: sampleState()}})
	a := m.(App)

	partial := chat.UIMessage{Type: chat.TypeSay, Say: chat.SayText, Text: "Step one", Partial: true}
	m, _ = a.Update(OutboundMsg{Msg: webview.OutboundMessage{Type: webview.OutPartialMessage, PartialMessage: &partial}})
	a = m.(App)
	if !a.streaming || a.streamText != "Step one" {
		t.Fatalf("streaming=%v text=%q", a.streaming, a.streamText)
	}

	done := chat.UIMessage{Type: chat.TypeSay, Say: chat.SayCompletion}
	m, _ = a.Update(OutboundMsg{Msg: webview.OutboundMessage{Type: webview.OutPartialMessage, PartialMessage: &done}})
	a = m.(App)
	if a.streaming || a.streamText != "" {
		t.Fatalf("streaming should stop after completion_result")
	}
}

func TestAppSubmitPostsMessages(t *testing.T) {
	r := &recorder{}
	a := newTestApp(r)

	a.input.SetValue("write a parser")
	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	a = run(t, m.(App), cmd)
	if len(r.posted) != 1 || r.posted[0] != (webview.NewTask{Text: "write a parser"}) {
		t.Fatalf("posted=%#v", r.posted)
	}
	if a.input.Value() != "" {
		t.Fatalf("input not reset: %q", a.input.Value())
	}

	a.taskID = "t1"
	a.input.SetValue("looks good")
	m, cmd = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	a = run(t, m.(App), cmd)
	if r.posted[1] != (webview.AskResponse{Text: "looks good"}) {
		t.Fatalf("posted=%#v", r.posted[1])
	}

	a.input.SetValue("/mode")
	m, cmd = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	a = run(t, m.(App), cmd)
	if len(r.posted) != 2 || a.lastError == "" {
		t.Fatalf("bad command should not post: posted=%d lastError=%q", len(r.posted), a.lastError)
	}
}

func TestAppKeys(t *testing.T) {
	r := &recorder{}
	a := newTestApp(r)

	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyTab})
	a = run(t, m.(App), cmd)
	if r.posted[0] != (webview.SwitchMode{Mode: "architect"}) {
		t.Fatalf("tab posted %#v", r.posted[0])
	}

	m, cmd = a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	a = run(t, m.(App), cmd)
	if r.posted[1] != (webview.CancelTask{}) {
		t.Fatalf("esc posted %#v", r.posted[1])
	}

	a.streaming = true
	m, cmd = a.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	a = run(t, m.(App), cmd)
	if r.posted[2] != (webview.ClearTask{}) || a.streaming {
		t.Fatalf("ctrl+n posted %#v streaming=%v", r.posted[2], a.streaming)
	}

	m, _ = a.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if m.(App).activePanel != PanelSession {
		t.Fatal("ctrl+o should switch to the session panel")
	}

	_, cmd = a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should return tea.Quit")
	}
}

func TestAppShowsErrors(t *testing.T) {
	r := &recorder{err: errors.New("inbox closed")}
	a := newTestApp(r)

	m, _ := a.Update(OutboundMsg{Msg: webview.OutboundMessage{Type: webview.OutError, Error: "no_workspace", Text: "Please open a project folder first"}})
	a = m.(App)
	if a.lastError != "Please open a project folder first" {
		t.Fatalf("lastError=%q", a.lastError)
	}

	m, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	a = run(t, m.(App), cmd)
	if a.lastError != "inbox closed" {
		t.Fatalf("lastError=%q, want post failure", a.lastError)
	}
}

func TestSurfaceForwardsMessages(t *testing.T) {
	var got []tea.Msg
	s := &Surface{send: func(m tea.Msg) { got = append(got, m) }}
	s.SetOptions(webview.Options{EnableScripts: true})
	if !s.Options().EnableScripts {
		t.Fatal("options not recorded")
	}
	if err := s.PostMessage(webview.OutboundMessage{Type: webview.OutState}); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("sent %d messages", len(got))
	}
	if om, ok := got[0].(OutboundMsg); !ok || om.Msg.Type != webview.OutState {
		t.Fatalf("sent %#v", got[0])
	}
}
