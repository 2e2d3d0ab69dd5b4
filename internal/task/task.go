package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rookit/internal/chat"
	"rookit/internal/contextmgr"
	"rookit/internal/logging"
	"rookit/internal/provider"
	"rookit/internal/storage"
)

var (
	ErrAborted = errors.New("task: aborted")
	ErrBusy    = errors.New("task: a request is already running")
	ErrNoInput = errors.New("task: empty input")
)

// HistorySink 接收已完成任务的历史
// HistorySink receives the history of a task when a request finishes
type HistorySink interface {
	SaveTask(ctx context.Context, item storage.HistoryItem, messages []chat.Message, ui []chat.UIMessage) error
}

// Event 任务向外发出的 UI 消息更新
// Event carries a UI message update out of a task
type Event struct {
	TaskID  string
	Message chat.UIMessage
}

type Usage struct {
	TokensIn  int64
	TokensOut int64
}

type Options struct {
	// ID 为空时生成 uuid
	// ID is generated when empty
	ID           string
	Number       int
	Handler      provider.Handler
	SystemPrompt string
	Mode         string
	Workspace    string
	ParentID     string
	RootID       string

	History    []chat.Message
	UIMessages []chat.UIMessage

	Tokenizer         *contextmgr.Tokenizer
	ContextTokenLimit int
	HistorySink       HistorySink
	OnEvent           func(Event)
	Logger            *slog.Logger
}

// Task 一个任务运行时：持有对话历史，并把供应商流式输出追加进去
// Task is one task runtime: it owns a conversation history and appends the provider's streamed output to it
type Task struct {
	opts   Options
	logger *slog.Logger
	tok    *contextmgr.Tokenizer

	ctx    context.Context
	cancel context.CancelFunc

	abortOnce sync.Once
	aborted   atomic.Bool

	mu       sync.Mutex
	messages []chat.Message
	ui       []chat.UIMessage
	usage    Usage
	running  bool
	done     chan struct{}
	text     string
	ts       int64
}

func New(opts Options) *Task {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.RootID == "" && opts.ParentID != "" {
		opts.RootID = opts.ParentID
	}
	tok := opts.Tokenizer
	if tok == nil {
		model := ""
		if opts.Handler != nil {
			model = opts.Handler.Model()
		}
		tok = contextmgr.NewTokenizerForModel(model)
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	t := &Task{
		opts:     opts,
		logger:   logging.Or(opts.Logger).With("component", "task", "task_id", opts.ID),
		tok:      tok,
		ctx:      ctx,
		cancel:   cancel,
		messages: chat.CloneMessages(opts.History),
		ui:       chat.CloneUIMessages(opts.UIMessages),
		done:     idle,
		ts:       chat.NowMillis(),
	}
	for _, m := range t.messages {
		if m.Role == chat.RoleUser {
			t.text = m.Content
			break
		}
	}
	return t
}

func (t *Task) ID() string       { return t.opts.ID }
func (t *Task) Number() int      { return t.opts.Number }
func (t *Task) Mode() string     { return t.opts.Mode }
func (t *Task) ParentID() string { return t.opts.ParentID }
func (t *Task) RootID() string   { return t.opts.RootID }

// Abort 取消进行中的请求并标记任务为已中止；幂等
// Abort cancels any running request and marks the task aborted. It is idempotent and never blocks.
func (t *Task) Abort() error {
	t.abortOnce.Do(func() {
		t.aborted.Store(true)
		t.cancel()
		t.logger.Debug("task aborted")
	})
	return nil
}

func (t *Task) Aborted() bool { return t.aborted.Load() }

// SetHandler 替换供应商适配器，从下一次请求起生效
// SetHandler swaps the provider adapter; it takes effect from the next request
func (t *Task) SetHandler(h provider.Handler) {
	t.mu.Lock()
	t.opts.Handler = h
	t.mu.Unlock()
}

// Handler returns the provider adapter used for the next request.
func (t *Task) Handler() provider.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.Handler
}

// Done returns a channel closed when the latest request finishes. Before any Start it is already closed.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return chat.CloneMessages(t.messages)
}

func (t *Task) UIMessages() []chat.UIMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return chat.CloneUIMessages(t.ui)
}

func (t *Task) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Text returns the first user message, the task's title.
func (t *Task) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Start 追加用户消息并在后台发起一次流式请求
// Start appends a user message and runs one streamed request in the background.
// The first Start sets the task text; later calls are follow-up answers.
func (t *Task) Start(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNoInput
	}
	if t.Aborted() {
		return ErrAborted
	}
	t.mu.Lock()
	if t.opts.Handler == nil {
		t.mu.Unlock()
		return errors.New("task: no provider handler")
	}
	if t.running {
		t.mu.Unlock()
		return ErrBusy
	}
	say := chat.SayUserFeedback
	if t.text == "" {
		t.text = text
		say = chat.SayText
	}
	t.running = true
	done := make(chan struct{})
	t.done = done
	t.messages = append(t.messages, chat.Message{Role: chat.RoleUser, Content: text})
	t.mu.Unlock()

	t.say(say, text, false)

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.ctx, cancel)
	go func() {
		defer close(done)
		defer stop()
		defer cancel()
		t.run(runCtx)
	}()
	return nil
}

func (t *Task) run(ctx context.Context) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.persist()
	}()

	t.say(chat.SayAPIReqStarted, "", false)
	history := t.fitWindow()

	stream, err := t.Handler().CreateMessage(ctx, t.opts.SystemPrompt, history)
	if err != nil {
		t.fail(err)
		return
	}
	defer stream.Close()

	var (
		content  strings.Builder
		gotUsage bool
		partial  = chat.UIMessage{Ts: chat.NowMillis(), Type: chat.TypeSay, Say: chat.SayText, Partial: true}
	)
	for ev := range stream.Events() {
		switch ev.Type {
		case provider.EventText:
			content.WriteString(ev.Text)
			partial.Text = content.String()
			t.emit(partial)
		case provider.EventUsage:
			gotUsage = true
			t.addUsage(int64(ev.InputTokens), int64(ev.OutputTokens))
		}
	}
	streamErr := stream.Err()

	reply := content.String()
	if reply != "" {
		partial.Partial = false
		t.mu.Lock()
		t.messages = append(t.messages, chat.Message{Role: chat.RoleAssistant, Content: reply})
		t.ui = append(t.ui, partial)
		t.mu.Unlock()
		t.emit(partial)
	}
	if !gotUsage {
		in := t.tok.CountRequest(t.opts.SystemPrompt, history)
		t.addUsage(int64(in), int64(t.tok.CountText(reply)))
	}

	if streamErr != nil {
		t.fail(streamErr)
		return
	}
	if t.Aborted() {
		return
	}
	t.say(chat.SayCompletion, "", false)
}

// fitWindow 超出上下文窗口时截断历史（保留首条消息）
// fitWindow truncates the history, keeping the first message, when it exceeds the context window
func (t *Task) fitWindow() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, cut := contextmgr.FitWindow(t.tok, t.opts.SystemPrompt, t.messages, t.opts.ContextTokenLimit)
	if cut {
		t.logger.Info("conversation truncated", "before", len(t.messages), "after", len(out))
		t.messages = out
	}
	return chat.CloneMessages(out)
}

func (t *Task) fail(err error) {
	if t.Aborted() || errors.Is(err, context.Canceled) {
		t.logger.Debug("request stopped", "error", err)
		return
	}
	t.logger.Warn("request failed", "error", err)
	t.say(chat.SayError, err.Error(), false)
}

func (t *Task) addUsage(in, out int64) {
	t.mu.Lock()
	t.usage.TokensIn += in
	t.usage.TokensOut += out
	t.mu.Unlock()
}

func (t *Task) say(kind, text string, partial bool) {
	msg := chat.UIMessage{Ts: chat.NowMillis(), Type: chat.TypeSay, Say: kind, Text: text, Partial: partial}
	t.mu.Lock()
	t.ui = append(t.ui, msg)
	t.mu.Unlock()
	t.emit(msg)
}

func (t *Task) emit(msg chat.UIMessage) {
	if t.opts.OnEvent == nil {
		return
	}
	t.opts.OnEvent(Event{TaskID: t.opts.ID, Message: msg})
}

// HistoryItem 生成任务历史条目
// HistoryItem builds the task-history entry for the current state
func (t *Task) HistoryItem() storage.HistoryItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return storage.HistoryItem{
		ID:        t.opts.ID,
		Number:    t.opts.Number,
		Ts:        t.ts,
		Task:      t.text,
		TokensIn:  t.usage.TokensIn,
		TokensOut: t.usage.TokensOut,
		Mode:      t.opts.Mode,
		Workspace: t.opts.Workspace,
		ParentID:  t.opts.ParentID,
		RootID:    t.opts.RootID,
	}
}

func (t *Task) persist() {
	if t.opts.HistorySink == nil {
		return
	}
	item := t.HistoryItem()
	if item.Task == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.opts.HistorySink.SaveTask(ctx, item, t.Messages(), t.UIMessages()); err != nil {
		t.logger.Warn("save task history failed", "error", err)
	}
}
