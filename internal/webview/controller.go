package webview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/logging"
	"rookit/internal/modes"
	"rookit/internal/provider"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/task"
)

// 控制器状态 / Controller states
type Phase int

const (
	Unbound Phase = iota
	Bound
	Disposed
)

func (p Phase) String() string {
	switch p {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

const defaultInboxSize = 64

type Config struct {
	Proxy    *contextproxy.Proxy
	Settings *settings.Manager
	Host     Host

	// Modes 为 nil 时只使用内置模式
	// Modes may be nil; only builtin modes are used then
	Modes    *modes.Registry
	History  storage.HistoryStore
	Registry *Registry

	// NewHandler 为 nil 时使用 provider.Build
	// NewHandler defaults to provider.Build with Transport
	NewHandler func(settings.ProviderSettings) (provider.Handler, error)
	Transport  provider.Transport
	// Seed 在 resetState 后重建默认配置档
	// Seed rebuilds the default profile after resetState
	Seed settings.ProviderSettings

	Version           string
	RenderContext     string
	URIScheme         string
	ExtensionRoot     string
	ContextTokenLimit int
	InboxSize         int
	I18n              *i18n.I18n
	Logger            *slog.Logger
}

// Controller 将一个界面绑定到一个任务栈与 Context Proxy
// Controller binds one UI surface to one task stack and Context Proxy.
//
// Inbound messages are handled one at a time, to completion, on a single
// event goroutine started by Resolve. Handle may also be called directly.
type Controller struct {
	opts     Config
	proxy    *contextproxy.Proxy
	settings *settings.Manager
	host     Host
	history  storage.HistoryStore
	stack    *task.Stack
	tr       *i18n.I18n
	logger   *slog.Logger

	handleMu sync.Mutex
	taskSeq  int // guarded by handleMu

	mu      sync.Mutex
	phase   Phase
	surface Surface
	inbox   chan InboundMessage
	cancel  context.CancelFunc
	done    chan struct{}

	postMu sync.Mutex
}

func New(cfg Config) *Controller {
	if cfg.RenderContext == "" {
		cfg.RenderContext = "sidebar"
	}
	if cfg.URIScheme == "" {
		cfg.URIScheme = "vscode"
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	tr := cfg.I18n
	if tr == nil {
		tr = i18n.Global()
	}
	logger := logging.Or(cfg.Logger).With("component", "webview")
	return &Controller{
		opts:     cfg,
		proxy:    cfg.Proxy,
		settings: cfg.Settings,
		host:     cfg.Host,
		history:  cfg.History,
		stack:    task.NewStack(logger),
		tr:       tr,
		logger:   logger,
	}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Stack() *task.Stack { return c.stack }

// CurrentTask returns the top of the stack as a task runtime.
func (c *Controller) CurrentTask() (*task.Task, bool) {
	h, ok := c.stack.Current()
	if !ok {
		return nil, false
	}
	t, ok := h.(*task.Task)
	return t, ok
}

// Resolve 绑定界面：配置能力、启动事件循环并推送初始快照
// Resolve binds surface: it sets its options, starts the event loop, and posts an initial snapshot
func (c *Controller) Resolve(ctx context.Context, surface Surface) error {
	c.mu.Lock()
	switch c.phase {
	case Bound:
		c.mu.Unlock()
		return ErrAlreadyBound
	case Disposed:
		c.mu.Unlock()
		return ErrDisposed
	}
	roots := []string{}
	if c.opts.ExtensionRoot != "" {
		roots = append(roots, c.opts.ExtensionRoot)
	}
	surface.SetOptions(Options{EnableScripts: true, LocalResourceRoots: roots})

	loopCtx, cancel := context.WithCancel(ctx)
	c.surface = surface
	c.inbox = make(chan InboundMessage, c.opts.InboxSize)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.phase = Bound
	inbox, done := c.inbox, c.done
	c.mu.Unlock()

	if c.opts.Registry != nil {
		c.opts.Registry.add(c)
	}
	go c.loop(loopCtx, inbox, done)
	c.logger.Info("surface resolved", "render_context", c.opts.RenderContext)
	return c.postState(ctx)
}

func (c *Controller) loop(ctx context.Context, inbox <-chan InboundMessage, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			if err := c.Handle(ctx, msg); err != nil {
				c.logger.Warn("message failed", "type", msg.Kind(), "error", err)
			}
		}
	}
}

// Post 将入站消息加入队列，由事件循环处理
// Post enqueues an inbound message for the event loop
func (c *Controller) Post(ctx context.Context, msg InboundMessage) error {
	c.mu.Lock()
	phase, inbox, done := c.phase, c.inbox, c.done
	c.mu.Unlock()
	switch phase {
	case Unbound:
		return fmt.Errorf("post %s: controller not bound", msg.Kind())
	case Disposed:
		return ErrDisposed
	}
	select {
	case inbox <- msg:
		return nil
	case <-done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose 解除界面并停止事件循环；不会中止任务栈
// Dispose detaches the surface and stops the event loop. The task stack is not aborted.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.phase == Disposed {
		c.mu.Unlock()
		return
	}
	wasBound := c.phase == Bound
	c.phase = Disposed
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if wasBound {
		cancel()
		<-done
	}
	c.postMu.Lock()
	c.mu.Lock()
	c.surface = nil
	c.mu.Unlock()
	c.postMu.Unlock()

	if c.opts.Registry != nil {
		c.opts.Registry.remove(c)
	}
	c.logger.Info("surface disposed", "tasks_left", c.stack.Size())
}

func (c *Controller) post(msg OutboundMessage) error {
	c.postMu.Lock()
	defer c.postMu.Unlock()
	c.mu.Lock()
	s := c.surface
	c.mu.Unlock()
	if s == nil {
		c.logger.Debug("dropping message for detached surface", "type", msg.Type)
		return nil
	}
	return s.PostMessage(msg)
}

func (c *Controller) postState(ctx context.Context) error {
	return c.post(OutboundMessage{Type: OutState, State: c.GetState(ctx)})
}

// reportError 发送带错误代码的消息，并通过宿主显示本地化文本
// reportError posts a coded error message and shows the localized text through the host
func (c *Controller) reportError(code string, args ...any) {
	text := c.tr.T("errors."+code, args...)
	c.host.ShowError(text)
	if err := c.post(OutboundMessage{Type: OutError, Error: code, Text: text}); err != nil {
		c.logger.Warn("post error message failed", "code", code, "error", err)
	}
}

func (c *Controller) newHandler(cfg settings.ProviderSettings) (provider.Handler, error) {
	if c.opts.NewHandler != nil {
		return c.opts.NewHandler(cfg)
	}
	return provider.Build(cfg, c.opts.Transport)
}

func (c *Controller) customModes() []modes.Mode {
	if c.opts.Modes == nil {
		return []modes.Mode{}
	}
	custom := c.opts.Modes.Custom()
	if custom == nil {
		return []modes.Mode{}
	}
	return custom
}

func (c *Controller) resolveMode(slug string) modes.Mode {
	if c.opts.Modes != nil {
		m, _ := c.opts.Modes.Resolve(slug)
		return m
	}
	m, _ := modes.Resolve(slug, nil)
	return m
}
