package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/logging"
	"rookit/internal/settings"
	"rookit/internal/webview"
)

// Options 配置一次 REPL 会话
// Options configures one REPL session
type Options struct {
	// HistoryPath 为 readline 历史文件；为空时不保存历史
	// HistoryPath is the readline history file; empty disables history
	HistoryPath string
	// TTY 为 true 时使用 readline 并在任务运行期间监听 Esc
	// TTY enables readline and the Esc watcher while a task runs
	TTY bool
	// Fd 为 TTY 模式下监听的终端描述符
	// Fd is the terminal watched in TTY mode
	Fd int

	// In 在非 TTY 模式下读取的输入，默认 os.Stdin
	// In is read in non-TTY mode; defaults to os.Stdin
	In     io.Reader
	Out    io.Writer
	I18n   *i18n.I18n
	Logger *slog.Logger

	input lineInput
}

// Loop 行式交互会话，把输入行转换为控制器消息
// Loop is a line-oriented session that turns typed lines into controller messages
type Loop struct {
	c       *webview.Controller
	opts    Options
	in      lineInput
	printer *Printer
	tr      *i18n.I18n
	logger  *slog.Logger
}

func New(c *webview.Controller, opts Options) (*Loop, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	tr := opts.I18n
	if tr == nil {
		tr = i18n.Global()
	}
	in := opts.input
	if in == nil {
		var err error
		in, err = newLineInput(opts.HistoryPath, opts.TTY, opts.In)
		if err != nil {
			logging.Or(opts.Logger).Warn("readline unavailable, using basic input", "error", err)
		}
	}
	return &Loop{
		c:       c,
		opts:    opts,
		in:      in,
		printer: NewPrinter(opts.Out, tr),
		tr:      tr,
		logger:  logging.Or(opts.Logger).With("component", "repl"),
	}, nil
}

// Run 绑定控制器并读取输入直到 EOF、/quit 或 ctx 结束
// Run binds the controller and reads lines until EOF, /quit or ctx ends
func (l *Loop) Run(ctx context.Context) error {
	defer l.in.Close()
	if err := l.c.Resolve(ctx, l.printer); err != nil {
		return err
	}
	defer l.c.Dispose()

	l.printer.Printf("%s", l.tr.T("repl.welcome"))
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := l.in.ReadLine(l.printer.Prompt())
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				l.printer.Printf("%s", l.tr.T("repl.bye"))
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := l.execute(ctx, line); quit {
			l.printer.Printf("%s", l.tr.T("repl.bye"))
			return nil
		}
	}
}

func (l *Loop) execute(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/quit", "/exit":
		return true
	case "/help":
		l.printer.Printf("%s", l.tr.T("repl.help"))
		return false
	case "/state":
		l.printState(ctx)
		return false
	case "/profiles":
		l.printProfiles()
		return false
	}

	_, hasTask := l.c.CurrentTask()
	msg, err := webview.ParseCommand(line, hasTask)
	if err != nil {
		if errors.Is(err, webview.ErrUnknownMessage) {
			l.printer.Printf("%s", l.tr.T("repl.unknown", line))
			return false
		}
		l.printer.Printf("error: %v", err)
		return false
	}
	if err := l.c.Handle(ctx, msg); err != nil {
		l.logger.Debug("message failed", "type", msg.Kind(), "error", err)
		l.printer.Printf("error: %v", err)
		return false
	}

	switch m := msg.(type) {
	case webview.NewTask, webview.AskResponse:
		l.wait(ctx)
	case webview.SwitchMode:
		l.printer.Printf("%s", l.tr.T("repl.mode", m.Mode))
	case webview.LoadAPIConfiguration, webview.LoadAPIConfigurationByID:
		name, _ := l.printer.State()[contextproxy.KeyCurrentAPIConfigName].(string)
		l.printer.Printf("%s", l.tr.T("repl.profile", name))
	}
	return false
}

// wait 阻塞到当前任务本轮结束；TTY 模式下 Esc 取消任务
// wait blocks until the current task's request finishes. In TTY mode Esc cancels it.
func (l *Loop) wait(ctx context.Context) {
	t, ok := l.c.CurrentTask()
	if !ok {
		return
	}
	if l.opts.TTY {
		w, err := startEscWatcher(l.opts.Fd, func() {
			if err := l.c.Post(ctx, webview.CancelTask{}); err != nil {
				l.logger.Warn("cancel task failed", "error", err)
			}
		})
		if err != nil {
			l.logger.Warn("esc watcher unavailable", "error", err)
		} else {
			l.printer.setRaw(true)
			defer func() {
				_ = w.Stop()
				l.printer.setRaw(false)
			}()
		}
	}
	select {
	case <-t.Done():
	case <-ctx.Done():
	}
}

func (l *Loop) printState(ctx context.Context) {
	data, err := json.MarshalIndent(l.c.GetState(ctx), "", "  ")
	if err != nil {
		l.printer.Printf("error: %v", err)
		return
	}
	l.printer.Printf("%s", data)
}

func (l *Loop) printProfiles() {
	st := l.printer.State()
	current, _ := st[contextproxy.KeyCurrentAPIConfigName].(string)
	list, _ := st[webview.StateListAPIConfigMeta].([]settings.ConfigMeta)
	var b strings.Builder
	for i, m := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := " "
		if m.Name == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s (%s) %s", marker, m.Name, m.APIProvider, m.ID)
	}
	l.printer.Printf("%s", b.String())
}
