package repl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/webview"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// Printer 以纯文本渲染控制器消息的界面实现
// Printer is a plain-text surface: it streams assistant text and prints errors.
// State snapshots are kept for the prompt and for /state.
type Printer struct {
	out   *crlfWriter
	tr    *i18n.I18n
	color bool

	mu        sync.Mutex
	options   webview.Options
	state     webview.State
	streamTs  int64
	printed   int
	announced string
	lastError string
}

func NewPrinter(out io.Writer, tr *i18n.I18n) *Printer {
	if tr == nil {
		tr = i18n.Global()
	}
	return &Printer{out: &crlfWriter{out: out}, tr: tr, color: useColor()}
}

func (p *Printer) SetOptions(o webview.Options) {
	p.mu.Lock()
	p.options = o
	p.mu.Unlock()
}

func (p *Printer) PostMessage(m webview.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch m.Type {
	case webview.OutState:
		p.state = m.State
	case webview.OutError:
		p.lastError = m.Error
		text := m.Text
		if text == "" {
			text = m.Error
		}
		p.line(ansiRed, "error: "+text)
	case webview.OutPartialMessage:
		if m.PartialMessage != nil {
			p.message(*m.PartialMessage)
		}
	}
	return nil
}

func (p *Printer) message(msg chat.UIMessage) {
	switch msg.Say {
	case chat.SayText:
		if !msg.Partial && msg.Ts != p.streamTs {
			// 用户输入已由终端回显 / the task text was already echoed by the terminal
			return
		}
		if msg.Ts != p.streamTs {
			p.streamTs, p.printed = msg.Ts, 0
		}
		if len(msg.Text) > p.printed {
			fmt.Fprint(p.out, msg.Text[p.printed:])
			p.printed = len(msg.Text)
		}
		if !msg.Partial {
			fmt.Fprintln(p.out)
			p.streamTs, p.printed = 0, 0
		}
	case chat.SayAPIReqStarted:
		id, _ := p.state[webview.StateCurrentTaskID].(string)
		if id != "" && id != p.announced {
			p.announced = id
			size, _ := p.state[webview.StateTaskStackSize].(int)
			p.line(ansiDim, p.tr.T("repl.task_started", shortID(id), size))
		}
	case chat.SayError:
		p.endStream()
		p.line(ansiRed, "error: "+msg.Text)
	case chat.SayCompletion:
		p.endStream()
		id, _ := p.state[webview.StateCurrentTaskID].(string)
		p.line(ansiGreen, p.tr.T("repl.task_finished", shortID(id)))
	}
}

func (p *Printer) endStream() {
	if p.streamTs != 0 {
		fmt.Fprintln(p.out)
		p.streamTs, p.printed = 0, 0
	}
}

func (p *Printer) line(color, text string) {
	if p.color {
		fmt.Fprintf(p.out, "%s%s%s\n", color, text, ansiReset)
		return
	}
	fmt.Fprintln(p.out, text)
}

// Printf writes a notice line in dim color.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.line(ansiDim, fmt.Sprintf(format, args...))
}

// State returns the most recent snapshot.
func (p *Printer) State() webview.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Prompt 形如 "[mode] profile> "
// Prompt renders "[mode] profile> " from the latest snapshot
func (p *Printer) Prompt() string {
	st := p.State()
	mode, _ := st[contextproxy.KeyMode].(string)
	profile, _ := st[contextproxy.KeyCurrentAPIConfigName].(string)
	prompt := fmt.Sprintf("[%s] %s> ", mode, profile)
	if p.color {
		return ansiGreen + prompt + ansiReset
	}
	return prompt
}

func (p *Printer) setRaw(raw bool) { p.out.raw.Store(raw) }

// crlfWriter 在终端处于 raw 模式时把 '\n' 转换为 "\r\n"
// crlfWriter rewrites bare '\n' as "\r\n" while the terminal is in raw mode
type crlfWriter struct {
	out io.Writer
	raw atomic.Bool
}

func (w *crlfWriter) Write(b []byte) (int, error) {
	if !w.raw.Load() {
		return w.out.Write(b)
	}
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	if _, err := io.WriteString(w.out, strings.ReplaceAll(s, "\n", "\r\n")); err != nil {
		return 0, err
	}
	return len(b), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func useColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}
