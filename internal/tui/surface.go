package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"rookit/internal/i18n"
	"rookit/internal/webview"
)

// Surface 把控制器的出站消息转发到 Bubble Tea 程序
// Surface forwards controller messages into a running Bubble Tea program
type Surface struct {
	send func(tea.Msg)

	mu      sync.Mutex
	options webview.Options
}

func NewSurface(p *tea.Program) *Surface {
	return &Surface{send: p.Send}
}

func (s *Surface) SetOptions(o webview.Options) {
	s.mu.Lock()
	s.options = o
	s.mu.Unlock()
}

func (s *Surface) Options() webview.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

func (s *Surface) PostMessage(m webview.OutboundMessage) error {
	s.send(OutboundMsg{Msg: m})
	return nil
}

// Run 启动 Bubble Tea TUI 并绑定到控制器，直到用户退出或 ctx 结束
// Run starts the TUI bound to c until the user quits or ctx ends.
// The controller is disposed on return; its tasks keep their state.
func Run(ctx context.Context, c *webview.Controller, workspace string, locale *i18n.I18n) error {
	app := NewApp(workspace, func(m webview.InboundMessage) error {
		return c.Post(ctx, m)
	}, locale)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	surface := NewSurface(p)
	defer c.Dispose()

	go func() {
		if err := c.Resolve(ctx, surface); err != nil {
			p.Send(postErrMsg{err: err})
		}
	}()
	_, err := p.Run()
	return err
}
