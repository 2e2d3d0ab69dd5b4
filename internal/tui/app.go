package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/modes"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/webview"
)

// PanelID 面板标识
// PanelID identifies a panel
type PanelID int

const (
	PanelChat PanelID = iota
	PanelSession
)

// OutboundMsg 控制器推送的消息
// OutboundMsg carries a message posted by the controller
type OutboundMsg struct{ Msg webview.OutboundMessage }

// postErrMsg 入站消息投递失败 / delivering an inbound message failed
type postErrMsg struct{ err error }

// PostFunc 将入站消息交给控制器
// PostFunc hands an inbound message to the controller
type PostFunc func(webview.InboundMessage) error

// App Bubble Tea 主 Model
// App is the main Bubble Tea model. It renders controller snapshots and
// turns keystrokes into inbound messages.
type App struct {
	width  int
	height int

	activePanel PanelID
	chatView    viewport.Model
	sessionView viewport.Model
	input       textarea.Model
	post        PostFunc

	// 最近一次快照 / Latest snapshot
	mode        string
	profile     string
	provider    string
	model       string
	taskID      string
	stackSize   int
	transcript  []chat.UIMessage
	history     []storage.HistoryItem
	configs     []settings.ConfigMeta
	bindings    map[string]string
	customModes []modes.Mode

	streaming  bool
	streamText string
	lastError  string
	workspace  string

	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(workspace string, post PostFunc, locale *i18n.I18n) App {
	if locale == nil {
		locale = i18n.Global()
	}
	ta := textarea.New()
	ta.Placeholder = locale.T("input.placeholder")
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return App{
		activePanel: PanelChat,
		input:       ta,
		post:        post,
		mode:        modes.DefaultSlug,
		workspace:   workspace,
		theme:       DarkTheme(),
		keys:        DefaultKeyMap(),
		locale:      locale,
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.Cancel):
			return a, a.send(webview.CancelTask{})
		case key.Matches(msg, a.keys.NewTask):
			a.streaming, a.streamText = false, ""
			return a, a.send(webview.ClearTask{})
		case key.Matches(msg, a.keys.NextMode):
			return a, a.send(webview.SwitchMode{Mode: modes.Next(a.mode, a.customModes)})
		case key.Matches(msg, a.keys.SwitchPanel):
			a.activePanel = (a.activePanel + 1) % 2
			return a, nil
		case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown):
			var cmd tea.Cmd
			a.chatView, cmd = a.chatView.Update(msg)
			return a, cmd
		case key.Matches(msg, a.keys.Submit):
			return a.submit()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case OutboundMsg:
		a.apply(msg.Msg)
		return a, nil

	case postErrMsg:
		a.lastError = msg.err.Error()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	a.input.Reset()
	if text == "" {
		return a, nil
	}
	if text == "/quit" {
		return a, tea.Quit
	}
	inbound, err := webview.ParseCommand(text, a.taskID != "")
	if err != nil {
		a.lastError = err.Error()
		return a, nil
	}
	a.lastError = ""
	return a, a.send(inbound)
}

// send 在命令中投递，避免阻塞 Update
// send delivers msg from a command so Update never blocks on the controller inbox
func (a App) send(msg webview.InboundMessage) tea.Cmd {
	post := a.post
	if post == nil {
		return nil
	}
	return func() tea.Msg {
		if err := post(msg); err != nil {
			return postErrMsg{err: err}
		}
		return nil
	}
}

func (a *App) apply(msg webview.OutboundMessage) {
	switch msg.Type {
	case webview.OutState:
		a.applyState(msg.State)
	case webview.OutPartialMessage:
		if msg.PartialMessage == nil {
			return
		}
		pm := *msg.PartialMessage
		if pm.Say == chat.SayText && pm.Partial {
			a.streaming = true
			a.streamText = pm.Text
		} else if pm.Say == chat.SayCompletion || pm.Say == chat.SayError {
			a.streaming = false
			a.streamText = ""
		}
	case webview.OutListAPIConfig:
		a.configs = msg.ListAPIConfig
	case webview.OutError:
		a.lastError = msg.Text
		if a.lastError == "" {
			a.lastError = msg.Error
		}
	}
	a.refresh()
}

func (a *App) applyState(st webview.State) {
	if st == nil {
		return
	}
	if v, ok := st[contextproxy.KeyMode].(string); ok && v != "" {
		a.mode = v
	}
	a.profile, _ = st[contextproxy.KeyCurrentAPIConfigName].(string)
	if api, ok := st[webview.StateAPIConfiguration].(webview.APIConfiguration); ok {
		a.provider = api.APIProvider
		a.model = api.APIModelID
	}
	a.taskID, _ = st[webview.StateCurrentTaskID].(string)
	a.stackSize, _ = st[webview.StateTaskStackSize].(int)
	a.transcript, _ = st[webview.StateClineMessages].([]chat.UIMessage)
	a.history, _ = st[webview.StateTaskHistory].([]storage.HistoryItem)
	a.configs, _ = st[webview.StateListAPIConfigMeta].([]settings.ConfigMeta)
	a.bindings, _ = st[webview.StateModeAPIConfigs].(map[string]string)
	a.customModes, _ = st[webview.StateCustomModes].([]modes.Mode)
	if cwd, ok := st[webview.StateCwd].(string); ok && cwd != "" {
		a.workspace = cwd
	}
	if a.taskID == "" {
		a.streaming, a.streamText = false, ""
	}
}

func (a *App) relayout() {
	panelHeight := a.height - 8
	if panelHeight < 3 {
		panelHeight = 3
	}
	width := a.mainWidth()
	a.chatView = viewport.New(width, panelHeight)
	a.sessionView = viewport.New(width, panelHeight)
	a.input.SetWidth(width - 4)
	a.refresh()
}

func (a *App) refresh() {
	width := a.mainWidth()
	chatText := RenderTranscript(a.transcript, a.theme, width)
	if a.streaming && a.streamText != "" {
		if chatText != "" {
			chatText += "\n\n"
		}
		chatText += renderBody(a.streamText, a.theme, width)
	}
	a.chatView.SetContent(chatText)
	a.chatView.GotoBottom()
	a.sessionView.SetContent(a.renderSession(width))
}

func (a App) sidebarWidth() int {
	if a.width < 80 {
		return 0
	}
	w := a.width * 25 / 100
	if w < 20 {
		w = 20
	}
	if w > 40 {
		w = 40
	}
	return w
}

func (a App) mainWidth() int {
	w := a.width - a.sidebarWidth()
	if a.sidebarWidth() > 0 {
		w--
	}
	if w < 10 {
		w = 10
	}
	return w
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}
	sidebarWidth := a.sidebarWidth()
	mainWidth := a.mainWidth()

	inputHeight := 5
	panelHeight := a.height - inputHeight - 2
	if panelHeight < 3 {
		panelHeight = 3
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		a.renderTabs(),
		a.renderActivePanel(mainWidth, panelHeight),
		a.theme.InputStyle.Width(mainWidth).Render(a.input.View()),
	)
	if sidebarWidth > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, a.renderSidebar(sidebarWidth, a.height-1))
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar(a.width))
}

func (a App) renderTabs() string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelChat, a.locale.T("panel.chat")},
		{PanelSession, a.locale.T("panel.session")},
	}
	parts := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height)
	if a.activePanel == PanelSession {
		return style.Render(a.sessionView.View())
	}
	if len(a.transcript) == 0 && !a.streaming {
		return style.Render(a.theme.MutedStyle.Render("  " + a.locale.T("status.no_task")))
	}
	return style.Render(a.chatView.View())
}

// renderSession 配置档、模式绑定与任务历史
// renderSession lists profiles, mode bindings and task history
func (a App) renderSession(width int) string {
	var parts []string
	parts = append(parts, a.theme.TitleStyle.Render(a.locale.T("sidebar.profile")))
	for _, c := range a.configs {
		marker := "  "
		if c.Name == a.profile {
			marker = "• "
		}
		parts = append(parts, fmt.Sprintf("%s%s (%s)", marker, c.Name, c.APIProvider))
	}
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(a.locale.T("sidebar.mode")))
	names := make(map[string]string, len(a.configs))
	for _, c := range a.configs {
		names[c.ID] = c.Name
	}
	slugs := make([]string, 0, len(a.bindings))
	for slug := range a.bindings {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		name := names[a.bindings[slug]]
		if name == "" {
			name = a.bindings[slug]
		}
		parts = append(parts, fmt.Sprintf("  %s → %s", slug, name))
	}
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(a.locale.T("sidebar.tasks")))
	parts = append(parts, RenderHistory(a.history, a.theme, width))
	return strings.Join(parts, "\n")
}

func (a App) renderSidebar(width, height int) string {
	var parts []string
	parts = append(parts, a.theme.TitleStyle.Render(" rookit"), "")

	section := func(title, value string) {
		parts = append(parts, a.theme.TitleStyle.Render(" "+title), "  "+value, "")
	}
	section(a.locale.T("sidebar.mode"), a.mode)
	section(a.locale.T("sidebar.profile"), a.profile)
	model := a.model
	if a.provider != "" {
		model = a.provider + "/" + model
	}
	section(a.locale.T("sidebar.model"), model)
	section(a.locale.T("sidebar.tasks"), fmt.Sprintf("%d", a.stackSize))
	if in, out, ok := a.currentUsage(); ok {
		section(a.locale.T("sidebar.tokens"), fmt.Sprintf("↑%d ↓%d", in, out))
	}

	parts = append(parts, a.theme.MutedStyle.Render(" "+a.locale.T("keys.tab")))
	parts = append(parts, a.theme.MutedStyle.Render(" "+a.locale.T("keys.esc")))
	parts = append(parts, a.theme.MutedStyle.Render(" "+a.locale.T("keys.ctrl_n")))
	parts = append(parts, a.theme.MutedStyle.Render(" "+a.locale.T("keys.ctrl_c")))

	return a.theme.SidebarStyle.Width(width).Height(height).Render(strings.Join(parts, "\n"))
}

func (a App) currentUsage() (int64, int64, bool) {
	if a.taskID == "" {
		return 0, 0, false
	}
	for _, it := range a.history {
		if it.ID == a.taskID {
			return it.TokensIn, it.TokensOut, true
		}
	}
	return 0, 0, false
}

func (a App) renderStatusBar(width int) string {
	status := a.locale.T("status.ready")
	switch {
	case a.lastError != "":
		status = a.theme.ErrorStyle.Render(a.lastError)
	case a.streaming:
		status = a.locale.T("status.streaming")
	case a.taskID == "":
		status = a.locale.T("status.no_task")
	}
	left := fmt.Sprintf(" %s · %s · %s", a.mode, a.model, status)
	right := fmt.Sprintf("%s  ", a.workspace)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}
