package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"rookit/internal/chat"
	"rookit/internal/storage"
)

// RenderMessage 渲染一条任务消息；api_req_started 等内部消息返回空串
// RenderMessage renders one task message. Bookkeeping messages such as api_req_started render as "".
func RenderMessage(msg chat.UIMessage, fromAssistant bool, theme Theme, width int) string {
	if width <= 0 {
		width = 80
	}
	switch msg.Say {
	case chat.SayText:
		if fromAssistant {
			return renderBody(msg.Text, theme, width)
		}
		return theme.UserStyle.Render("> ") + wrap(msg.Text, width-2)
	case chat.SayUserFeedback:
		return theme.UserStyle.Render("> ") + wrap(msg.Text, width-2)
	case chat.SayError:
		return theme.ErrorStyle.Render("✗ " + wrap(msg.Text, width-2))
	case chat.SayCompletion:
		return theme.DoneStyle.Render("✓ done")
	}
	return ""
}

// RenderTranscript 按顺序渲染消息；api_req_started 之后的 text 消息属于助手
// RenderTranscript renders msgs in order. A text message following api_req_started is the assistant's reply.
func RenderTranscript(msgs []chat.UIMessage, theme Theme, width int) string {
	var b strings.Builder
	expectReply := false
	for _, m := range msgs {
		fromAssistant := false
		switch m.Say {
		case chat.SayAPIReqStarted:
			expectReply = true
		case chat.SayText:
			fromAssistant = expectReply
			expectReply = false
		case chat.SayUserFeedback:
			expectReply = false
		}
		if s := RenderMessage(m, fromAssistant, theme, width); s != "" {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBody(text string, theme Theme, width int) string {
	text = strings.TrimRight(text, "\n")
	if looksLikeDiff(text) {
		return RenderDiff(text, theme)
	}
	return theme.AssistantStyle.Render(wrap(text, width))
}

func wrap(text string, width int) string {
	if width <= 4 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = runewidth.Wrap(l, width)
	}
	return strings.Join(lines, "\n")
}

func looksLikeDiff(text string) bool {
	return strings.Contains(text, "\n@@ ") || strings.HasPrefix(text, "@@ ") || strings.HasPrefix(text, "--- ")
}

// RenderDiffLine 为 diff 行添加颜色
// RenderDiffLine colorizes a diff line
func RenderDiffLine(line string, theme Theme) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return theme.MutedStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return theme.DiffHunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return theme.DiffAddStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return theme.DiffDelStyle.Render(line)
	}
	return line
}

func RenderDiff(diff string, theme Theme) string {
	lines := strings.Split(diff, "\n")
	for i, l := range lines {
		lines[i] = RenderDiffLine(l, theme)
	}
	return strings.Join(lines, "\n")
}

// RenderHistory 渲染任务历史列表，每行截断到 width
// RenderHistory renders the task history, one line per task truncated to width
func RenderHistory(items []storage.HistoryItem, theme Theme, width int) string {
	if len(items) == 0 {
		return theme.MutedStyle.Render("  -")
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		meta := fmt.Sprintf("#%d %s ↑%d ↓%d ", it.Number, it.Mode, it.TokensIn, it.TokensOut)
		task := strings.ReplaceAll(it.Task, "\n", " ")
		line := meta + task
		lines = append(lines, runewidth.Truncate(line, width, "…"))
	}
	return strings.Join(lines, "\n")
}
