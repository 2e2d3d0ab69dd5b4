package modes

import (
	"fmt"
	"strings"
)

const basePrompt = `You are Roo, an AI coding assistant working inside the user's editor.

CORE BEHAVIOR
- Keep answers concise and information-dense.
- Reply in the same language as the user unless explicitly asked otherwise.
- When the task is complete, say so plainly and summarize the result.`

// PromptOptions 构建系统提示词所需的上下文
// PromptOptions carries the context used to build a system prompt
type PromptOptions struct {
	Mode               Mode
	Override           PromptComponent
	GlobalInstructions string
	WorkspaceRoot      string
	Language           string
}

// SystemPrompt 组合角色定义、基础规则与自定义说明
// SystemPrompt combines the role definition, base rules, and custom instructions
func SystemPrompt(opts PromptOptions) string {
	role := strings.TrimSpace(opts.Override.RoleDefinition)
	if role == "" {
		role = strings.TrimSpace(opts.Mode.RoleDefinition)
	}

	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\n")
	b.WriteString(basePrompt)

	if root := strings.TrimSpace(opts.WorkspaceRoot); root != "" {
		fmt.Fprintf(&b, "\n\nWORKSPACE\n- Current working directory: %s", root)
	}
	fmt.Fprintf(&b, "\n\nMODE\n- Current mode: %s (%s)", opts.Mode.Slug, opts.Mode.Name)

	var instructions []string
	if lang := strings.TrimSpace(opts.Language); lang != "" && lang != "en" {
		instructions = append(instructions, fmt.Sprintf("Language Preference: respond in %q unless the user writes in another language.", lang))
	}
	if s := strings.TrimSpace(opts.GlobalInstructions); s != "" {
		instructions = append(instructions, "Global Instructions:\n"+s)
	}
	modeInstructions := strings.TrimSpace(opts.Override.CustomInstructions)
	if modeInstructions == "" {
		modeInstructions = strings.TrimSpace(opts.Mode.CustomInstructions)
	}
	if modeInstructions != "" {
		instructions = append(instructions, "Mode-specific Instructions:\n"+modeInstructions)
	}
	if len(instructions) > 0 {
		b.WriteString("\n\nUSER'S CUSTOM INSTRUCTIONS\n")
		b.WriteString(strings.Join(instructions, "\n\n"))
	}
	return b.String()
}
