package modes

import (
	"sort"
	"strings"
)

// DefaultSlug 默认模式 / DefaultSlug is the mode used when none is set
const DefaultSlug = "code"

// Mode 一个对话模式：角色定义与可用能力组
// Mode is one conversation mode: a role definition plus the capability groups it may use
type Mode struct {
	Slug               string   `yaml:"slug" json:"slug"`
	Name               string   `yaml:"name" json:"name"`
	RoleDefinition     string   `yaml:"roleDefinition" json:"roleDefinition"`
	CustomInstructions string   `yaml:"customInstructions,omitempty" json:"customInstructions,omitempty"`
	Groups             []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	Source             string   `yaml:"-" json:"source,omitempty"`
}

// PromptComponent 用户对某个模式提示词的覆盖（customModePrompts 的值）
// PromptComponent is a user override of one mode's prompt (a customModePrompts value)
type PromptComponent struct {
	RoleDefinition     string `json:"roleDefinition,omitempty"`
	CustomInstructions string `json:"customInstructions,omitempty"`
}

func Builtins() map[string]Mode {
	code := Mode{
		Slug:           "code",
		Name:           "Code",
		RoleDefinition: "You are a highly skilled software engineer with extensive knowledge in many programming languages, frameworks, design patterns, and best practices.",
		Groups:         []string{"read", "edit", "browser", "command", "mcp"},
	}
	architect := Mode{
		Slug:           "architect",
		Name:           "Architect",
		RoleDefinition: "You are an experienced technical leader who is inquisitive and an excellent planner. Your goal is to gather information and get context to create a detailed plan for accomplishing the user's task.",
		Groups:         []string{"read", "browser", "mcp"},
	}
	ask := Mode{
		Slug:           "ask",
		Name:           "Ask",
		RoleDefinition: "You are a knowledgeable technical assistant focused on answering questions and providing information about software development, technology, and related topics.",
		Groups:         []string{"read", "browser", "mcp"},
	}
	debug := Mode{
		Slug:           "debug",
		Name:           "Debug",
		RoleDefinition: "You are an expert software debugger specializing in systematic problem diagnosis and resolution.",
		Groups:         []string{"read", "edit", "browser", "command", "mcp"},
	}

	out := map[string]Mode{}
	for _, m := range []Mode{code, architect, ask, debug} {
		m.Source = "builtin"
		out[m.Slug] = m
	}
	return out
}

// Resolve 在自定义与内置模式中查找 slug；自定义优先，未知 slug 回退到默认模式
// Resolve looks slug up in custom then builtin modes; an unknown slug falls back to the default mode.
// The bool result reports whether slug itself was found.
func Resolve(slug string, custom []Mode) (Mode, bool) {
	slug = strings.TrimSpace(slug)
	for _, m := range custom {
		if m.Slug == slug {
			return m, true
		}
	}
	builtins := Builtins()
	if m, ok := builtins[slug]; ok {
		return m, true
	}
	return builtins[DefaultSlug], false
}

// All 返回全部模式：内置在前（固定顺序），自定义在后；同名自定义覆盖内置
// All returns builtin modes in fixed order followed by custom ones; a custom mode replaces a builtin with the same slug
func All(custom []Mode) []Mode {
	overrides := make(map[string]Mode, len(custom))
	for _, m := range custom {
		overrides[m.Slug] = m
	}
	builtins := Builtins()
	order := []string{"code", "architect", "ask", "debug"}
	out := make([]Mode, 0, len(order)+len(custom))
	for _, slug := range order {
		if m, ok := overrides[slug]; ok {
			out = append(out, m)
			delete(overrides, slug)
			continue
		}
		out = append(out, builtins[slug])
	}
	rest := make([]Mode, 0, len(overrides))
	for _, m := range custom {
		if _, ok := overrides[m.Slug]; ok {
			rest = append(rest, m)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Slug < rest[j].Slug })
	return append(out, rest...)
}

// Next returns the slug following current in All order, wrapping around.
func Next(current string, custom []Mode) string {
	all := All(custom)
	for i, m := range all {
		if m.Slug == current {
			return all[(i+1)%len(all)].Slug
		}
	}
	return DefaultSlug
}
