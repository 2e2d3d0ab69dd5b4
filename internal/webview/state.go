package webview

import (
	"context"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/settings"
	"rookit/internal/storage"
)

// State 推送给界面的完整状态快照
// State is the full snapshot pushed to the UI
type State map[string]any

// 快照附加键 / Extra snapshot keys
const (
	StateAPIConfiguration  = "apiConfiguration"
	StateListAPIConfigMeta = "listApiConfigMeta"
	StateModeAPIConfigs    = "modeApiConfigs"
	StateCustomModes       = "customModes"
	StateVersion           = "version"
	StateRenderContext     = "renderContext"
	StateURIScheme         = "uriScheme"
	StateClineMessages     = "clineMessages"
	StateCurrentTaskID     = "currentTaskId"
	StateTaskStackSize     = "taskStackSize"
	StateTaskHistory       = "taskHistory"
	StateCwd               = "cwd"
	StateAPIKeySet         = "apiKeySet"
)

const taskHistoryLimit = 100

// APIConfiguration 快照中的当前配置档，不含密钥
// APIConfiguration is the active profile as it appears in a snapshot; it carries no secrets
type APIConfiguration struct {
	settings.ProviderSettings
	APIKeySet bool `json:"apiKeySet"`
}

// GetState 从持久化状态重新计算快照；读取失败回退为默认值
// GetState recomputes the snapshot from persisted state. Read failures degrade to defaults.
func (c *Controller) GetState(ctx context.Context) State {
	st := State(c.proxy.Export(ctx))

	active := c.activeConfig(ctx)
	st[StateAPIConfiguration] = APIConfiguration{
		ProviderSettings: active.Redacted(),
		APIKeySet:        active.APIKey != "",
	}

	list, err := c.settings.ListConfig(ctx)
	if err != nil {
		c.logger.Warn("list configurations failed", "error", err)
		list = []settings.ConfigMeta{}
	}
	st[StateListAPIConfigMeta] = list

	bindings, err := c.settings.GetModeConfigs(ctx)
	if err != nil {
		c.logger.Warn("read mode bindings failed", "error", err)
		bindings = map[string]string{}
	}
	st[StateModeAPIConfigs] = bindings

	st[StateCustomModes] = c.customModes()
	st[contextproxy.KeyLanguage] = c.language(ctx)
	st[StateVersion] = c.opts.Version
	st[StateRenderContext] = c.opts.RenderContext
	st[StateURIScheme] = c.opts.URIScheme

	messages := []chat.UIMessage{}
	currentID := ""
	if t, ok := c.CurrentTask(); ok {
		messages = t.UIMessages()
		currentID = t.ID()
	}
	st[StateClineMessages] = messages
	st[StateCurrentTaskID] = currentID
	st[StateTaskStackSize] = c.stack.Size()
	st[StateTaskHistory] = c.taskHistory(ctx)

	cwd := ""
	if root, ok := c.host.WorkspaceRoot(); ok {
		cwd = root
	}
	st[StateCwd] = cwd
	return st
}

// language 优先使用 language 设置，否则取宿主语言
// language prefers the language setting and otherwise uses the host locale
func (c *Controller) language(ctx context.Context) string {
	if lang := c.proxy.GetString(ctx, contextproxy.KeyLanguage); lang != "" {
		return i18n.Normalize(lang)
	}
	if lang := c.host.Language(); lang != "" {
		return i18n.Normalize(lang)
	}
	return "en"
}

func (c *Controller) taskHistory(ctx context.Context) []storage.HistoryItem {
	if c.history == nil {
		return []storage.HistoryItem{}
	}
	items, err := c.history.ListTasks(ctx, taskHistoryLimit)
	if err != nil {
		c.logger.Warn("list task history failed", "error", err)
		return []storage.HistoryItem{}
	}
	if items == nil {
		items = []storage.HistoryItem{}
	}
	return items
}
