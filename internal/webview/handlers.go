package webview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rookit/internal/contextproxy"
	"rookit/internal/modes"
	"rookit/internal/settings"
	"rookit/internal/task"
)

// Handle 同步处理一条入站消息，然后推送新快照
// Handle processes one inbound message to completion and then posts a fresh snapshot.
// Exactly one message is handled at a time.
func (c *Controller) Handle(ctx context.Context, msg InboundMessage) error {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	err := c.dispatch(ctx, msg)
	if serr := c.postState(ctx); serr != nil {
		c.logger.Warn("post state failed", "error", serr)
	}
	return err
}

func (c *Controller) dispatch(ctx context.Context, msg InboundMessage) error {
	switch m := msg.(type) {
	case WebviewDidLaunch:
		return nil
	case NewTask:
		return c.newTask(ctx, m.Text)
	case ClearTask:
		c.stack.PopCurrent()
		return nil
	case CancelTask:
		h, ok := c.stack.Current()
		if !ok {
			return nil
		}
		return h.Abort()
	case AskResponse:
		return c.askResponse(ctx, m.Text)
	case SwitchMode:
		return c.switchMode(ctx, m.Mode)
	case LoadAPIConfiguration:
		return c.loadConfig(ctx, m.Name)
	case LoadAPIConfigurationByID:
		return c.loadConfigByID(ctx, m.ID)
	case UpsertAPIConfiguration:
		return c.upsertConfig(ctx, m.Name, m.Config)
	case SaveAPIConfiguration:
		return c.saveConfig(ctx, m.Name, m.Config)
	case RenameAPIConfiguration:
		return c.renameConfig(ctx, m.OldName, m.NewName, m.Config)
	case DeleteAPIConfiguration:
		return c.deleteConfig(ctx, m.Name)
	case UpdatePrompt:
		return c.updatePrompt(ctx, m.Mode, m.Prompt)
	case CustomInstructions:
		return c.proxy.Set(ctx, contextproxy.KeyCustomInstructions, strings.TrimSpace(m.Text))
	case OpenProjectMcpSettings:
		return c.openProjectMcpSettings()
	case ResetState:
		return c.resetState(ctx)
	case SetBool:
		return c.proxy.Set(ctx, m.Key, m.Value)
	case SetNumber:
		return c.proxy.Set(ctx, m.Key, m.Value)
	case SetString:
		return c.proxy.Set(ctx, m.Key, m.Value)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

// newTask 清空任务栈后创建并启动新任务
// newTask clears the stack, then creates, pushes and starts a new task
func (c *Controller) newTask(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return task.ErrNoInput
	}
	c.stack.Clear()

	cfg := c.activeConfig(ctx)
	h, err := c.newHandler(cfg)
	if err != nil {
		c.reportError("provider_not_ready")
		return err
	}

	mode := c.proxy.GetString(ctx, contextproxy.KeyMode)
	root, _ := c.host.WorkspaceRoot()
	t := task.New(task.Options{
		Number:            c.nextTaskNumber(ctx),
		Handler:           h,
		SystemPrompt:      c.systemPrompt(ctx, mode, root),
		Mode:              mode,
		Workspace:         root,
		ContextTokenLimit: c.opts.ContextTokenLimit,
		HistorySink:       c.history,
		OnEvent:           c.onTaskEvent,
		Logger:            c.logger,
	})
	if err := c.stack.Push(t); err != nil {
		return err
	}
	c.logger.Info("task created", "task_id", t.ID(), "mode", mode, "provider", h.Vendor(), "model", h.Model())
	return t.Start(context.WithoutCancel(ctx), text)
}

// nextTaskNumber 任务序号在控制器内递增，首次从历史记录的最大序号起算
// nextTaskNumber counts tasks per controller, starting after the highest number in history
func (c *Controller) nextTaskNumber(ctx context.Context) int {
	if c.taskSeq == 0 && c.history != nil {
		items, err := c.history.ListTasks(ctx, 0)
		if err != nil {
			c.logger.Warn("list task history failed", "error", err)
		}
		for _, it := range items {
			c.taskSeq = max(c.taskSeq, it.Number)
		}
	}
	c.taskSeq++
	return c.taskSeq
}

func (c *Controller) askResponse(ctx context.Context, text string) error {
	t, ok := c.CurrentTask()
	if !ok {
		c.reportError("no_active_task")
		return ErrNoActiveTask
	}
	return t.Start(context.WithoutCancel(ctx), text)
}

func (c *Controller) onTaskEvent(ev task.Event) {
	msg := ev.Message
	if err := c.post(OutboundMessage{Type: OutPartialMessage, PartialMessage: &msg}); err != nil {
		c.logger.Warn("post partial message failed", "task_id", ev.TaskID, "error", err)
	}
	if msg.Partial {
		return
	}
	if err := c.postState(context.Background()); err != nil {
		c.logger.Warn("post state failed", "task_id", ev.TaskID, "error", err)
	}
}

func (c *Controller) systemPrompt(ctx context.Context, mode, root string) string {
	var prompts map[string]json.RawMessage
	c.proxy.GetInto(ctx, contextproxy.KeyCustomModePrompts, &prompts)
	return modes.SystemPrompt(modes.PromptOptions{
		Mode:               c.resolveMode(mode),
		Override:           decodePrompt(prompts[mode]),
		GlobalInstructions: c.proxy.GetString(ctx, contextproxy.KeyCustomInstructions),
		WorkspaceRoot:      root,
		Language:           c.language(ctx),
	})
}

// decodePrompt 接受对象形式或纯字符串形式的提示词覆盖
// decodePrompt accepts a prompt override either as an object or as a bare string
func decodePrompt(raw json.RawMessage) modes.PromptComponent {
	var pc modes.PromptComponent
	if len(raw) == 0 {
		return pc
	}
	if err := json.Unmarshal(raw, &pc); err == nil {
		return pc
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		pc.CustomInstructions = s
	}
	return pc
}

// switchMode 切换模式：已绑定则加载绑定的配置档，否则把当前配置档绑定到该模式
// switchMode activates the profile bound to mode, or binds the active profile to mode when there is none
func (c *Controller) switchMode(ctx context.Context, mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = modes.DefaultSlug
	}
	if err := c.proxy.Set(ctx, contextproxy.KeyMode, mode); err != nil {
		return err
	}

	id, bound, err := c.settings.GetModeConfigID(ctx, mode)
	if err != nil {
		return err
	}
	if bound {
		cfg, name, err := c.settings.LoadConfigByID(ctx, id)
		switch {
		case err == nil:
			return c.activate(ctx, name, cfg)
		case errors.Is(err, settings.ErrConfigNotFound):
			c.logger.Warn("mode bound to a deleted configuration, keeping the active one", "mode", mode, "config_id", id)
		default:
			return err
		}
	}

	current := c.proxy.GetString(ctx, contextproxy.KeyCurrentAPIConfigName)
	currentID, ok, err := c.configID(ctx, current)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Warn("active configuration not found, mode left unbound", "mode", mode, "config", current)
		return nil
	}
	return c.settings.SetModeConfig(ctx, mode, currentID)
}

func (c *Controller) loadConfig(ctx context.Context, name string) error {
	cfg, err := c.settings.LoadConfig(ctx, name)
	if err != nil {
		c.reportError("config_not_found", name)
		return err
	}
	if err := c.activate(ctx, name, cfg); err != nil {
		return err
	}
	return c.bindCurrentMode(ctx, name)
}

func (c *Controller) loadConfigByID(ctx context.Context, id string) error {
	cfg, name, err := c.settings.LoadConfigByID(ctx, id)
	if err != nil {
		c.reportError("config_not_found", id)
		return err
	}
	if err := c.activate(ctx, name, cfg); err != nil {
		return err
	}
	mode := c.proxy.GetString(ctx, contextproxy.KeyMode)
	return c.settings.SetModeConfig(ctx, mode, id)
}

// upsertConfig 保存并激活配置档，绑定到当前模式；缺少 user 时取宿主设置
// upsertConfig saves and activates a profile and binds it to the current mode.
// An empty user is filled from the host setting.
func (c *Controller) upsertConfig(ctx context.Context, name string, cfg settings.ProviderSettings) error {
	name = strings.TrimSpace(name)
	if cfg.User == "" {
		if user, ok := c.host.UserSetting("user"); ok {
			cfg.User = user
		}
	}
	if err := c.settings.SaveConfig(ctx, name, cfg); err != nil {
		return err
	}
	stored, err := c.settings.LoadConfig(ctx, name)
	if err != nil {
		return err
	}
	if err := c.activate(ctx, name, stored); err != nil {
		return err
	}
	if err := c.bindCurrentMode(ctx, name); err != nil {
		return err
	}
	return c.postConfigList(ctx)
}

func (c *Controller) saveConfig(ctx context.Context, name string, cfg settings.ProviderSettings) error {
	if err := c.settings.SaveConfig(ctx, name, cfg); err != nil {
		return err
	}
	return c.postConfigList(ctx)
}

func (c *Controller) renameConfig(ctx context.Context, oldName, newName string, cfg *settings.ProviderSettings) error {
	if err := c.settings.RenameConfig(ctx, oldName, newName); err != nil {
		if errors.Is(err, settings.ErrDuplicateName) {
			c.reportError("config_duplicate", newName)
		}
		return err
	}
	if cfg != nil {
		if err := c.settings.SaveConfig(ctx, newName, *cfg); err != nil {
			return err
		}
	}
	if c.proxy.GetString(ctx, contextproxy.KeyCurrentAPIConfigName) == strings.TrimSpace(oldName) {
		active, err := c.settings.LoadConfig(ctx, newName)
		if err != nil {
			return err
		}
		if err := c.activate(ctx, strings.TrimSpace(newName), active); err != nil {
			return err
		}
	}
	return c.postConfigList(ctx)
}

func (c *Controller) deleteConfig(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := c.settings.DeleteConfig(ctx, name); err != nil {
		if errors.Is(err, settings.ErrLastConfig) {
			c.reportError("config_last")
		}
		return err
	}
	if c.proxy.GetString(ctx, contextproxy.KeyCurrentAPIConfigName) == name {
		next, err := c.settings.CurrentName(ctx)
		if err != nil {
			return err
		}
		cfg, err := c.settings.LoadConfig(ctx, next)
		if err != nil {
			return err
		}
		if err := c.activate(ctx, next, cfg); err != nil {
			return err
		}
	}
	return c.postConfigList(ctx)
}

// updatePrompt 替换 customModePrompts 中 mode 对应的条目，其余条目保持不变
// updatePrompt replaces the customModePrompts entry for mode and keeps the others
func (c *Controller) updatePrompt(ctx context.Context, mode string, prompt json.RawMessage) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return fmt.Errorf("updatePrompt: promptMode is required")
	}
	prompts := map[string]json.RawMessage{}
	c.proxy.GetInto(ctx, contextproxy.KeyCustomModePrompts, &prompts)
	if prompts == nil {
		prompts = map[string]json.RawMessage{}
	}
	if len(prompt) == 0 || string(prompt) == "null" {
		delete(prompts, mode)
	} else {
		prompts[mode] = prompt
	}
	return c.proxy.Set(ctx, contextproxy.KeyCustomModePrompts, prompts)
}

// resetState 清除全部状态、密钥与配置档，并中止所有任务
// resetState clears global state, secrets and profiles, and aborts every task
func (c *Controller) resetState(ctx context.Context) error {
	c.stack.Clear()
	if err := c.proxy.Reset(ctx); err != nil {
		return err
	}
	if err := c.settings.ResetAll(ctx); err != nil {
		return err
	}
	if err := c.settings.Init(ctx, c.opts.Seed); err != nil {
		return err
	}
	name, err := c.settings.CurrentName(ctx)
	if err != nil {
		return err
	}
	cfg, err := c.settings.LoadConfig(ctx, name)
	if err != nil {
		return err
	}
	c.logger.Info("state reset")
	return c.activate(ctx, name, cfg)
}
