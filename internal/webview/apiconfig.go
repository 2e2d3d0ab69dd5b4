package webview

import (
	"context"
	"fmt"

	"rookit/internal/contextproxy"
	"rookit/internal/settings"
)

// mirrorEntries 将配置档展开为 Context Proxy 键；apiKey 进入密钥存储
// mirrorEntries flattens a profile into Context Proxy keys; apiKey goes to the secret store
func mirrorEntries(cfg settings.ProviderSettings) map[string]any {
	var temperature any
	if cfg.ModelTemperature != nil {
		temperature = *cfg.ModelTemperature
	}
	return map[string]any{
		contextproxy.KeyAPIProvider:      cfg.APIProvider,
		contextproxy.KeyAPIModelID:       cfg.APIModelID,
		contextproxy.KeyBaseURL:          cfg.BaseURL,
		contextproxy.KeyModelTemperature: temperature,
		contextproxy.KeyModelMaxTokens:   cfg.ModelMaxTokens,
		contextproxy.KeyUser:             cfg.User,
		contextproxy.SecretAPIKey:        cfg.APIKey,
	}
}

// activeConfig 从 Context Proxy 的镜像键读取当前配置档
// activeConfig reads the active profile back from the Context Proxy mirror
func (c *Controller) activeConfig(ctx context.Context) settings.ProviderSettings {
	p := c.proxy
	cfg := settings.ProviderSettings{
		APIProvider:    p.GetString(ctx, contextproxy.KeyAPIProvider),
		APIModelID:     p.GetString(ctx, contextproxy.KeyAPIModelID),
		BaseURL:        p.GetString(ctx, contextproxy.KeyBaseURL),
		ModelMaxTokens: p.GetInt(ctx, contextproxy.KeyModelMaxTokens),
		User:           p.GetString(ctx, contextproxy.KeyUser),
	}
	var temperature *float64
	p.GetInto(ctx, contextproxy.KeyModelTemperature, &temperature)
	cfg.ModelTemperature = temperature
	if key, ok := p.GetSecret(ctx, contextproxy.SecretAPIKey); ok {
		cfg.APIKey = key
	}
	return cfg
}

// activate 设为当前配置档：写入名称与镜像键，并替换当前任务的适配器
// activate makes cfg the active profile: it records the name, mirrors the settings,
// and swaps the current task's provider
func (c *Controller) activate(ctx context.Context, name string, cfg settings.ProviderSettings) error {
	if err := c.proxy.Set(ctx, contextproxy.KeyCurrentAPIConfigName, name); err != nil {
		return err
	}
	if err := c.proxy.SetMany(ctx, mirrorEntries(cfg)); err != nil {
		return err
	}
	if t, ok := c.CurrentTask(); ok {
		if h, err := c.newHandler(cfg); err == nil {
			t.SetHandler(h)
		} else {
			c.logger.Warn("provider not rebuilt for current task", "error", err)
		}
	}
	return nil
}

// bindCurrentMode 将当前模式绑定到名为 name 的配置档
// bindCurrentMode binds the current mode to the profile called name
func (c *Controller) bindCurrentMode(ctx context.Context, name string) error {
	mode := c.proxy.GetString(ctx, contextproxy.KeyMode)
	if mode == "" {
		return nil
	}
	id, ok, err := c.configID(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bind mode %q to %q: %w", mode, name, settings.ErrConfigNotFound)
	}
	return c.settings.SetModeConfig(ctx, mode, id)
}

func (c *Controller) configID(ctx context.Context, name string) (string, bool, error) {
	list, err := c.settings.ListConfig(ctx)
	if err != nil {
		return "", false, err
	}
	for _, m := range list {
		if m.Name == name {
			return m.ID, m.ID != "", nil
		}
	}
	return "", false, nil
}

func (c *Controller) postConfigList(ctx context.Context) error {
	list, err := c.settings.ListConfig(ctx)
	if err != nil {
		return err
	}
	return c.post(OutboundMessage{Type: OutListAPIConfig, ListAPIConfig: list})
}

// Sync 启动时将 Context Proxy 的镜像键与配置存储中的当前配置档对齐
// Sync aligns the Context Proxy mirror with the active profile of the settings store, at startup
func (c *Controller) Sync(ctx context.Context) error {
	name := c.proxy.GetString(ctx, contextproxy.KeyCurrentAPIConfigName)
	ok, err := c.settings.HasConfig(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		if name, err = c.settings.CurrentName(ctx); err != nil {
			return err
		}
	}
	cfg, err := c.settings.LoadConfig(ctx, name)
	if err != nil {
		return err
	}
	return c.activate(ctx, name, cfg)
}
