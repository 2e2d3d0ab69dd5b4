package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"rookit/internal/config"
	"rookit/internal/contextproxy"
	"rookit/internal/i18n"
	"rookit/internal/logging"
	"rookit/internal/modes"
	"rookit/internal/provider"
	"rookit/internal/settings"
	"rookit/internal/storage"
	"rookit/internal/webview"
)

// Options 调用方提供的进程级参数
// Options carries process-level inputs from the caller
type Options struct {
	// Workspace 覆盖配置中的工作区根目录
	// Workspace overrides the configured workspace root
	Workspace string
	Version   string
	// Stderr 接收宿主错误提示，默认 os.Stderr
	// Stderr receives host error notices; defaults to os.Stderr
	Stderr io.Writer
}

// Result 与界面无关的构建结果，供 main 选择 TUI 或 REPL
// Result is UI-agnostic; main uses it to pick the TUI or the REPL
type Result struct {
	Controller    *webview.Controller
	Backend       storage.Backend
	Modes         *modes.Registry
	Registry      *webview.Registry
	I18n          *i18n.I18n
	Host          *Host
	WorkspaceRoot string
	Logger        *slog.Logger
}

// Close releases the storage backend and the log file.
func (r *Result) Close() error {
	err := r.Backend.Close()
	logging.Close()
	return err
}

// Build 按顺序初始化日志、语言、存储、设置、模式与控制器；调用方负责 Close
// Build initializes logging, locale, storage, settings, modes and the controller in that order.
// Mode file watching stops with ctx. The caller must Close the result.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	root, err := resolveWorkspaceRoot(cfg, opts.Workspace)
	if err != nil {
		return nil, err
	}

	if err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := logging.L()

	locale := cfg.UI.Locale
	if locale == "" {
		locale = i18n.DetectLocale()
	}
	i18n.Init(locale)
	tr := i18n.Global()

	backend, err := openBackend(cfg)
	if err != nil {
		logging.Close()
		return nil, err
	}

	proxy := contextproxy.New(backend, backend, contextproxy.WithLogger(logger))
	mgr := settings.NewManager(backend, settings.WithLogger(logger))
	seed := seedSettings(cfg)
	if err := mgr.Init(ctx, seed); err != nil {
		_ = backend.Close()
		logging.Close()
		return nil, fmt.Errorf("init settings: %w", err)
	}

	reg := modes.NewRegistry(modesPath(root, cfg.Runtime.ModesFile), logger)
	if err := reg.Load(); err != nil {
		logger.Warn("custom modes not loaded", "path", modesPath(root, cfg.Runtime.ModesFile), "error", err)
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	host := NewHost(cfg, root, stderr, logger)
	controllers := webview.NewRegistry()
	c := webview.New(webview.Config{
		Proxy:    proxy,
		Settings: mgr,
		Host:     host,
		Modes:    reg,
		History:  backend,
		Registry: controllers,
		Transport: provider.Transport{
			TimeoutMS:  cfg.Provider.TimeoutMS,
			MaxRetries: cfg.Provider.MaxRetries,
		},
		Seed:              seed,
		Version:           opts.Version,
		RenderContext:     cfg.UI.RenderContext,
		URIScheme:         cfg.UI.URIScheme,
		ExtensionRoot:     cfg.Storage.BaseDir,
		ContextTokenLimit: cfg.Runtime.ContextTokenLimit,
		InboxSize:         cfg.Runtime.InboxSize,
		I18n:              tr,
		Logger:            logger,
	})
	if err := c.Sync(ctx); err != nil {
		_ = backend.Close()
		logging.Close()
		return nil, fmt.Errorf("sync configuration: %w", err)
	}

	reg.OnChange(func(custom []modes.Mode) {
		logger.Info("custom modes reloaded", "count", len(custom))
		// 只刷新可见实例 / only the visible controller is refreshed
		visible, ok := controllers.Visible()
		if !ok {
			logger.Debug("state refresh skipped", "reason", "no visible controller")
			return
		}
		if err := visible.Post(ctx, webview.WebviewDidLaunch{}); err != nil {
			logger.Debug("state refresh skipped", "error", err)
		}
	})
	if cfg.Runtime.WatchModes {
		if err := reg.Watch(ctx); err != nil {
			logger.Warn("mode file watch disabled", "error", err)
		}
	}

	logger.Info("bootstrap complete", "workspace", root, "backend", cfg.Storage.Backend, "locale", tr.Locale())
	return &Result{
		Controller:    c,
		Backend:       backend,
		Modes:         reg,
		Registry:      controllers,
		I18n:          tr,
		Host:          host,
		WorkspaceRoot: root,
		Logger:        logger,
	}, nil
}
