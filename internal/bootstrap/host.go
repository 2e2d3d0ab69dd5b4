package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"rookit/internal/config"
	"rookit/internal/i18n"
	"rookit/internal/logging"
)

// Host 终端进程中的宿主能力：设置来自配置，提示写入日志与 stderr
// Host provides host capabilities inside a terminal process.
// Settings come from config. Notices are logged and also written to stderr,
// which may be io.Discard while a full-screen UI owns the terminal.
type Host struct {
	root   string
	user   string
	locale string
	logger *slog.Logger

	mu     sync.Mutex
	stderr io.Writer
	opened []string
}

func NewHost(cfg config.Config, root string, stderr io.Writer, logger *slog.Logger) *Host {
	return &Host{
		root:   root,
		user:   cfg.UI.User,
		locale: cfg.UI.Locale,
		stderr: stderr,
		logger: logging.Or(logger),
	}
}

func (h *Host) UserSetting(key string) (string, bool) {
	if key == "user" && h.user != "" {
		return h.user, true
	}
	return "", false
}

func (h *Host) WorkspaceRoot() (string, bool) { return h.root, h.root != "" }

func (h *Host) ShowError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Warn("host error notice", "message", msg)
	fmt.Fprintln(h.stderr, msg)
}

func (h *Host) Language() string {
	if h.locale != "" {
		return h.locale
	}
	return i18n.DetectLocale()
}

// OpenFile 记录路径并提示用户；终端界面内不启动外部编辑器
// OpenFile records path and tells the user where it is. No external editor is spawned.
func (h *Host) OpenFile(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, path)
	h.logger.Info("file ready for editing", "path", path)
	fmt.Fprintln(h.stderr, i18n.T("host.opened", path))
	return nil
}

// Opened returns the paths passed to OpenFile, oldest first.
func (h *Host) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}
