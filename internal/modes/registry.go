package modes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"rookit/internal/logging"
)

// Registry 持有当前的自定义模式，并可在文件变化时自动重载
// Registry holds the current custom modes and can reload them when the file changes
type Registry struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	custom   []Mode
	onChange []func([]Mode)
}

func NewRegistry(path string, logger *slog.Logger) *Registry {
	return &Registry{
		path:   path,
		logger: logging.Or(logger).With("component", "modes"),
	}
}

// Load 重新读取模式文件；解析失败时保留旧值
// Load rereads the modes file. On parse failure the previous modes are kept.
func (r *Registry) Load() error {
	custom, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.custom = custom
	handlers := append([]func([]Mode){}, r.onChange...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(custom)
	}
	return nil
}

// Custom returns a copy of the loaded custom modes.
func (r *Registry) Custom() []Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Mode(nil), r.custom...)
}

func (r *Registry) All() []Mode {
	return All(r.Custom())
}

func (r *Registry) Resolve(slug string) (Mode, bool) {
	return Resolve(slug, r.Custom())
}

// OnChange registers fn to run after every successful reload.
func (r *Registry) OnChange(fn func([]Mode)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// Watch 监视模式文件所在目录，直到 ctx 结束
// Watch observes the directory holding the modes file until ctx is done
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(r.path)
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(100 * time.Millisecond)
			case <-debounce:
				debounce = nil
				if err := r.Load(); err != nil {
					r.logger.Warn("reload custom modes failed", "path", r.path, "error", err)
					continue
				}
				r.logger.Info("custom modes reloaded", "path", r.path, "count", len(r.Custom()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("modes watcher error", "error", err)
			}
		}
	}()
	return nil
}
