package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// I18n 国际化支持
// I18n provides internationalization support
type I18n struct {
	locale   string
	messages map[string]string
	mu       sync.RWMutex
}

var (
	global     *I18n
	globalOnce sync.Once
	globalMu   sync.RWMutex
)

// Global 返回全局 i18n 实例
// Global returns the global i18n instance
func Global() *I18n {
	globalOnce.Do(func() {
		globalMu.Lock()
		if global == nil {
			global = New("")
		}
		globalMu.Unlock()
	})
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Init 初始化全局 i18n 实例
// Init initializes the global i18n instance
func Init(locale string) {
	inst := New(locale)
	globalOnce.Do(func() {})
	globalMu.Lock()
	global = inst
	globalMu.Unlock()
}

// T 全局翻译快捷函数
// T is a global translation shortcut
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// New 创建 i18n 实例
// New creates an i18n instance
func New(locale string) *I18n {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = Normalize(locale)

	i := &I18n{
		locale:   locale,
		messages: make(map[string]string, len(EnMessages)),
	}

	// 先加载英文作为 fallback / Load English as fallback first
	for k, v := range EnMessages {
		i.messages[k] = v
	}
	if overlay, ok := catalogs[baseLanguage(locale)]; ok {
		for k, v := range overlay {
			i.messages[k] = v
		}
	}
	return i
}

var catalogs = map[string]map[string]string{
	"zh": ZhCNMessages,
}

// T 翻译函数 / Translation function
func (i *I18n) T(key string, args ...any) string {
	i.mu.RLock()
	tmpl, ok := i.messages[key]
	i.mu.RUnlock()

	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// Has 报告 key 是否存在于目录中
// Has reports whether the catalog carries key
func (i *I18n) Has(key string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.messages[key]
	return ok
}

// Locale 返回当前 locale
// Locale returns current locale
func (i *I18n) Locale() string {
	return i.locale
}

// DetectLocale 自动检测 locale
// DetectLocale auto-detects locale from environment
func DetectLocale() string {
	for _, env := range []string{"ROOKIT_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		return Normalize(v)
	}
	return "en"
}

// Normalize 将 POSIX/BCP-47 风格的 locale 归一化为 "ll" 或 "ll-RR"
// Normalize turns POSIX or BCP-47 style locales into "ll" or "ll-RR" form
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "en"
	}
	// 去掉 .UTF-8 / @euro 等后缀 / Remove .UTF-8 and @modifier suffixes
	if idx := strings.IndexAny(s, ".@"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "_", "-")
	parts := strings.SplitN(s, "-", 2)
	lang := strings.ToLower(parts[0])

	switch lang {
	case "zh":
		return "zh-CN"
	case "en":
		return "en"
	}
	if len(parts) == 1 || parts[1] == "" {
		return lang
	}
	return lang + "-" + strings.ToUpper(parts[1])
}

func baseLanguage(locale string) string {
	if idx := strings.IndexByte(locale, '-'); idx >= 0 {
		return locale[:idx]
	}
	return locale
}
