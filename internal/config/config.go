package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProviderConfig 首个配置档的种子值，以及所有适配器共享的传输参数
// ProviderConfig seeds the first configuration profile and carries transport knobs shared by every adapter
type ProviderConfig struct {
	Name       string `json:"name"`
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	TimeoutMS  int    `json:"timeout_ms"`
	MaxRetries int    `json:"max_retries"`
}

type RuntimeConfig struct {
	WorkspaceRoot     string `json:"workspace_root"`
	ContextTokenLimit int    `json:"context_token_limit"`
	InboxSize         int    `json:"inbox_size"`
	ModesFile         string `json:"modes_file"`
	WatchModes        bool   `json:"watch_modes"`
}

type UIConfig struct {
	Locale        string `json:"locale"`
	RenderContext string `json:"render_context"`
	URIScheme     string `json:"uri_scheme"`
	User          string `json:"user"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
	// Backend 选择全局状态与密钥后端：sqlite | file | memory
	// Backend selects the global-state and secrets backend: sqlite | file | memory
	Backend string `json:"backend"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Runtime  RuntimeConfig  `json:"runtime"`
	UI       UIConfig       `json:"ui"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
}

type fileRuntimeConfig struct {
	WorkspaceRoot     *string `json:"workspace_root"`
	ContextTokenLimit *int    `json:"context_token_limit"`
	InboxSize         *int    `json:"inbox_size"`
	ModesFile         *string `json:"modes_file"`
	WatchModes        *bool   `json:"watch_modes"`
}

type fileConfig struct {
	Provider *ProviderConfig    `json:"provider"`
	Runtime  *fileRuntimeConfig `json:"runtime"`
	UI       *UIConfig          `json:"ui"`
	Storage  *StorageConfig     `json:"storage"`
	Log      *LogConfig         `json:"log"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:       DefaultProviderName,
			BaseURL:    DefaultProviderBaseURL,
			Model:      DefaultProviderModel,
			TimeoutMS:  DefaultProviderTimeoutMS,
			MaxRetries: DefaultProviderMaxRetries,
		},
		Runtime: RuntimeConfig{
			ContextTokenLimit: DefaultContextTokenLimit,
			InboxSize:         DefaultInboxSize,
			ModesFile:         DefaultModesFile,
			WatchModes:        true,
		},
		UI: UIConfig{
			RenderContext: DefaultRenderContext,
			URIScheme:     DefaultURIScheme,
		},
		Storage: StorageConfig{
			BaseDir: DefaultBaseDir,
			Backend: DefaultStateBackend,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load 按 全局 → 项目 → 环境变量 的顺序合并配置
// Load merges global, then project, then environment configuration
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("ROOKIT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

// StatePath 全局状态数据库路径 / StatePath is the global-state database path
func (c Config) StatePath() string {
	return filepath.Join(c.Storage.BaseDir, "state.db")
}

// SecretsPath 文件后端的密钥文件路径 / SecretsPath is the secrets file used by the file backend
func (c Config) SecretsPath() string {
	return filepath.Join(c.Storage.BaseDir, "secrets.json")
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".rookit", "config.json"),
		filepath.Join(home, ".rookit", "config.jsonc"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"rookit.config.json",
		"rookit.config.jsonc",
		".rookit/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Runtime != nil {
		if fc.Runtime.WorkspaceRoot != nil {
			cfg.Runtime.WorkspaceRoot = *fc.Runtime.WorkspaceRoot
		}
		if fc.Runtime.ContextTokenLimit != nil {
			cfg.Runtime.ContextTokenLimit = *fc.Runtime.ContextTokenLimit
		}
		if fc.Runtime.InboxSize != nil {
			cfg.Runtime.InboxSize = *fc.Runtime.InboxSize
		}
		if fc.Runtime.ModesFile != nil {
			cfg.Runtime.ModesFile = *fc.Runtime.ModesFile
		}
		if fc.Runtime.WatchModes != nil {
			cfg.Runtime.WatchModes = *fc.Runtime.WatchModes
		}
	}
	if fc.UI != nil {
		cfg.UI = mergeUI(cfg.UI, *fc.UI)
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Log != nil {
		cfg.Log = mergeLog(cfg.Log, *fc.Log)
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.Name) != "" {
		base.Name = override.Name
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

func mergeUI(base UIConfig, override UIConfig) UIConfig {
	if strings.TrimSpace(override.Locale) != "" {
		base.Locale = override.Locale
	}
	if strings.TrimSpace(override.RenderContext) != "" {
		base.RenderContext = override.RenderContext
	}
	if strings.TrimSpace(override.URIScheme) != "" {
		base.URIScheme = override.URIScheme
	}
	if strings.TrimSpace(override.User) != "" {
		base.User = override.User
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if strings.TrimSpace(override.Backend) != "" {
		base.Backend = override.Backend
	}
	return base
}

func mergeLog(base LogConfig, override LogConfig) LogConfig {
	if strings.TrimSpace(override.Level) != "" {
		base.Level = override.Level
	}
	if strings.TrimSpace(override.Format) != "" {
		base.Format = override.Format
	}
	if strings.TrimSpace(override.File) != "" {
		base.File = override.File
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	cfg.Provider.Name = strings.ToLower(strings.TrimSpace(cfg.Provider.Name))
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = def.Provider.Name
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = 0
	}

	if cfg.Runtime.ContextTokenLimit <= 0 {
		cfg.Runtime.ContextTokenLimit = def.Runtime.ContextTokenLimit
	}
	if cfg.Runtime.InboxSize <= 0 {
		cfg.Runtime.InboxSize = def.Runtime.InboxSize
	}
	if strings.TrimSpace(cfg.Runtime.ModesFile) == "" {
		cfg.Runtime.ModesFile = def.Runtime.ModesFile
	}
	if root := strings.TrimSpace(cfg.Runtime.WorkspaceRoot); root != "" {
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("expand workspace root: %w", err)
		}
		cfg.Runtime.WorkspaceRoot = expanded
	}

	switch strings.ToLower(strings.TrimSpace(cfg.UI.RenderContext)) {
	case "sidebar", "editor":
		cfg.UI.RenderContext = strings.ToLower(strings.TrimSpace(cfg.UI.RenderContext))
	default:
		cfg.UI.RenderContext = def.UI.RenderContext
	}
	if strings.TrimSpace(cfg.UI.URIScheme) == "" {
		cfg.UI.URIScheme = def.UI.URIScheme
	}

	baseDir := strings.TrimSpace(cfg.Storage.BaseDir)
	if baseDir == "" {
		baseDir = def.Storage.BaseDir
	}
	expanded, err := expandPath(baseDir)
	if err != nil {
		return fmt.Errorf("expand storage base dir: %w", err)
	}
	cfg.Storage.BaseDir = expanded

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "sqlite", "file", "memory":
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	case "":
		cfg.Storage.Backend = def.Storage.Backend
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = def.Log.Format
	}
	if file := strings.TrimSpace(cfg.Log.File); file != "" {
		expandedLog, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("expand log file: %w", err)
		}
		cfg.Log.File = expandedLog
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("ROOKIT_PROVIDER")); v != "" {
		cfg.Provider.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_WORKSPACE_ROOT")); v != "" {
		cfg.Runtime.WorkspaceRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_CONTEXT_TOKEN_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid ROOKIT_CONTEXT_TOKEN_LIMIT: %q", v)
		}
		cfg.Runtime.ContextTokenLimit = n
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_HOME")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_STORAGE_BACKEND")); v != "" {
		cfg.Storage.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ROOKIT_USER")); v != "" {
		cfg.UI.User = v
	}

	return cfg, normalize(&cfg)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
