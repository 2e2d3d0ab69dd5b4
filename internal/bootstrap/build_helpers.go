package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rookit/internal/config"
	"rookit/internal/settings"
	"rookit/internal/storage"
)

func resolveWorkspaceRoot(cfg config.Config, workspaceRoot string) (string, error) {
	root := strings.TrimSpace(workspaceRoot)
	if root == "" {
		root = strings.TrimSpace(cfg.Runtime.WorkspaceRoot)
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve workspace root: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return abs, nil
}

// openBackend 按 storage.backend 打开全局状态与密钥后端
// openBackend opens the global-state and secrets backend named by storage.backend
func openBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "file":
		db, err := storage.NewSQLiteStore(cfg.StatePath())
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return storage.WithSecrets(db, storage.NewSecretsFile(cfg.SecretsPath())), nil
	default:
		db, err := storage.NewSQLiteStore(cfg.StatePath())
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return db, nil
	}
}

func seedSettings(cfg config.Config) settings.ProviderSettings {
	return settings.ProviderSettings{
		APIProvider: cfg.Provider.Name,
		APIModelID:  cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		User:        cfg.UI.User,
	}
}

func modesPath(root, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(root, file)
}
