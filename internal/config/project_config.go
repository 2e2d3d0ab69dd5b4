package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold 在 projectDir 下初始化项目级配置模板（./.rookit/config.json）。
// InitProjectConfigScaffold writes a project-level config scaffold (./.rookit/config.json) under projectDir.
// An existing file is left untouched and reported through the bool result.
func InitProjectConfigScaffold(projectDir string) (string, bool, error) {
	projectDir = strings.TrimSpace(projectDir)
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false, fmt.Errorf("get current working directory: %w", err)
		}
		projectDir = cwd
	}

	dir := filepath.Join(projectDir, ".rookit")
	path := filepath.Join(dir, "config.json")

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", false, fmt.Errorf("project config path is a directory: %s", path)
		}
		return path, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("mkdir .rookit: %w", err)
	}

	scaffold := Default()
	// 密钥不写入项目文件 / Keys never land in project files
	scaffold.Provider.APIKey = ""
	scaffold.Storage.BaseDir = ""
	data, err := json.MarshalIndent(scaffold, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", false, fmt.Errorf("write project config: %w", err)
	}
	return path, true, nil
}
