package webview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ProjectMcpSettingsPath 项目级 MCP 设置文件的相对路径
// ProjectMcpSettingsPath is the project-scoped MCP settings file, relative to the workspace root
var ProjectMcpSettingsPath = filepath.Join(".roo", "mcp.json")

// openProjectMcpSettings 确保 .roo/mcp.json 存在并打开；没有工作区时不触碰文件系统
// openProjectMcpSettings ensures .roo/mcp.json exists and opens it. Without a workspace it touches no files.
func (c *Controller) openProjectMcpSettings() error {
	root, ok := c.host.WorkspaceRoot()
	if !ok || root == "" {
		c.reportError("no_workspace")
		return ErrNoWorkspaceOpen
	}
	path := filepath.Join(root, ProjectMcpSettingsPath)
	if err := ensureMcpSettings(path); err != nil {
		c.reportError("create_mcp_config", err.Error())
		return err
	}
	return c.host.OpenFile(path)
}

func ensureMcpSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(map[string]any{"mcpServers": map[string]any{}}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
