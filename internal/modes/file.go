package modes

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type modesFile struct {
	CustomModes []Mode `yaml:"customModes"`
}

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// LoadFile 读取项目级自定义模式文件（YAML，亦接受 JSON）；文件不存在时返回空
// LoadFile reads a project custom-modes file (YAML; JSON is accepted as well).
// A missing file yields no modes and no error.
func LoadFile(path string) ([]Mode, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read modes file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a custom-modes document, dropping invalid and duplicate entries.
func Parse(data []byte) ([]Mode, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var doc modesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse modes file: %w", err)
	}
	seen := map[string]struct{}{}
	out := make([]Mode, 0, len(doc.CustomModes))
	for _, m := range doc.CustomModes {
		m.Slug = strings.TrimSpace(m.Slug)
		m.Name = strings.TrimSpace(m.Name)
		if !slugPattern.MatchString(m.Slug) || m.Name == "" || strings.TrimSpace(m.RoleDefinition) == "" {
			continue
		}
		if _, dup := seen[m.Slug]; dup {
			continue
		}
		seen[m.Slug] = struct{}{}
		m.Source = "project"
		out = append(out, m)
	}
	return out, nil
}
