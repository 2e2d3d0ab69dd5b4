package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ImportStateFile 将导出的全局状态 JSON（{key: value}）导入 StateStore，已存在的键不覆盖
// ImportStateFile imports an exported global-state JSON object ({key: value}) into store.
// Keys already present in store are kept; the number of imported keys is returned.
func ImportStateFile(ctx context.Context, path string, store StateStore) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read state file: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse state file: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	imported := 0
	for _, key := range keys {
		if _, exists, err := store.GetState(ctx, key); err != nil {
			return imported, err
		} else if exists {
			continue
		}
		if err := store.UpdateState(ctx, key, entries[key]); err != nil {
			return imported, fmt.Errorf("import %q: %w", key, err)
		}
		imported++
	}
	return imported, nil
}
