package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestImportStateFile(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.UpdateState(ctx, "mode", json.RawMessage(`"ask"`)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "globalState.json")
	doc := `{"mode": "architect", "writeDelayMs": 250, "customModePrompts": {"code": {"roleDefinition": "x"}}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := ImportStateFile(ctx, path, store)
	if err != nil {
		t.Fatalf("ImportStateFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("imported=%d, want 2", n)
	}
	raw, _, _ := store.GetState(ctx, "mode")
	if string(raw) != `"ask"` {
		t.Fatalf("existing key overwritten: %s", raw)
	}
	raw, _, _ = store.GetState(ctx, "writeDelayMs")
	if string(raw) != "250" {
		t.Fatalf("writeDelayMs=%s, want 250", raw)
	}
}

func TestImportStateFile_Missing(t *testing.T) {
	n, err := ImportStateFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"), NewMemoryStore())
	if err != nil || n != 0 {
		t.Fatalf("missing file n=%d err=%v", n, err)
	}
}
