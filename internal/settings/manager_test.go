package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rookit/internal/logging"
	"rookit/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryStore()
	n := 0
	m := NewManager(mem,
		WithLogger(logging.Discard()),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	if err := m.Init(context.Background(), ProviderSettings{APIProvider: " OpenAI ", APIModelID: "gpt-4o-mini"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, mem
}

func TestInitCreatesDefaultProfile(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	list, err := m.ListConfig(ctx)
	if err != nil {
		t.Fatalf("ListConfig: %v", err)
	}
	if len(list) != 1 || list[0].Name != DefaultConfigName || list[0].ID != "id-1" {
		t.Fatalf("ListConfig=%+v", list)
	}
	if list[0].APIProvider != ProviderOpenAI {
		t.Fatalf("APIProvider=%q, want normalized openai", list[0].APIProvider)
	}
	name, _ := m.CurrentName(ctx)
	if name != DefaultConfigName {
		t.Fatalf("CurrentName=%q", name)
	}

	// 二次 Init 不覆盖 / A second Init keeps existing data
	if err := m.Init(ctx, ProviderSettings{APIProvider: "anthropic"}); err != nil {
		t.Fatalf("Init again: %v", err)
	}
	list, _ = m.ListConfig(ctx)
	if len(list) != 1 || list[0].APIProvider != ProviderOpenAI {
		t.Fatalf("second Init changed profiles: %+v", list)
	}
}

func TestSaveConfigKeepsID(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.SaveConfig(ctx, "claude", ProviderSettings{APIProvider: "anthropic", APIKey: "sk-a"}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	list, _ := m.ListConfig(ctx)
	if len(list) != 2 || list[0].Name != "claude" || list[0].ID != "id-2" {
		t.Fatalf("ListConfig=%+v", list)
	}

	if err := m.SaveConfig(ctx, "claude", ProviderSettings{APIProvider: "anthropic", APIModelID: "claude-sonnet"}); err != nil {
		t.Fatalf("SaveConfig update: %v", err)
	}
	cfg, name, err := m.LoadConfigByID(ctx, "id-2")
	if err != nil {
		t.Fatalf("LoadConfigByID: %v", err)
	}
	if name != "claude" || cfg.APIModelID != "claude-sonnet" {
		t.Fatalf("LoadConfigByID=%+v name=%q", cfg, name)
	}
	if err := m.SaveConfig(ctx, "  ", ProviderSettings{}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("empty name err=%v", err)
	}
}

func TestSaveConfigEmptyKeyKeepsStoredKey(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if err := m.SaveConfig(ctx, "keyed", ProviderSettings{APIProvider: "openai", APIKey: "sk-keep"}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	stored, err := m.LoadConfig(ctx, "keyed")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	edited := stored.Redacted()
	edited.APIModelID = "gpt-4o"
	if err := m.SaveConfig(ctx, "keyed", edited); err != nil {
		t.Fatalf("SaveConfig redacted: %v", err)
	}
	cfg, _ := m.LoadConfig(ctx, "keyed")
	if cfg.APIKey != "sk-keep" || cfg.APIModelID != "gpt-4o" {
		t.Fatalf("after redacted save=%+v, want key sk-keep model gpt-4o", cfg)
	}

	if err := m.SaveConfig(ctx, "keyed", ProviderSettings{APIProvider: "openai", ClearAPIKey: true}); err != nil {
		t.Fatalf("SaveConfig clear: %v", err)
	}
	cfg, _ = m.LoadConfig(ctx, "keyed")
	if cfg.APIKey != "" || cfg.ClearAPIKey {
		t.Fatalf("after clear=%+v, want no key", cfg)
	}

	if err := m.SaveConfig(ctx, "fresh", ProviderSettings{APIProvider: "openai"}); err != nil {
		t.Fatalf("SaveConfig fresh: %v", err)
	}
	if cfg, _ := m.LoadConfig(ctx, "fresh"); cfg.APIKey != "" {
		t.Fatalf("new profile apiKey=%q, want empty", cfg.APIKey)
	}
}

func TestLoadConfigMarksCurrent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_ = m.SaveConfig(ctx, "second", ProviderSettings{APIProvider: "openai"})

	if _, err := m.LoadConfig(ctx, "second"); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if name, _ := m.CurrentName(ctx); name != "second" {
		t.Fatalf("CurrentName=%q, want second", name)
	}
	if _, err := m.LoadConfig(ctx, "missing"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("missing err=%v, want ErrConfigNotFound", err)
	}
	if _, _, err := m.LoadConfigByID(ctx, "nope"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("missing id err=%v, want ErrConfigNotFound", err)
	}
}

func TestRenameConfig(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_ = m.SaveConfig(ctx, "other", ProviderSettings{})

	if err := m.RenameConfig(ctx, DefaultConfigName, "other"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("rename onto existing err=%v, want ErrDuplicateName", err)
	}
	if err := m.RenameConfig(ctx, DefaultConfigName, "main"); err != nil {
		t.Fatalf("RenameConfig: %v", err)
	}
	_, name, err := m.LoadConfigByID(ctx, "id-1")
	if err != nil || name != "main" {
		t.Fatalf("renamed profile name=%q err=%v", name, err)
	}
	if ok, _ := m.HasConfig(ctx, DefaultConfigName); ok {
		t.Fatal("old name still present")
	}
}

func TestDeleteConfig(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.DeleteConfig(ctx, DefaultConfigName); !errors.Is(err, ErrLastConfig) {
		t.Fatalf("delete last err=%v, want ErrLastConfig", err)
	}
	_ = m.SaveConfig(ctx, "architect-profile", ProviderSettings{})
	if err := m.SetModeConfig(ctx, "architect", "id-2"); err != nil {
		t.Fatalf("SetModeConfig: %v", err)
	}
	if _, err := m.LoadConfig(ctx, "architect-profile"); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteConfig(ctx, "architect-profile"); err != nil {
		t.Fatalf("DeleteConfig: %v", err)
	}
	if _, ok, _ := m.GetModeConfigID(ctx, "architect"); ok {
		t.Fatal("binding to deleted profile should be removed")
	}
	if name, _ := m.CurrentName(ctx); name != DefaultConfigName {
		t.Fatalf("CurrentName=%q after deleting current, want default", name)
	}
	if err := m.DeleteConfig(ctx, "ghost"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("delete missing err=%v", err)
	}
}

func TestModeBindings(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, ok, err := m.GetModeConfigID(ctx, "code"); err != nil || ok {
		t.Fatalf("unbound mode ok=%v err=%v", ok, err)
	}
	if err := m.SetModeConfig(ctx, "code", "id-1"); err != nil {
		t.Fatalf("SetModeConfig: %v", err)
	}
	id, ok, err := m.GetModeConfigID(ctx, "code")
	if err != nil || !ok || id != "id-1" {
		t.Fatalf("GetModeConfigID=%q ok=%v err=%v", id, ok, err)
	}
	all, _ := m.GetModeConfigs(ctx)
	all["code"] = "tampered"
	id, _, _ = m.GetModeConfigID(ctx, "code")
	if id != "id-1" {
		t.Fatal("GetModeConfigs should return a copy")
	}
	if err := m.SetModeConfig(ctx, "", "id-1"); err == nil {
		t.Fatal("empty mode should be rejected")
	}
}

func TestPersistedInSecretStore(t *testing.T) {
	m, mem := newTestManager(t)
	ctx := context.Background()
	_ = m.SaveConfig(ctx, "keyed", ProviderSettings{APIKey: "sk-hidden"})

	if keys, _ := mem.StateKeys(ctx); len(keys) != 0 {
		t.Fatalf("profiles leaked into global state: %v", keys)
	}
	raw, ok, _ := mem.GetSecret(ctx, SecretKey)
	if !ok || raw == "" {
		t.Fatal("profiles not persisted in the secret store")
	}

	reopened := NewManager(mem, WithLogger(logging.Discard()))
	cfg, err := reopened.LoadConfig(ctx, "keyed")
	if err != nil || cfg.APIKey != "sk-hidden" {
		t.Fatalf("reopened LoadConfig=%+v err=%v", cfg, err)
	}

	if err := reopened.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	list, _ := reopened.ListConfig(ctx)
	if len(list) != 0 {
		t.Fatalf("ListConfig after reset=%+v", list)
	}
}

func TestRedacted(t *testing.T) {
	s := ProviderSettings{APIProvider: "openai", APIKey: "sk"}
	if s.Redacted().APIKey != "" || s.APIKey != "sk" {
		t.Fatal("Redacted should clear the key on a copy only")
	}
}
