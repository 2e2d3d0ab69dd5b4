package bootstrap

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rookit/internal/config"
	"rookit/internal/contextproxy"
	"rookit/internal/modes"
	"rookit/internal/storage"
	"rookit/internal/webview"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.BaseDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.Backend = backend
	cfg.Provider.APIKey = "sk-test"
	cfg.UI.Locale = "en"
	cfg.Runtime.WatchModes = false
	return cfg
}

func build(t *testing.T, cfg config.Config, workspace string) (*Result, *bytes.Buffer) {
	t.Helper()
	var stderr bytes.Buffer
	res, err := Build(context.Background(), cfg, Options{Workspace: workspace, Version: "test", Stderr: &stderr})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = res.Close() })
	return res, &stderr
}

func TestBuildMissingWorkspaceFails(t *testing.T) {
	cfg := testConfig(t, "memory")
	_, err := Build(context.Background(), cfg, Options{Workspace: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("Build with a missing workspace should fail")
	}
	if !strings.Contains(err.Error(), "workspace") {
		t.Fatalf("expected workspace-related error: %v", err)
	}
}

func TestBuildMemoryBackendSeedsDefaultProfile(t *testing.T) {
	ws := t.TempDir()
	res, _ := build(t, testConfig(t, "memory"), ws)

	if _, ok := res.Backend.(*storage.MemoryStore); !ok {
		t.Fatalf("backend=%T, want *storage.MemoryStore", res.Backend)
	}
	if res.WorkspaceRoot != ws {
		t.Fatalf("WorkspaceRoot=%q, want %q", res.WorkspaceRoot, ws)
	}
	st := res.Controller.GetState(context.Background())
	if got := st[contextproxy.KeyCurrentAPIConfigName]; got != "default" {
		t.Fatalf("currentApiConfigName=%v, want default", got)
	}
	api, ok := st[webview.StateAPIConfiguration].(webview.APIConfiguration)
	if !ok {
		t.Fatalf("apiConfiguration=%T", st[webview.StateAPIConfiguration])
	}
	if !api.APIKeySet || api.APIKey != "" {
		t.Fatalf("apiConfiguration=%+v, want key set but redacted", api)
	}
	if got := st[webview.StateVersion]; got != "test" {
		t.Fatalf("version=%v, want test", got)
	}
}

func TestBuildSQLiteStatePersists(t *testing.T) {
	ws := t.TempDir()
	cfg := testConfig(t, "sqlite")
	ctx := context.Background()

	res, err := Build(ctx, cfg, Options{Workspace: ws, Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := res.Controller.Handle(ctx, webview.SwitchMode{Mode: "architect"}); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(cfg.StatePath()); err != nil {
		t.Fatalf("state db missing: %v", err)
	}

	again, _ := build(t, cfg, ws)
	if got := again.Controller.GetState(ctx)[contextproxy.KeyMode]; got != "architect" {
		t.Fatalf("mode after reopen=%v, want architect", got)
	}
}

func TestBuildFileBackendKeepsSecretsOutOfDatabase(t *testing.T) {
	cfg := testConfig(t, "file")
	res, _ := build(t, cfg, t.TempDir())

	data, err := os.ReadFile(cfg.SecretsPath())
	if err != nil {
		t.Fatalf("read secrets file: %v", err)
	}
	if !strings.Contains(string(data), "sk-test") {
		t.Fatalf("secrets file does not hold the seeded key: %s", data)
	}
	if _, ok, _ := res.Backend.GetState(context.Background(), "apiKey"); ok {
		t.Fatal("api key leaked into global state")
	}
}

func TestBuildLoadsCustomModes(t *testing.T) {
	ws := t.TempDir()
	cfg := testConfig(t, "memory")
	modes := "customModes:\n  - slug: reviewer\n    name: Reviewer\n    roleDefinition: You review diffs.\n"
	if err := os.WriteFile(filepath.Join(ws, cfg.Runtime.ModesFile), []byte(modes), 0o644); err != nil {
		t.Fatalf("write modes: %v", err)
	}
	res, _ := build(t, cfg, ws)
	if _, ok := res.Modes.Resolve("reviewer"); !ok {
		t.Fatalf("custom mode not loaded: %+v", res.Modes.Custom())
	}
	if err := res.Controller.Handle(context.Background(), webview.SwitchMode{Mode: "reviewer"}); err != nil {
		t.Fatalf("SwitchMode(reviewer): %v", err)
	}
}

func TestHostOpenFileAndErrors(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.UI.User = "alice"
	res, stderr := build(t, cfg, t.TempDir())

	if err := res.Controller.Handle(context.Background(), webview.OpenProjectMcpSettings{}); err != nil {
		t.Fatalf("OpenProjectMcpSettings: %v", err)
	}
	opened := res.Host.Opened()
	want := filepath.Join(res.WorkspaceRoot, ".roo", "mcp.json")
	if len(opened) != 1 || opened[0] != want {
		t.Fatalf("opened=%q, want [%q]", opened, want)
	}
	if !strings.Contains(stderr.String(), want) {
		t.Fatalf("stderr=%q, want mention of %s", stderr.String(), want)
	}
	if v, ok := res.Host.UserSetting("user"); !ok || v != "alice" {
		t.Fatalf("UserSetting(user)=%q,%v", v, ok)
	}
	res.Host.ShowError("boom")
	if !strings.Contains(stderr.String(), "boom\n") {
		t.Fatalf("stderr=%q, want boom", stderr.String())
	}
}

func TestHostNoticesLoggedWhenStderrDiscarded(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewHost(config.Default(), t.TempDir(), io.Discard, logger)

	h.ShowError("boom")
	if err := h.OpenFile("/tmp/notes.md"); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for _, want := range []string{"boom", "/tmp/notes.md"} {
		if !strings.Contains(logs.String(), want) {
			t.Fatalf("log=%q, want mention of %s", logs.String(), want)
		}
	}
}

type stateSurface struct {
	mu     sync.Mutex
	states []webview.State
}

func (s *stateSurface) SetOptions(webview.Options) {}

func (s *stateSurface) PostMessage(m webview.OutboundMessage) error {
	if m.Type != webview.OutState {
		return nil
	}
	s.mu.Lock()
	s.states = append(s.states, m.State)
	s.mu.Unlock()
	return nil
}

func (s *stateSurface) sawCustomMode(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		custom, _ := st[webview.StateCustomModes].([]modes.Mode)
		for _, m := range custom {
			if m.Slug == slug {
				return true
			}
		}
	}
	return false
}

func TestModesReloadRefreshesVisibleController(t *testing.T) {
	ws := t.TempDir()
	cfg := testConfig(t, "memory")
	cfg.Runtime.WatchModes = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res, err := Build(ctx, cfg, Options{Workspace: ws, Version: "test", Stderr: io.Discard})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer res.Close()

	s := &stateSurface{}
	if err := res.Controller.Resolve(ctx, s); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer res.Controller.Dispose()
	if v, ok := res.Registry.Visible(); !ok || v != res.Controller {
		t.Fatal("resolved controller should be the visible one")
	}

	modesYAML := "customModes:\n  - slug: reviewer\n    name: Reviewer\n    roleDefinition: You review diffs.\n"
	if err := os.WriteFile(filepath.Join(ws, cfg.Runtime.ModesFile), []byte(modesYAML), 0o644); err != nil {
		t.Fatalf("write modes: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !s.sawCustomMode("reviewer") {
		if time.Now().After(deadline) {
			t.Fatal("visible controller never received the reloaded modes")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestModesPath(t *testing.T) {
	tests := []struct {
		root, file, want string
	}{
		{"/ws", ".roomodes", "/ws/.roomodes"},
		{"/ws", "/etc/modes.yaml", "/etc/modes.yaml"},
		{"/ws", "", ""},
	}
	for _, tc := range tests {
		if got := modesPath(tc.root, tc.file); got != tc.want {
			t.Fatalf("modesPath(%q,%q)=%q, want %q", tc.root, tc.file, got, tc.want)
		}
	}
}
