package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rookit/internal/logging"
	"rookit/internal/storage"
)

// SecretKey 配置档集合在密钥存储中的键
// SecretKey is the secret-store key holding the serialized profile set
const SecretKey = "roo_cline_config_api_config"

// DefaultConfigName is the name of the profile created on first run.
const DefaultConfigName = "default"

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrDuplicateName  = errors.New("configuration name already exists")
	ErrLastConfig     = errors.New("cannot delete the last configuration")
	ErrInvalidName    = errors.New("configuration name is empty")
)

// Manager 命名配置档存储；每个配置档有稳定 ID 与唯一名称
// Manager stores named configuration profiles, each with a stable ID and a unique name.
//
// The whole profile set, including API keys, is persisted as one JSON document
// in the secret store. All operations are serialized.
type Manager struct {
	secrets storage.SecretStore
	logger  *slog.Logger
	newID   func() string
	mu      sync.Mutex
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIDGenerator overrides the profile ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

func NewManager(secrets storage.SecretStore, opts ...Option) *Manager {
	m := &Manager{
		secrets: secrets,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Or(m.logger).With("component", "settings")
	return m
}

// Init 首次运行时以 seed 创建默认配置档，并为缺少 ID 的旧记录补 ID
// Init creates the default profile from seed on first run and backfills IDs on legacy records
func (m *Manager) Init(ctx context.Context, seed ProviderSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, found, err := m.load(ctx)
	if err != nil {
		return err
	}
	if !found {
		doc = &document{
			CurrentAPIConfigName: DefaultConfigName,
			APIConfigs: map[string]record{
				DefaultConfigName: {ID: m.newID(), ProviderSettings: seed.Normalized()},
			},
		}
		m.logger.Info("created default configuration profile")
		return m.save(ctx, doc)
	}

	dirty := false
	for name, rec := range doc.APIConfigs {
		if strings.TrimSpace(rec.ID) == "" {
			rec.ID = m.newID()
			doc.APIConfigs[name] = rec
			dirty = true
		}
	}
	if dirty {
		return m.save(ctx, doc)
	}
	return nil
}

// ListConfig 按名称排序列出所有配置档
// ListConfig lists every profile ordered by name
func (m *Manager) ListConfig(ctx context.Context) ([]ConfigMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return nil, err
	}
	return listMeta(doc), nil
}

// SaveConfig 新建或更新配置档；已存在的配置档保留其 ID，
// 传入空密钥时保留已存储的密钥，除非设置了 ClearAPIKey
// SaveConfig creates or updates a profile. An existing profile keeps its ID.
// An empty APIKey keeps the stored key unless ClearAPIKey is set.
func (m *Manager) SaveConfig(ctx context.Context, name string, cfg ProviderSettings) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return err
	}
	cfg = cfg.Normalized()
	id := ""
	if existing, ok := doc.APIConfigs[name]; ok {
		id = existing.ID
		if cfg.APIKey == "" && !cfg.ClearAPIKey {
			cfg.APIKey = existing.APIKey
		}
	}
	if id == "" {
		id = m.newID()
	}
	cfg.ClearAPIKey = false
	doc.APIConfigs[name] = record{ID: id, ProviderSettings: cfg}
	return m.save(ctx, doc)
}

// LoadConfig 按名称加载配置档并将其设为当前配置档
// LoadConfig returns the profile called name and marks it current
func (m *Manager) LoadConfig(ctx context.Context, name string) (ProviderSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return ProviderSettings{}, err
	}
	rec, ok := doc.APIConfigs[strings.TrimSpace(name)]
	if !ok {
		return ProviderSettings{}, fmt.Errorf("load %q: %w", name, ErrConfigNotFound)
	}
	doc.CurrentAPIConfigName = strings.TrimSpace(name)
	if err := m.save(ctx, doc); err != nil {
		return ProviderSettings{}, err
	}
	return rec.ProviderSettings, nil
}

// LoadConfigByID 按 ID 加载配置档并返回其名称
// LoadConfigByID returns the profile with the given ID together with its name, and marks it current
func (m *Manager) LoadConfigByID(ctx context.Context, id string) (ProviderSettings, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return ProviderSettings{}, "", err
	}
	name, rec, ok := findByID(doc, id)
	if !ok {
		return ProviderSettings{}, "", fmt.Errorf("load id %q: %w", id, ErrConfigNotFound)
	}
	doc.CurrentAPIConfigName = name
	if err := m.save(ctx, doc); err != nil {
		return ProviderSettings{}, "", err
	}
	return rec.ProviderSettings, name, nil
}

// DeleteConfig 删除配置档及指向它的模式绑定；最后一个配置档不可删除
// DeleteConfig removes a profile and any mode bindings to it. The last profile cannot be deleted.
func (m *Manager) DeleteConfig(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return err
	}
	rec, ok := doc.APIConfigs[name]
	if !ok {
		return fmt.Errorf("delete %q: %w", name, ErrConfigNotFound)
	}
	if len(doc.APIConfigs) <= 1 {
		return ErrLastConfig
	}
	delete(doc.APIConfigs, name)
	for mode, id := range doc.ModeAPIConfigs {
		if id == rec.ID {
			delete(doc.ModeAPIConfigs, mode)
		}
	}
	if doc.CurrentAPIConfigName == name {
		doc.CurrentAPIConfigName = listMeta(doc)[0].Name
	}
	return m.save(ctx, doc)
}

// RenameConfig 重命名配置档，ID 保持不变
// RenameConfig renames a profile; its ID is unchanged
func (m *Manager) RenameConfig(ctx context.Context, oldName, newName string) error {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return err
	}
	rec, ok := doc.APIConfigs[oldName]
	if !ok {
		return fmt.Errorf("rename %q: %w", oldName, ErrConfigNotFound)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := doc.APIConfigs[newName]; exists {
		return fmt.Errorf("rename to %q: %w", newName, ErrDuplicateName)
	}
	delete(doc.APIConfigs, oldName)
	doc.APIConfigs[newName] = rec
	if doc.CurrentAPIConfigName == oldName {
		doc.CurrentAPIConfigName = newName
	}
	return m.save(ctx, doc)
}

// HasConfig reports whether a profile called name exists.
func (m *Manager) HasConfig(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return false, err
	}
	_, ok := doc.APIConfigs[strings.TrimSpace(name)]
	return ok, nil
}

// CurrentName returns the name of the last activated profile.
func (m *Manager) CurrentName(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return "", err
	}
	return doc.CurrentAPIConfigName, nil
}

// GetModeConfigID 返回模式绑定的配置档 ID
// GetModeConfigID returns the profile ID bound to mode
func (m *Manager) GetModeConfigID(ctx context.Context, mode string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := doc.ModeAPIConfigs[strings.TrimSpace(mode)]
	return id, ok && id != "", nil
}

// SetModeConfig 将模式绑定到配置档 ID
// SetModeConfig binds mode to the profile ID
func (m *Manager) SetModeConfig(ctx context.Context, mode, id string) error {
	mode = strings.TrimSpace(mode)
	id = strings.TrimSpace(id)
	if mode == "" || id == "" {
		return fmt.Errorf("set mode config: mode and id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return err
	}
	if doc.ModeAPIConfigs == nil {
		doc.ModeAPIConfigs = make(map[string]string)
	}
	doc.ModeAPIConfigs[mode] = id
	return m.save(ctx, doc)
}

// GetModeConfigs returns a copy of every mode binding.
func (m *Manager) GetModeConfigs(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.mustLoad(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(doc.ModeAPIConfigs))
	for k, v := range doc.ModeAPIConfigs {
		out[k] = v
	}
	return out, nil
}

// ResetAll 删除全部配置档
// ResetAll deletes every profile; the next Init starts over
func (m *Manager) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.secrets.DeleteSecret(ctx, SecretKey); err != nil {
		return fmt.Errorf("reset configurations: %w", err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context) (*document, bool, error) {
	raw, ok, err := m.secrets.GetSecret(ctx, SecretKey)
	if err != nil {
		return nil, false, fmt.Errorf("read configurations: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode configurations: %w", err)
	}
	if doc.APIConfigs == nil {
		doc.APIConfigs = make(map[string]record)
	}
	return &doc, true, nil
}

// mustLoad 未初始化时返回空集合
// mustLoad yields an empty set when Init has not run yet
func (m *Manager) mustLoad(ctx context.Context) (*document, error) {
	doc, found, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		doc = &document{APIConfigs: make(map[string]record)}
	}
	return doc, nil
}

func (m *Manager) save(ctx context.Context, doc *document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode configurations: %w", err)
	}
	if err := m.secrets.StoreSecret(ctx, SecretKey, string(data)); err != nil {
		return fmt.Errorf("persist configurations: %w", err)
	}
	return nil
}

func listMeta(doc *document) []ConfigMeta {
	out := make([]ConfigMeta, 0, len(doc.APIConfigs))
	for name, rec := range doc.APIConfigs {
		out = append(out, ConfigMeta{ID: rec.ID, Name: name, APIProvider: rec.APIProvider})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func findByID(doc *document, id string) (string, record, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", record{}, false
	}
	for name, rec := range doc.APIConfigs {
		if rec.ID == id {
			return name, rec, true
		}
	}
	return "", record{}, false
}
