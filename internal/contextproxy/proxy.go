package contextproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"rookit/internal/logging"
	"rookit/internal/storage"
)

// StorageError 存储写入失败
// StorageError reports a failed write to the host storage
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("context proxy %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Proxy 全局状态与密钥存储之上的类型化访问层
// Proxy is the typed access layer over the global-state and secret stores.
//
// Reads never fail: unset keys and storage read errors both yield the
// documented default. Writes to the same key are serialized; writes to
// different keys proceed independently.
type Proxy struct {
	state   storage.StateStore
	secrets storage.SecretStore
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Proxy)

// WithLogger sets the logger used for degraded reads.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

func New(state storage.StateStore, secrets storage.SecretStore, opts ...Option) *Proxy {
	p := &Proxy{
		state:   state,
		secrets: secrets,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Or(p.logger).With("component", "context_proxy")
	return p
}

func (p *Proxy) keyLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// Raw 返回 key 的 JSON 值；未设置或读取失败时返回默认值
// Raw returns the JSON value of key, falling back to its default when unset or unreadable.
// Keys without a default yield nil.
func (p *Proxy) Raw(ctx context.Context, key string) json.RawMessage {
	v, ok, err := p.state.GetState(ctx, key)
	if err != nil {
		p.logger.Warn("global state read failed, using default", "key", key, "error", err)
		ok = false
	}
	if ok {
		return v
	}
	def, _ := Default(key)
	return def
}

// Get decodes the value of key into a generic Go value.
func (p *Proxy) Get(ctx context.Context, key string) any {
	var out any
	p.decode(ctx, key, &out)
	return out
}

func (p *Proxy) GetBool(ctx context.Context, key string) bool {
	var out bool
	p.decode(ctx, key, &out)
	return out
}

func (p *Proxy) GetInt(ctx context.Context, key string) int {
	var out float64
	p.decode(ctx, key, &out)
	return int(out)
}

func (p *Proxy) GetFloat(ctx context.Context, key string) float64 {
	var out float64
	p.decode(ctx, key, &out)
	return out
}

func (p *Proxy) GetString(ctx context.Context, key string) string {
	var out string
	p.decode(ctx, key, &out)
	return out
}

// GetInto decodes the value of key into dst. Corrupt stored values fall back to the default.
func (p *Proxy) GetInto(ctx context.Context, key string, dst any) {
	p.decode(ctx, key, dst)
}

func (p *Proxy) decode(ctx context.Context, key string, dst any) {
	raw := p.Raw(ctx, key)
	if len(raw) == 0 {
		return
	}
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return
	}
	p.logger.Warn("global state value has unexpected type, using default", "key", key, "error", err)
	if def, ok := Default(key); ok {
		_ = json.Unmarshal(def, dst)
	}
}

// Set 写入单个键；密钥键写入密钥存储；nil 值恢复默认
// Set writes one key. Secret keys are routed to the secret store; a nil value restores the default.
func (p *Proxy) Set(ctx context.Context, key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &StorageError{Op: "set", Key: key, Err: fmt.Errorf("empty key")}
	}
	if IsSecretKey(key) {
		s, ok := value.(string)
		if value != nil && !ok {
			return &StorageError{Op: "set", Key: key, Err: fmt.Errorf("secret value must be a string, got %T", value)}
		}
		return p.StoreSecret(ctx, key, s)
	}

	var data json.RawMessage
	if value != nil {
		encoded, err := json.Marshal(value)
		if err != nil {
			return &StorageError{Op: "encode", Key: key, Err: err}
		}
		data = encoded
	}

	l := p.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if err := p.state.UpdateState(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// SetMany 按键名顺序写入多个键，首个失败即返回
// SetMany writes several keys in sorted key order and stops at the first failure
func (p *Proxy) SetMany(ctx context.Context, entries map[string]any) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Set(ctx, k, entries[k]); err != nil {
			return err
		}
	}
	return nil
}

// GetSecret returns the secret stored under key. Read failures are logged and reported as unset.
func (p *Proxy) GetSecret(ctx context.Context, key string) (string, bool) {
	v, ok, err := p.secrets.GetSecret(ctx, key)
	if err != nil {
		p.logger.Warn("secret read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

// HasSecret reports whether a non-empty secret is stored under key.
func (p *Proxy) HasSecret(ctx context.Context, key string) bool {
	v, ok := p.GetSecret(ctx, key)
	return ok && v != ""
}

// StoreSecret stores value under key; an empty value deletes the secret.
func (p *Proxy) StoreSecret(ctx context.Context, key, value string) error {
	if value == "" {
		return p.DeleteSecret(ctx, key)
	}
	l := p.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if err := p.secrets.StoreSecret(ctx, key, value); err != nil {
		return &StorageError{Op: "store secret", Key: key, Err: err}
	}
	return nil
}

func (p *Proxy) DeleteSecret(ctx context.Context, key string) error {
	l := p.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if err := p.secrets.DeleteSecret(ctx, key); err != nil {
		return &StorageError{Op: "delete secret", Key: key, Err: err}
	}
	return nil
}

// Export 返回所有全局键（含默认值），不含任何密钥
// Export returns every global key with defaults applied. Secrets are never included.
func (p *Proxy) Export(ctx context.Context) map[string]any {
	out := make(map[string]any, len(defaults))
	for _, key := range GlobalKeys() {
		out[key] = p.Get(ctx, key)
	}
	return out
}

// Reset 清除所有全局状态与已知密钥
// Reset clears every stored global key and every known secret
func (p *Proxy) Reset(ctx context.Context) error {
	stored, err := p.state.StateKeys(ctx)
	if err != nil {
		return &StorageError{Op: "list", Key: "*", Err: err}
	}
	seen := make(map[string]struct{}, len(stored)+len(defaults))
	keys := make([]string, 0, len(stored)+len(defaults))
	for _, k := range append(stored, GlobalKeys()...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := p.Set(ctx, k, nil); err != nil {
			return err
		}
	}
	for _, k := range SecretKeys() {
		if err := p.DeleteSecret(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
