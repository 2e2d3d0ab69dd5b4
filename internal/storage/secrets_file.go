package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SecretsFile 以本地 JSON 文件保存密钥（0600，原子替换）
// SecretsFile persists secrets to a local JSON file (mode 0600, replaced atomically).
//
// Secrets never flow back to the UI in plaintext; callers expose only derived
// flags such as "apiKeySet".
type SecretsFile struct {
	path string
	mu   sync.Mutex
}

type secretsDoc struct {
	SchemaVersion int               `json:"schema_version"`
	Secrets       map[string]string `json:"secrets,omitempty"`
}

func NewSecretsFile(path string) *SecretsFile {
	return &SecretsFile{path: filepath.Clean(strings.TrimSpace(path))}
}

func (s *SecretsFile) Path() string {
	return s.path
}

func (s *SecretsFile) GetSecret(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Secrets[key]
	if !ok {
		return "", false, nil
	}
	return v, true, nil
}

func (s *SecretsFile) StoreSecret(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("missing secret key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	if doc.Secrets == nil {
		doc.Secrets = make(map[string]string)
	}
	doc.Secrets[key] = value
	return s.saveLocked(doc)
}

func (s *SecretsFile) DeleteSecret(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := doc.Secrets[key]; !ok {
		return nil
	}
	delete(doc.Secrets, key)
	return s.saveLocked(doc)
}

func (s *SecretsFile) loadLocked() (*secretsDoc, error) {
	if s.path == "" || s.path == "." {
		return nil, errors.New("missing secrets path")
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &secretsDoc{SchemaVersion: 1}, nil
		}
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	var doc secretsDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = 1
	}
	return &doc, nil
}

func (s *SecretsFile) saveLocked(doc *secretsDoc) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	if len(doc.Secrets) == 0 {
		doc.Secrets = nil
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// WithSecrets 用独立的密钥存储替换 base 的密钥部分
// WithSecrets returns a Backend that keeps base for state and history but routes secrets to secrets
func WithSecrets(base Backend, secrets SecretStore) Backend {
	return &splitBackend{Backend: base, secrets: secrets}
}

type splitBackend struct {
	Backend
	secrets SecretStore
}

func (b *splitBackend) GetSecret(ctx context.Context, key string) (string, bool, error) {
	return b.secrets.GetSecret(ctx, key)
}

func (b *splitBackend) StoreSecret(ctx context.Context, key, value string) error {
	return b.secrets.StoreSecret(ctx, key, value)
}

func (b *splitBackend) DeleteSecret(ctx context.Context, key string) error {
	return b.secrets.DeleteSecret(ctx, key)
}
