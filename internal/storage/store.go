package storage

import (
	"context"
	"encoding/json"
	"errors"

	"rookit/internal/chat"
)

// ErrNotFound 记录不存在 / ErrNotFound reports a missing record
var ErrNotFound = errors.New("storage: not found")

// StateStore 全局状态键值存储；值为 JSON 编码
// StateStore is the global-state key/value store; values are JSON encoded
type StateStore interface {
	GetState(ctx context.Context, key string) (json.RawMessage, bool, error)
	// UpdateState 写入 key；value 为 nil 时删除
	// UpdateState writes key; a nil value deletes it
	UpdateState(ctx context.Context, key string, value json.RawMessage) error
	StateKeys(ctx context.Context) ([]string, error)
}

// SecretStore 密钥存储，不支持枚举
// SecretStore holds secrets and deliberately offers no enumeration
type SecretStore interface {
	GetSecret(ctx context.Context, key string) (string, bool, error)
	StoreSecret(ctx context.Context, key, value string) error
	DeleteSecret(ctx context.Context, key string) error
}

// HistoryStore 已完成任务的历史记录
// HistoryStore keeps the history of finished tasks
type HistoryStore interface {
	SaveTask(ctx context.Context, item HistoryItem, messages []chat.Message, ui []chat.UIMessage) error
	ListTasks(ctx context.Context, limit int) ([]HistoryItem, error)
	LoadTask(ctx context.Context, id string) (HistoryItem, []chat.Message, []chat.UIMessage, error)
	DeleteTask(ctx context.Context, id string) error
}

// Backend 组合了三类存储，供 bootstrap 统一关闭
// Backend bundles the three stores so bootstrap can close them together
type Backend interface {
	StateStore
	SecretStore
	HistoryStore
	Close() error
}
