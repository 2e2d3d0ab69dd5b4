package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"rookit/internal/chat"
)

// MemoryStore 进程内存实现，用于测试与 --ephemeral 会话
// MemoryStore is the in-process Backend used by tests and ephemeral sessions
type MemoryStore struct {
	mu      sync.RWMutex
	state   map[string]json.RawMessage
	secrets map[string]string
	tasks   map[string]memoryTask
}

type memoryTask struct {
	item     HistoryItem
	messages []chat.Message
	ui       []chat.UIMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:   make(map[string]json.RawMessage),
		secrets: make(map[string]string),
		tasks:   make(map[string]memoryTask),
	}
}

func (m *MemoryStore) GetState(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (m *MemoryStore) UpdateState(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.state, key)
		return nil
	}
	if !json.Valid(value) {
		return fmt.Errorf("update state %q: value is not valid JSON", key)
	}
	m.state[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *MemoryStore) StateKeys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.state))
	for k := range m.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) GetSecret(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[key]
	return v, ok, nil
}

func (m *MemoryStore) StoreSecret(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *MemoryStore) DeleteSecret(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
	return nil
}

func (m *MemoryStore) SaveTask(_ context.Context, item HistoryItem, messages []chat.Message, ui []chat.UIMessage) error {
	if item.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if item.Ts == 0 {
		item.Ts = chat.NowMillis()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[item.ID] = memoryTask{
		item:     item,
		messages: chat.CloneMessages(messages),
		ui:       chat.CloneUIMessages(ui),
	}
	return nil
}

func (m *MemoryStore) ListTasks(_ context.Context, limit int) ([]HistoryItem, error) {
	m.mu.RLock()
	items := make([]HistoryItem, 0, len(m.tasks))
	for _, t := range m.tasks {
		items = append(items, t.item)
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Ts > items[j].Ts })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) LoadTask(_ context.Context, id string) (HistoryItem, []chat.Message, []chat.UIMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return HistoryItem{}, nil, nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t.item, chat.CloneMessages(t.messages), chat.CloneUIMessages(t.ui), nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
