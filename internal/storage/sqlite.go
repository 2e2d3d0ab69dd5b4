package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rookit/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Backend using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS global_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS secrets (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_history (
		id          TEXT PRIMARY KEY,
		number      INTEGER NOT NULL DEFAULT 0,
		ts          INTEGER NOT NULL,
		task        TEXT NOT NULL DEFAULT '',
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		mode        TEXT NOT NULL DEFAULT '',
		workspace   TEXT NOT NULL DEFAULT '',
		parent_id   TEXT NOT NULL DEFAULT '',
		root_id     TEXT NOT NULL DEFAULT '',
		ui_messages TEXT NOT NULL DEFAULT '[]',
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL REFERENCES task_history(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		UNIQUE(task_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_task_messages_task ON task_messages(task_id, seq);
	CREATE INDEX IF NOT EXISTS idx_task_history_ts ON task_history(ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path 数据库文件路径 / Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Global State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM global_state WHERE key=?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get state %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

func (s *SQLiteStore) UpdateState(ctx context.Context, key string, value json.RawMessage) error {
	if value == nil {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM global_state WHERE key=?", key); err != nil {
			return fmt.Errorf("delete state %q: %w", key, err)
		}
		return nil
	}
	if !json.Valid(value) {
		return fmt.Errorf("update state %q: value is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), nowUTC())
	if err != nil {
		return fmt.Errorf("update state %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) StateKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM global_state ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan state key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// --- Secrets ---

func (s *SQLiteStore) GetSecret(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM secrets WHERE key=?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get secret: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) StoreSecret(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, nowUTC())
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSecret(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM secrets WHERE key=?", key); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// --- Task History ---

func (s *SQLiteStore) SaveTask(ctx context.Context, item HistoryItem, messages []chat.Message, ui []chat.UIMessage) error {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if item.Ts == 0 {
		item.Ts = chat.NowMillis()
	}
	uiJSON := "[]"
	if len(ui) > 0 {
		data, err := json.Marshal(ui)
		if err != nil {
			return fmt.Errorf("marshal ui messages: %w", err)
		}
		uiJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_history (id, number, ts, task, tokens_in, tokens_out, mode, workspace, parent_id, root_id, ui_messages, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number=excluded.number, ts=excluded.ts, task=excluded.task,
			tokens_in=excluded.tokens_in, tokens_out=excluded.tokens_out,
			mode=excluded.mode, workspace=excluded.workspace,
			parent_id=excluded.parent_id, root_id=excluded.root_id,
			ui_messages=excluded.ui_messages, updated_at=excluded.updated_at`,
		item.ID, item.Number, item.Ts, item.Task, item.TokensIn, item.TokensOut,
		item.Mode, item.Workspace, item.ParentID, item.RootID, uiJSON, nowUTC())
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	// 清除旧消息 / Clear old messages
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_messages WHERE task_id=?", item.ID); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_messages (task_id, seq, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		if _, err := stmt.ExecContext(ctx, item.ID, i, msg.Role, msg.Content); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListTasks(ctx context.Context, limit int) ([]HistoryItem, error) {
	query := `
		SELECT id, number, ts, task, tokens_in, tokens_out, mode, workspace, parent_id, root_id
		FROM task_history ORDER BY ts DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []HistoryItem
	for rows.Next() {
		var item HistoryItem
		if err := rows.Scan(&item.ID, &item.Number, &item.Ts, &item.Task, &item.TokensIn,
			&item.TokensOut, &item.Mode, &item.Workspace, &item.ParentID, &item.RootID); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) LoadTask(ctx context.Context, id string) (HistoryItem, []chat.Message, []chat.UIMessage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return HistoryItem{}, nil, nil, fmt.Errorf("task id is empty")
	}
	var (
		item   HistoryItem
		uiJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, ts, task, tokens_in, tokens_out, mode, workspace, parent_id, root_id, ui_messages
		FROM task_history WHERE id=?`, id).Scan(&item.ID, &item.Number, &item.Ts, &item.Task,
		&item.TokensIn, &item.TokensOut, &item.Mode, &item.Workspace, &item.ParentID, &item.RootID, &uiJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HistoryItem{}, nil, nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return HistoryItem{}, nil, nil, fmt.Errorf("load task: %w", err)
	}

	var ui []chat.UIMessage
	if uiJSON != "" && uiJSON != "[]" {
		if err := json.Unmarshal([]byte(uiJSON), &ui); err != nil {
			return HistoryItem{}, nil, nil, fmt.Errorf("decode ui messages: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM task_messages WHERE task_id=? ORDER BY seq`, id)
	if err != nil {
		return HistoryItem{}, nil, nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return item, messages, ui, rows.Err()
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM task_history WHERE id=?", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
