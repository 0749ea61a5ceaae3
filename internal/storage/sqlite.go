package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Journal 基于 SQLite (WAL 模式) 的查询日志
// Journal is a SQLite-backed (WAL mode) log of query submissions
type Journal struct {
	db *sql.DB
}

// Open 创建并初始化 SQLite 数据库
// Open creates and initializes the journal database
func Open(dbPath string) (*Journal, error) {
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

	// 启用 WAL 模式 / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	j := &Journal{db: db}
	if err := j.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return j, nil
}

func (j *Journal) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queries (
		id                TEXT PRIMARY KEY,
		project_id        TEXT NOT NULL,
		chat_id           TEXT NOT NULL,
		model             TEXT NOT NULL DEFAULT '',
		temperature       REAL NOT NULL DEFAULT 0,
		top_p             REAL NOT NULL DEFAULT 0,
		top_k             INTEGER NOT NULL DEFAULT 0,
		frequency_penalty REAL NOT NULL DEFAULT 0,
		prompt            TEXT NOT NULL DEFAULT '',
		response          TEXT NOT NULL DEFAULT '',
		error             TEXT NOT NULL DEFAULT '',
		elapsed_ms        INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at);
	CREATE INDEX IF NOT EXISTS idx_queries_thread ON queries(project_id, chat_id, created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record 写入一条记录；ID 与时间为空时自动填充
// Record stores e, filling in the id and timestamp when empty
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO queries (id, project_id, chat_id, model, temperature, top_p, top_k,
			frequency_penalty, prompt, response, error, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.ChatID, e.Model, e.Temperature, e.TopP, e.TopK,
		e.FrequencyPenalty, e.Prompt, e.Response, e.Error, e.ElapsedMS,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert query: %w", err)
	}
	return e, nil
}

// Recent 返回最近的记录，最新的在前
// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, selectEntries+`
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForThread returns the entries of one thread, oldest first.
func (j *Journal) ForThread(ctx context.Context, projectID, chatID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, selectEntries+`
		WHERE project_id = ? AND chat_id = ?
		ORDER BY created_at ASC, rowid ASC`, projectID, chatID)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// timeLayout has a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectEntries = `
	SELECT id, project_id, chat_id, model, temperature, top_p, top_k,
		frequency_penalty, prompt, response, error, elapsed_ms, created_at
	FROM queries`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ChatID, &e.Model, &e.Temperature,
			&e.TopP, &e.TopK, &e.FrequencyPenalty, &e.Prompt, &e.Response, &e.Error,
			&e.ElapsedMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return out, nil
}
