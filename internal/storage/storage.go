package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB 本地sqlite存储：凭据槽位（settings表）与工作流运行历史（runs表）
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open 打开（必要时创建）数据库并初始化表结构
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		topic       TEXT NOT NULL,
		slide_count INTEGER NOT NULL,
		final_state TEXT NOT NULL,
		error       TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// GetSetting 读取单个配置项，不存在时ok为false
func (d *DB) GetSetting(name string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.db.QueryRow(`SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", name, err)
	}
	return value, true, nil
}

// PutSetting 写入（覆盖）单个配置项
func (d *DB) PutSetting(name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(
		`INSERT INTO settings(name, value) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", name, err)
	}
	return nil
}

// DeleteSetting 删除配置项，项不存在不算错误
func (d *DB) DeleteSetting(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(`DELETE FROM settings WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete setting %s: %w", name, err)
	}
	return nil
}

// RunRecord 一次工作流运行的归档记录
type RunRecord struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	SlideCount int       `json:"slide_count"`
	FinalState string    `json:"final_state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordRun 归档一次运行（完成或中止时各写一行）
func (d *DB) RecordRun(r RunRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.Exec(
		`INSERT INTO runs(id, topic, slide_count, final_state, error, created_at) VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET final_state = excluded.final_state, error = excluded.error`,
		r.ID, r.Topic, r.SlideCount, r.FinalState, r.Error, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns 按时间倒序返回最近的运行记录
func (d *DB) RecentRuns(limit int) ([]RunRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(
		`SELECT id, topic, slide_count, final_state, COALESCE(error, ''), created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Topic, &r.SlideCount, &r.FinalState, &r.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (d *DB) Close() error {
	return d.db.Close()
}
