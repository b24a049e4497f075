package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ecosort/ecoscan/pkg/stats"
)

// stateKey is the fixed name of the single durable user-state record.
const stateKey = "user"

// PersistenceError wraps a durable-storage failure. A corrupt or missing
// record is not fatal: callers fall back to the default snapshot.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS user_state (
  name       TEXT PRIMARY KEY,
  snapshot   TEXT NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS analyses (
  id            INTEGER PRIMARY KEY,
  batch_id      TEXT NOT NULL,
  item_index    INTEGER NOT NULL,
  label         TEXT NOT NULL,
  category      TEXT NOT NULL,
  confidence    INTEGER,
  failed        INTEGER NOT NULL CHECK (failed IN (0,1)),
  error_message TEXT,
  analyzed_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_analyses_time ON analyses(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_analyses_batch ON analyses(batch_id, item_index);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SaveSnapshot upserts the single durable user-state record. Satisfies
// stats.Mirror.
func (d *DB) SaveSnapshot(snap stats.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	_, err = d.sql.Exec(`INSERT INTO user_state(name, snapshot, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET snapshot = excluded.snapshot, updated_at = CURRENT_TIMESTAMP`, stateKey, string(raw))
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// LoadSnapshot rehydrates the persisted user state. An absent record yields
// the default snapshot with no error; a corrupt record yields the default
// snapshot plus a PersistenceError so the caller can log it and carry on.
func (d *DB) LoadSnapshot() (stats.Snapshot, error) {
	var raw string
	err := d.sql.QueryRow(`SELECT snapshot FROM user_state WHERE name = ?`, stateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.Default(), nil
	}
	if err != nil {
		return stats.Default(), &PersistenceError{Op: "load", Err: err}
	}

	var snap stats.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return stats.Default(), &PersistenceError{Op: "load", Err: err}
	}
	if snap.Level == "" {
		snap.Level = stats.LevelForScore(snap.Score)
	}
	return snap, nil
}

// ClearSnapshot removes the durable user-state record (logout). Satisfies
// stats.Mirror.
func (d *DB) ClearSnapshot() error {
	if _, err := d.sql.Exec(`DELETE FROM user_state WHERE name = ?`, stateKey); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	return nil
}

// AnalysisRow is one archived per-item analysis outcome.
type AnalysisRow struct {
	BatchID           string
	ItemIndex         int
	Label             string
	Category          string
	ConfidencePercent *int
	Failed            bool
	ErrorMessage      string
	AnalyzedAt        time.Time
}

// AppendAnalyses archives the ordered outcomes of one batch.
func (d *DB) AppendAnalyses(ctx context.Context, rows []AnalysisRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}

	for _, r := range rows {
		var conf interface{}
		if r.ConfidencePercent != nil {
			conf = *r.ConfidencePercent
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO analyses(batch_id, item_index, label, category, confidence, failed, error_message) VALUES(?,?,?,?,?,?,?)`,
			r.BatchID, r.ItemIndex, r.Label, r.Category, conf, boolToInt(r.Failed), nullIfEmpty(r.ErrorMessage))
		if err != nil {
			_ = tx.Rollback()
			return &PersistenceError{Op: "append", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// RecentAnalyses returns the most recent archived outcomes, newest first.
func (d *DB) RecentAnalyses(ctx context.Context, limit int) ([]AnalysisRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT batch_id, item_index, label, category, confidence, failed, error_message, analyzed_at
FROM analyses ORDER BY id DESC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []AnalysisRow
	for rows.Next() {
		var (
			r         AnalysisRow
			conf      sql.NullInt64
			errMsg    sql.NullString
			failedInt int
			tsStr     string
		)
		if err := rows.Scan(&r.BatchID, &r.ItemIndex, &r.Label, &r.Category, &conf, &failedInt, &errMsg, &tsStr); err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		if conf.Valid {
			v := int(conf.Int64)
			r.ConfidencePercent = &v
		}
		r.Failed = failedInt == 1
		r.ErrorMessage = errMsg.String
		r.AnalyzedAt = parseTimestamp(tsStr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

// parseTimestamp handles SQLite CURRENT_TIMESTAMP format, then RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
