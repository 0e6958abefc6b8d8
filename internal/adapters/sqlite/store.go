// Package sqlite is a local, single-file task store with the same document
// semantics as the Elasticsearch adapter: partial updates of the task
// object, sequence numbers, and conditional writes. It is meant for
// development and for running the dispatcher without a cluster.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// primaryTerm is constant: a single file never fails over.
const primaryTerm = 1

// Store implements core.TaskStore on SQLite.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex // serializes read-modify-write updates

	maxRetries    int
	baseRetryWait time.Duration
}

// Option configures the store.
type Option func(*Store)

// WithRetry sets how often a write is retried while the database is busy.
func WithRetry(maxRetries int, baseWait time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.baseRetryWait = baseWait
	}
}

// Open opens (creating if needed) the store at path and applies pending
// migrations.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:          path,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		version := i + 1
		if version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		lines := strings.Split(stmt, "\n")
		var sqlLines []string
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				sqlLines = append(sqlLines, line)
			}
		}
		if len(sqlLines) > 0 {
			statements = append(statements, strings.TrimSpace(strings.Join(sqlLines, "\n")))
		}
	}
	return statements
}

// retryWrite runs fn again with exponential backoff while SQLite reports
// the database as busy.
func (s *Store) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
		wait := s.baseRetryWait * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Search returns up to size documents in insertion order.
func (s *Store) Search(ctx context.Context, size int) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, source, seq_no, primary_term FROM tasks ORDER BY created_at, rowid LIMIT ?", size)
	if err != nil {
		return nil, core.ErrExecution(core.CodeSearchFailed, "querying tasks").WithCause(err)
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		var (
			id, source string
			v          core.Version
		)
		if err := rows.Scan(&id, &source, &v.SeqNo, &v.PrimaryTerm); err != nil {
			return nil, core.ErrExecution(core.CodeSearchFailed, "reading task row").WithCause(err)
		}
		version := v
		docs = append(docs, core.Document{ID: id, Version: &version, Source: json.RawMessage(source)})
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrExecution(core.CodeSearchFailed, "iterating tasks").WithCause(err)
	}
	return docs, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, id string) (core.Document, error) {
	var (
		source string
		v      core.Version
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT source, seq_no, primary_term FROM tasks WHERE id = ?", id).Scan(&source, &v.SeqNo, &v.PrimaryTerm)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, core.ErrNotFound("task", id)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("loading task %s: %w", id, err)
	}
	return core.Document{ID: id, Version: &v, Source: json.RawMessage(source)}, nil
}

// Put indexes a whole document, replacing any existing one with that id.
func (s *Store) Put(ctx context.Context, id string, source json.RawMessage) (core.Version, error) {
	if id == "" {
		return core.Version{}, core.ErrValidation(core.CodeParseFailed, "document has no id")
	}
	if !json.Valid(source) {
		return core.Version{}, core.ErrValidation(core.CodeParseFailed, fmt.Sprintf("document %s: invalid source", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var v core.Version
	err := s.retryWrite(ctx, "Put", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		seq, err := nextSeqNo(ctx, tx)
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, source, seq_no, primary_term, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				seq_no = excluded.seq_no,
				updated_at = excluded.updated_at
		`, id, string(source), seq, primaryTerm, now, now); err != nil {
			return err
		}
		v = core.Version{SeqNo: seq, PrimaryTerm: primaryTerm}
		return tx.Commit()
	})
	if err != nil {
		return core.Version{}, fmt.Errorf("indexing task %s: %w", id, err)
	}
	return v, nil
}

// Update merges patch into the task object of document id. With a non-nil
// cond the write only happens while the stored version equals cond.
func (s *Store) Update(ctx context.Context, id string, patch core.TaskPatch, cond *core.Version) (core.Version, error) {
	fields, err := patchFields(patch)
	if err != nil {
		return core.Version{}, fmt.Errorf("encoding update for %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var v core.Version
	err = s.retryWrite(ctx, "Update", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var (
			source  string
			current core.Version
		)
		err = tx.QueryRowContext(ctx,
			"SELECT source, seq_no, primary_term FROM tasks WHERE id = ?", id).Scan(&source, &current.SeqNo, &current.PrimaryTerm)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound("task", id)
		}
		if err != nil {
			return err
		}
		if cond != nil && *cond != current {
			return core.ErrConflict(id).
				WithDetail("expected", *cond).
				WithDetail("current", current)
		}

		merged, err := mergeTask(json.RawMessage(source), fields)
		if err != nil {
			return core.ErrValidation(core.CodeUpdateFailed, fmt.Sprintf("document %s: %v", id, err))
		}
		seq, err := nextSeqNo(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE tasks SET source = ?, seq_no = ?, updated_at = ? WHERE id = ?",
			string(merged), seq, time.Now().UTC().Format(time.RFC3339Nano), id); err != nil {
			return err
		}
		v = core.Version{SeqNo: seq, PrimaryTerm: current.PrimaryTerm}
		return tx.Commit()
	})
	if err != nil {
		var derr *core.DomainError
		if errors.As(err, &derr) {
			return core.Version{}, err
		}
		return core.Version{}, core.ErrExecution(core.CodeUpdateFailed, fmt.Sprintf("updating task %s", id)).WithCause(err)
	}
	return v, nil
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.ErrNetwork(fmt.Sprintf("sqlite store %s", s.path)).WithCause(err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}
	return n, nil
}

// nextSeqNo hands out store-wide increasing sequence numbers, starting at 0.
func nextSeqNo(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq_no), -1) + 1 FROM tasks").Scan(&seq)
	return seq, err
}

func patchFields(patch core.TaskPatch) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// mergeTask sets fields on the "task" object of source, creating it when
// absent and leaving every other key untouched.
func mergeTask(source json.RawMessage, fields map[string]json.RawMessage) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("stored source is not an object: %w", err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}

	task := make(map[string]json.RawMessage)
	if raw, ok := doc["task"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("task is not an object: %w", err)
		}
	}
	for k, v := range fields {
		task[k] = v
	}

	encoded, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	doc["task"] = encoded
	return json.Marshal(doc)
}
