// Package ledger records every task the tool submits in a local SQLite
// database so later runs can look up what was started before (the folder
// sync guard) and show a history without querying the service.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver registered as "sqlite"
)

// Task kinds stored in the kind column.
const (
	KindTransfer = "transfer"
	KindDelete   = "delete"
	KindSync     = "sync"
	KindShare    = "share"
	KindIndex    = "index"
)

// ErrNotFound is returned by Latest and Get when no row matches.
var ErrNotFound = errors.New("ledger: no matching task")

const (
	sqlInsertTask = `INSERT INTO tasks
		(task_id, kind, pair_key, label, source_endpoint, source_path,
		 destination_endpoint, destination_path, status, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
		 status = excluded.status, updated_at = excluded.updated_at`

	sqlUpdateStatus = `UPDATE tasks SET status = ?, updated_at = ? WHERE task_id = ?`

	sqlSelectColumns = `SELECT task_id, kind, pair_key, label, source_endpoint, source_path,
		destination_endpoint, destination_path, status, submitted_at, updated_at
		FROM tasks`

	sqlLatest = sqlSelectColumns + ` WHERE kind = ? AND pair_key = ?
		ORDER BY submitted_at DESC, rowid DESC LIMIT 1`

	sqlGet = sqlSelectColumns + ` WHERE task_id = ?`

	sqlList = sqlSelectColumns + ` ORDER BY submitted_at DESC, rowid DESC LIMIT ?`
)

// Entry is one recorded task.
type Entry struct {
	TaskID              string    `json:"task_id"`
	Kind                string    `json:"kind"`
	Key                 string    `json:"key"` // defaults to PairKey of the endpoints and paths
	Label               string    `json:"label,omitempty"`
	SourceEndpoint      string    `json:"source_endpoint,omitempty"`
	SourcePath          string    `json:"source_path,omitempty"`
	DestinationEndpoint string    `json:"destination_endpoint,omitempty"`
	DestinationPath     string    `json:"destination_path,omitempty"`
	Status              string    `json:"status"`
	SubmittedAt         time.Time `json:"submitted_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PairKey identifies a (source, destination) pair. Two runs of the same
// folder sync produce the same key, however the paths were spelled.
func PairKey(srcEndpoint, srcPath, dstEndpoint, dstPath string) string {
	return strings.ToLower(srcEndpoint) + ":" + keyPath(srcPath) + "->" +
		strings.ToLower(dstEndpoint) + ":" + keyPath(dstPath)
}

// keyPath cleans p and ends it with exactly one slash, so "/a", "/a/" and
// "/a//" key alike.
func keyPath(p string) string {
	if p == "" {
		return p
	}

	p = path.Clean(p)
	if p != "/" {
		p += "/"
	}

	return p
}

// Ledger wraps the task database. It is safe for concurrent use; writes are
// serialized through a single connection.
type Ledger struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger opened", slog.String("db_path", path))

	return &Ledger{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("ledger: closing database: %w", err)
	}

	return nil
}

// Record inserts a submitted task. Recording an existing task ID only
// refreshes its status.
func (l *Ledger) Record(ctx context.Context, e *Entry) error {
	if e.TaskID == "" {
		return fmt.Errorf("ledger: task ID is required")
	}

	if e.Kind == "" {
		return fmt.Errorf("ledger: kind is required for task %s", e.TaskID)
	}

	now := l.nowFunc().UTC()
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = now
	}

	if e.Key == "" {
		e.Key = PairKey(e.SourceEndpoint, e.SourcePath, e.DestinationEndpoint, e.DestinationPath)
	}

	if e.Status == "" {
		e.Status = "ACTIVE"
	}

	e.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, sqlInsertTask,
		e.TaskID, e.Kind, e.Key, e.Label,
		e.SourceEndpoint, e.SourcePath, e.DestinationEndpoint, e.DestinationPath,
		e.Status, e.SubmittedAt.UnixNano(), e.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger: recording task %s: %w", e.TaskID, err)
	}

	l.logger.Debug("recorded task",
		slog.String("task_id", e.TaskID),
		slog.String("kind", e.Kind),
	)

	return nil
}

// UpdateStatus stores the last known status of a task.
func (l *Ledger) UpdateStatus(ctx context.Context, taskID, status string) error {
	res, err := l.db.ExecContext(ctx, sqlUpdateStatus, status, l.nowFunc().UTC().UnixNano(), taskID)
	if err != nil {
		return fmt.Errorf("ledger: updating task %s: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: updating task %s: %w", taskID, err)
	}

	if n == 0 {
		return fmt.Errorf("ledger: task %s: %w", taskID, ErrNotFound)
	}

	return nil
}

// Latest returns the most recently submitted task of kind for key.
func (l *Ledger) Latest(ctx context.Context, kind, key string) (*Entry, error) {
	return l.queryOne(ctx, sqlLatest, kind, key)
}

// Get returns the task with the given ID.
func (l *Ledger) Get(ctx context.Context, taskID string) (*Entry, error) {
	return l.queryOne(ctx, sqlGet, taskID)
}

// List returns up to limit tasks, newest first. A limit <= 0 returns all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx, sqlList, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing tasks: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating tasks: %w", err)
	}

	return out, nil
}

func (l *Ledger) queryOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	e, err := scanEntry(l.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                    Entry
		submitted, updatedAt int64
	)

	err := s.Scan(&e.TaskID, &e.Kind, &e.Key, &e.Label,
		&e.SourceEndpoint, &e.SourcePath, &e.DestinationEndpoint, &e.DestinationPath,
		&e.Status, &submitted, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("ledger: scanning task row: %w", err)
	}

	e.SubmittedAt = time.Unix(0, submitted).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &e, nil
}
