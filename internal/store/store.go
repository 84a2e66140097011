// Package store persists parked runs and run history in SQLite.
package store

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

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/agentflow/internal/controller"
	"github.com/harrison/agentflow/internal/models"
)

// Store manages the SQLite database. It implements controller.ContinuationStore
// and controller.RunRecorder.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Pending is the listing view of a parked run.
type Pending struct {
	Token          string
	TaskID         string
	Kind           models.SuspensionKind
	Phase          models.Phase
	Prompt         string
	Clarifications int
	CreatedAt      time.Time
}

var (
	_ controller.ContinuationStore = (*Store)(nil)
	_ controller.RunRecorder       = (*Store)(nil)
)

// Open creates a Store and initializes the database
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// busy_timeout first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// execWithRetry retries a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores a continuation, replacing any existing one with the same token.
func (s *Store) Save(ctx context.Context, c *controller.Continuation) error {
	if c.Token == "" {
		return errors.New("continuation token is required")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal continuation: %w", err)
	}

	taskID := ""
	if c.Task != nil {
		taskID = c.Task.ID
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `INSERT OR REPLACE INTO continuations
		(token, task_id, kind, phase, prompt, payload, clarifications, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		c.Token,
		taskID,
		string(c.Kind),
		string(c.Phase),
		c.Suspension().Prompt(),
		string(payload),
		c.Clarifications,
		created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert continuation: %w", err)
	}
	return nil
}

// Load returns the continuation for token.
func (s *Store) Load(ctx context.Context, token string) (*controller.Continuation, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM continuations WHERE token = ?`, token).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", controller.ErrUnknownToken, token)
	}
	if err != nil {
		return nil, fmt.Errorf("query continuation: %w", err)
	}

	c := &controller.Continuation{}
	if err := json.Unmarshal([]byte(payload), c); err != nil {
		return nil, fmt.Errorf("decode continuation %s: %w", token, err)
	}
	return c, nil
}

// Delete removes the continuation. Exactly one concurrent caller succeeds.
func (s *Store) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM continuations WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete continuation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete continuation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", controller.ErrUnknownToken, token)
	}
	return nil
}

// ListPending returns parked runs, newest first.
func (s *Store) ListPending(ctx context.Context) ([]Pending, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, task_id, kind, phase, prompt, clarifications, created_at
		FROM continuations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query continuations: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		var kind, phase string
		var prompt sql.NullString
		var clarifications sql.NullInt64
		if err := rows.Scan(&p.Token, &p.TaskID, &kind, &phase, &prompt, &clarifications, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan continuation: %w", err)
		}
		p.Kind = models.SuspensionKind(kind)
		p.Phase = models.Phase(phase)
		p.Prompt = prompt.String
		p.Clarifications = int(clarifications.Int64)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate continuations: %w", err)
	}
	return out, nil
}

// RecordRun appends a run history entry.
func (s *Store) RecordRun(ctx context.Context, rec controller.RunRecord) error {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	query := `INSERT INTO runs
		(task_id, request, tier, judgement, framing, node_count, failed_count, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.TaskID,
		rec.Request,
		rec.Tier,
		rec.Judgement,
		string(rec.Framing),
		rec.Nodes,
		rec.Failed,
		rec.Duration.Milliseconds(),
		finished.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]controller.RunRecord, error) {
	query := `SELECT task_id, request, tier, judgement, framing, node_count, failed_count, duration_ms, finished_at
		FROM runs ORDER BY finished_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []controller.RunRecord
	for rows.Next() {
		var rec controller.RunRecord
		var tier sql.NullString
		var framing string
		var durationMS int64
		if err := rows.Scan(&rec.TaskID, &rec.Request, &tier, &rec.Judgement, &framing, &rec.Nodes, &rec.Failed, &durationMS, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Tier = tier.String
		rec.Framing = models.Framing(framing)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
