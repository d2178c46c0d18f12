package data

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

	"github.com/merchantbot/merchantbot/internal/biz/domain"
	"github.com/merchantbot/merchantbot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// queryRepo implements the tracked query repository
type queryRepo struct {
	db *sql.DB
}

// NewQueryRepo creates a new query repository backed by SQLite
func NewQueryRepo(dbPath string) (repo.QueryRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers inside this process; the busy timeout
	// covers the MCP process sharing the same file.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// Create table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			keyword TEXT NOT NULL,
			params TEXT NOT NULL,
			is_tracked INTEGER NOT NULL DEFAULT 0,
			last_run INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (user_id, name),
			UNIQUE (user_id, keyword)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_queries_tracked ON queries(is_tracked)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &queryRepo{db: db}, nil
}

const queryColumns = `id, user_id, name, params, is_tracked, last_run, created_at, updated_at`

// Create inserts a query, enforcing quota and uniqueness in one transaction
func (r *queryRepo) Create(ctx context.Context, q *domain.TrackedQuery, limit int) error {
	params, err := json.Marshal(q.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM queries WHERE user_id = ?`, q.UserID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count queries: %w", err)
	}
	if limit > 0 && count >= limit {
		return domain.ErrQuotaExceeded
	}

	if taken, err := exists(ctx, tx, `SELECT 1 FROM queries WHERE user_id = ? AND name = ?`, q.UserID, q.Name); err != nil {
		return err
	} else if taken {
		return domain.ErrDuplicateName
	}
	if taken, err := exists(ctx, tx, `SELECT 1 FROM queries WHERE user_id = ? AND keyword = ?`, q.UserID, q.Params.Keyword); err != nil {
		return err
	} else if taken {
		return domain.ErrDuplicateKeyword
	}

	quota := limit
	if quota <= 0 {
		quota = -1
	}

	// The count is re-evaluated under the write lock, so a writer in another
	// process cannot push the user past the quota.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO queries (id, user_id, name, keyword, params, is_tracked, last_run, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE ? < 0 OR (SELECT COUNT(*) FROM queries WHERE user_id = ?) < ?
	`,
		q.ID,
		q.UserID,
		q.Name,
		q.Params.Keyword,
		string(params),
		boolToInt(q.IsTracked),
		unixOrZero(q.LastRun),
		q.CreatedAt.Unix(),
		q.UpdatedAt.Unix(),
		quota, q.UserID, quota,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrQuotaExceeded
	}

	if err := tx.Commit(); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// Get gets a query by id
func (r *queryRepo) Get(ctx context.Context, id string) (*domain.TrackedQuery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id)
	return scanQuery(row)
}

// FindByName gets a user's query by name
func (r *queryRepo) FindByName(ctx context.Context, userID, name string) (*domain.TrackedQuery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE user_id = ? AND name = ?`, userID, name)
	return scanQuery(row)
}

// ListByUser lists a user's queries, oldest first
func (r *queryRepo) ListByUser(ctx context.Context, userID string) ([]*domain.TrackedQuery, error) {
	return r.list(ctx, `SELECT `+queryColumns+` FROM queries WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// ListTracked lists tracked queries of all users
func (r *queryRepo) ListTracked(ctx context.Context) ([]*domain.TrackedQuery, error) {
	return r.list(ctx, `SELECT `+queryColumns+` FROM queries WHERE is_tracked = 1 ORDER BY user_id, created_at, id`)
}

// SetTracked toggles tracking
func (r *queryRepo) SetTracked(ctx context.Context, id string, tracked bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE queries SET is_tracked = ?, updated_at = ? WHERE id = ?
	`, boolToInt(tracked), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update query: %w", err)
	}
	return requireAffected(result)
}

// Delete deletes a query
func (r *queryRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}
	return requireAffected(result)
}

// DeleteByUser deletes all queries of a user
func (r *queryRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM queries WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user queries: %w", err)
	}
	return result.RowsAffected()
}

// UpdateLastRun sets lastRun of one query
func (r *queryRepo) UpdateLastRun(ctx context.Context, id string, lastRun time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queries SET last_run = ?, updated_at = ? WHERE id = ?
	`, unixOrZero(lastRun), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}
	return nil
}

// BulkUpdateLastRun applies all updates in one transaction
func (r *queryRepo) BulkUpdateLastRun(ctx context.Context, updates []domain.LastRunUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE queries SET last_run = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, unixOrZero(u.LastRun), now, u.QueryID); err != nil {
			return fmt.Errorf("failed to update last run of %s: %w", u.QueryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit last run updates: %w", err)
	}
	return nil
}

func (r *queryRepo) list(ctx context.Context, query string, args ...any) ([]*domain.TrackedQuery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var queries []*domain.TrackedQuery
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queries: %w", err)
	}
	return queries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(s scanner) (*domain.TrackedQuery, error) {
	var q domain.TrackedQuery
	var params string
	var tracked int
	var lastRun, createdAt, updatedAt int64

	err := s.Scan(&q.ID, &q.UserID, &q.Name, &params, &tracked, &lastRun, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQueryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan query: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &q.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of %s: %w", q.ID, err)
	}
	q.IsTracked = tracked != 0
	if lastRun > 0 {
		q.LastRun = time.Unix(lastRun, 0)
	}
	q.CreatedAt = time.Unix(createdAt, 0)
	q.UpdatedAt = time.Unix(updatedAt, 0)
	return &q, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return true, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrQueryNotFound
	}
	return nil
}

// mapConstraintError turns a UNIQUE violation raced in by another process into the domain error
func mapConstraintError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "queries.name"):
		return domain.ErrDuplicateName
	case strings.Contains(msg, "queries.keyword"):
		return domain.ErrDuplicateKeyword
	}
	return fmt.Errorf("failed to insert query: %w", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Close closes the database
func (r *queryRepo) Close() error {
	return r.db.Close()
}
