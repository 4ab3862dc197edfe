package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taskdeck/taskdeck/internal/task"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore implements Store on an embedded SQLite database with WAL mode
// for concurrent reads. It backs the daemon and CLI deployments where the
// "remote" is a shared file on disk, and the integration tests.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (or creates) the task database at path and initializes
// the schema. The caller must Close when done.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tasks table and indexes. Idempotent.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'todo',
		due_date TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		assignees TEXT,    -- JSON array
		tags TEXT,         -- JSON array
		subtasks TEXT,     -- JSON array
		attachments TEXT,  -- JSON array
		comments TEXT,     -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_user_created
	    ON tasks(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const taskColumns = `id, title, description, priority, status, due_date, completed,
	assignees, tags, subtasks, attachments, comments, created_at, updated_at`

// FetchAll implements Store.FetchAll.
func (s *SQLiteStore) FetchAll(ctx context.Context, userID string) ([]task.Task, error) {
	// rowid breaks created_at ties by insertion order, newest first.
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks for %s: %w", userID, err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// Insert implements Store.Insert. The durable identifier and both
// timestamps are assigned here, server-side.
func (s *SQLiteStore) Insert(ctx context.Context, userID string, t task.Task) (task.Task, error) {
	confirmed := t.Clone()
	confirmed.ID = task.NewID()
	now := time.Now().UTC().Truncate(time.Second)
	confirmed.CreatedAt = now
	confirmed.UpdatedAt = now
	confirmed.Normalize()

	if err := confirmed.Validate(); err != nil {
		return task.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	cols, err := encodeTask(&confirmed)
	if err != nil {
		return task.Task{}, err
	}

	query := `
	INSERT INTO tasks (
		id, user_id, title, description, priority, status, due_date,
		completed, assignees, tags, subtasks, attachments, comments,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.conn.ExecContext(ctx, query,
		confirmed.ID, userID, confirmed.Title, confirmed.Description,
		string(confirmed.Priority), string(confirmed.Status),
		timeToNullString(confirmed.DueDate), boolToInt(confirmed.Completed),
		cols.assignees, cols.tags, cols.subtasks, cols.attachments, cols.comments,
		confirmed.CreatedAt.Format(time.RFC3339),
		confirmed.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	return confirmed, nil
}

// Update implements Store.Update.
func (s *SQLiteStore) Update(ctx context.Context, userID, id string, t task.Task) (task.Task, error) {
	confirmed := t.Clone()
	confirmed.ID = id
	confirmed.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	confirmed.Normalize()

	if err := confirmed.Validate(); err != nil {
		return task.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	cols, err := encodeTask(&confirmed)
	if err != nil {
		return task.Task{}, err
	}

	query := `
	UPDATE tasks SET
		title = ?, description = ?, priority = ?, status = ?, due_date = ?,
		completed = ?, assignees = ?, tags = ?, subtasks = ?,
		attachments = ?, comments = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`

	res, err := s.conn.ExecContext(ctx, query,
		confirmed.Title, confirmed.Description,
		string(confirmed.Priority), string(confirmed.Status),
		timeToNullString(confirmed.DueDate), boolToInt(confirmed.Completed),
		cols.assignees, cols.tags, cols.subtasks, cols.attachments, cols.comments,
		confirmed.UpdatedAt.Format(time.RFC3339),
		id, userID,
	)
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.Task{}, ErrNotFound
	}

	// CreatedAt is immutable on update; read it back for the confirmed row.
	row := s.conn.QueryRowContext(ctx,
		`SELECT created_at FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	var createdAt string
	if err := row.Scan(&createdAt); err == nil {
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			confirmed.CreatedAt = ts
		}
	}

	return confirmed, nil
}

// Delete implements Store.Delete.
func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// encodedColumns holds the JSON-encoded array columns of a task row.
type encodedColumns struct {
	assignees, tags, subtasks, attachments, comments string
}

func encodeTask(t *task.Task) (encodedColumns, error) {
	var cols encodedColumns
	var err error
	if cols.assignees, err = encodeJSON(t.Assignees); err != nil {
		return cols, fmt.Errorf("failed to marshal assignees: %w", err)
	}
	if cols.tags, err = encodeJSON(t.Tags); err != nil {
		return cols, fmt.Errorf("failed to marshal tags: %w", err)
	}
	if cols.subtasks, err = encodeJSON(t.Subtasks); err != nil {
		return cols, fmt.Errorf("failed to marshal subtasks: %w", err)
	}
	if cols.attachments, err = encodeJSON(t.Attachments); err != nil {
		return cols, fmt.Errorf("failed to marshal attachments: %w", err)
	}
	if cols.comments, err = encodeJSON(t.Comments); err != nil {
		return cols, fmt.Errorf("failed to marshal comments: %w", err)
	}
	return cols, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func scanTask(rows *sql.Rows) (task.Task, error) {
	var (
		t                  task.Task
		priority, status   string
		dueDate            sql.NullString
		completed          int
		assignees, tags    sql.NullString
		subtasks           sql.NullString
		attachments        sql.NullString
		comments           sql.NullString
		createdAt, updated string
	)

	err := rows.Scan(&t.ID, &t.Title, &t.Description, &priority, &status,
		&dueDate, &completed, &assignees, &tags, &subtasks, &attachments,
		&comments, &createdAt, &updated)
	if err != nil {
		return t, fmt.Errorf("failed to scan task row: %w", err)
	}

	t.Priority = task.Priority(priority)
	t.Status = task.Status(status)
	t.Completed = completed != 0
	t.DueDate = nullStringToTime(dueDate)

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return t, fmt.Errorf("failed to parse created_at for %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return t, fmt.Errorf("failed to parse updated_at for %s: %w", t.ID, err)
	}

	if err := decodeJSON(assignees, &t.Assignees); err != nil {
		return t, fmt.Errorf("failed to parse assignees for %s: %w", t.ID, err)
	}
	if err := decodeJSON(tags, &t.Tags); err != nil {
		return t, fmt.Errorf("failed to parse tags for %s: %w", t.ID, err)
	}
	if err := decodeJSON(subtasks, &t.Subtasks); err != nil {
		return t, fmt.Errorf("failed to parse subtasks for %s: %w", t.ID, err)
	}
	if err := decodeJSON(attachments, &t.Attachments); err != nil {
		return t, fmt.Errorf("failed to parse attachments for %s: %w", t.ID, err)
	}
	if err := decodeJSON(comments, &t.Comments); err != nil {
		return t, fmt.Errorf("failed to parse comments for %s: %w", t.ID, err)
	}

	return t, nil
}

func decodeJSON(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullStringToTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
