package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"taskhub/internal/models"
)

// Store wraps access to the SQLite database and exposes high level helpers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            owner_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'new',
            priority TEXT NOT NULL DEFAULT 'medium',
            deadline DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS task_shares (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            permission TEXT NOT NULL DEFAULT 'view',
            shared_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(task_id, user_id),
            FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE,
            FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
            jti TEXT PRIMARY KEY,
            user_id INTEGER NOT NULL,
            expires_at DATETIME NOT NULL,
            revoked INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_status ON tasks(owner_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_priority ON tasks(owner_id, priority);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline);`,
		`CREATE INDEX IF NOT EXISTS idx_shares_user ON task_shares(user_id, permission);`,
		`CREATE INDEX IF NOT EXISTS idx_shares_task ON task_shares(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_user ON refresh_tokens(user_id);`,
		`CREATE TRIGGER IF NOT EXISTS trg_users_updated
            AFTER UPDATE ON users
            FOR EACH ROW BEGIN
                UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_tasks_updated
            AFTER UPDATE ON tasks
            FOR EACH ROW BEGIN
                UPDATE tasks SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateUser inserts a new user. Emails are stored lowercased; a duplicate
// email yields ErrExists.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, fmt.Errorf("email must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users(email, password_hash) VALUES(?, ?)`, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s: %w", email, ErrExists)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return s.UserByID(ctx, id)
}

// UserByID fetches a single user by id.
func (s *Store) UserByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserByEmail fetches a single user by email, case insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// TaskFilter narrows and orders ListTasks results.
type TaskFilter struct {
	Status   string
	Priority string
	Search   string
	Ordering string
	Limit    int
	Offset   int
}

// orderColumns maps permitted ordering fields to SQL columns.
var orderColumns = map[string]string{
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
	"deadline":   "t.deadline",
	"priority":   "t.priority",
	"status":     "t.status",
	"title":      "t.title",
}

// OrderingValid reports whether the ordering expression ("field" or
// "-field") names a permitted column.
func OrderingValid(ordering string) bool {
	if ordering == "" {
		return true
	}
	_, ok := orderColumns[strings.TrimPrefix(ordering, "-")]
	return ok
}

func orderClause(ordering string) string {
	if ordering == "" {
		ordering = "-created_at"
	}
	dir := "ASC"
	field := ordering
	if strings.HasPrefix(ordering, "-") {
		dir = "DESC"
		field = ordering[1:]
	}
	col, ok := orderColumns[field]
	if !ok {
		col, dir = "t.created_at", "DESC"
	}
	// Secondary id ordering keeps pagination stable.
	return fmt.Sprintf("ORDER BY %s %s, t.id %s", col, dir, dir)
}

const taskColumns = `t.id, t.owner_id, u.email, t.title, t.description, t.status, t.priority, t.deadline, t.created_at, t.updated_at`

func scanTask(scan func(dest ...any) error) (models.Task, error) {
	var t models.Task
	var deadline sql.NullTime
	if err := scan(&t.ID, &t.OwnerID, &t.OwnerEmail, &t.Title, &t.Description, &t.Status, &t.Priority, &deadline, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return models.Task{}, err
	}
	if deadline.Valid {
		t.Deadline = &deadline.Time
	}
	return t, nil
}

// ListTasks returns the page of tasks visible to userID (owned or shared
// with them) matching the filter, together with the total count before
// pagination.
func (s *Store) ListTasks(ctx context.Context, userID int64, f TaskFilter) ([]models.Task, int, error) {
	where := []string{`(t.owner_id = ? OR EXISTS (SELECT 1 FROM task_shares sh WHERE sh.task_id = t.id AND sh.user_id = ?))`}
	args := []any{userID, userID}

	if f.Status != "" {
		where = append(where, `t.status = ?`)
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where = append(where, `t.priority = ?`)
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		where = append(where, `(t.title LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(f.Search) + "%"
		args = append(args, pattern, pattern)
	}

	cond := strings.Join(where, " AND ")

	var count int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tasks t JOIN users u ON u.id = t.owner_id WHERE %s`, cond)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM tasks t JOIN users u ON u.id = t.owner_id WHERE %s %s LIMIT ? OFFSET ?`,
		taskColumns, cond, orderClause(f.Ordering))
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, count, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CreateTask inserts a new task for its owner.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return models.Task{}, fmt.Errorf("task title must not be empty")
	}
	if _, ok := models.ValidTaskStatuses[t.Status]; !ok {
		t.Status = models.StatusNew
	}
	if _, ok := models.ValidTaskPriorities[t.Priority]; !ok {
		t.Priority = models.PriorityMedium
	}

	var deadline any
	if t.Deadline != nil {
		deadline = t.Deadline.UTC()
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(owner_id, title, description, status, priority, deadline) VALUES(?, ?, ?, ?, ?, ?)`,
		t.OwnerID, strings.TrimSpace(t.Title), strings.TrimSpace(t.Description), t.Status, t.Priority, deadline)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask retrieves a task by id along with its owner's email.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM tasks t JOIN users u ON u.id = t.owner_id WHERE t.id = ?`, taskColumns), id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask applies the given field changes to a task. Unknown keys are
// ignored; invalid status or priority values are rejected upstream.
func (s *Store) UpdateTask(ctx context.Context, id int64, changes map[string]any) (models.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	title := current.Title
	description := current.Description
	status := current.Status
	priority := current.Priority
	deadline := current.Deadline

	if v, ok := changes["title"].(string); ok {
		if strings.TrimSpace(v) == "" {
			return models.Task{}, fmt.Errorf("task title must not be empty")
		}
		title = strings.TrimSpace(v)
	}
	if v, ok := changes["description"].(string); ok {
		description = strings.TrimSpace(v)
	}
	if v, ok := changes["status"].(string); ok {
		if _, valid := models.ValidTaskStatuses[v]; valid {
			status = v
		}
	}
	if v, ok := changes["priority"].(string); ok {
		if _, valid := models.ValidTaskPriorities[v]; valid {
			priority = v
		}
	}
	if _, ok := changes["deadline"]; ok {
		switch v := changes["deadline"].(type) {
		case *time.Time:
			deadline = v
		case time.Time:
			deadline = &v
		case nil:
			deadline = nil
		}
	}

	var deadlineArg any
	if deadline != nil {
		deadlineArg = deadline.UTC()
	}

	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, deadline = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, description, status, priority, deadlineArg, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task by id. Shares cascade away with it.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// TasksDueBetween returns open tasks whose deadline falls inside
// (from, until], for the reminder scan.
func (s *Store) TasksDueBetween(ctx context.Context, from, until time.Time) ([]models.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks t JOIN users u ON u.id = t.owner_id
        WHERE t.deadline IS NOT NULL AND t.deadline > ? AND t.deadline <= ? AND t.status != ?
        ORDER BY t.deadline ASC, t.id ASC`, taskColumns)
	rows, err := s.db.QueryContext(ctx, query, from.UTC(), until.UTC(), models.StatusDone)
	if err != nil {
		return nil, fmt.Errorf("tasks due: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpsertShare creates a grant or updates an existing grant's permission.
// The created flag reports which of the two happened.
func (s *Store) UpsertShare(ctx context.Context, taskID, userID int64, permission string) (models.TaskShare, bool, error) {
	// Single connection store, so the existence check and the upsert cannot
	// interleave with another writer.
	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_shares WHERE task_id = ? AND user_id = ?`, taskID, userID).Scan(&existing)
	if err != nil {
		return models.TaskShare{}, false, fmt.Errorf("check share: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO task_shares(task_id, user_id, permission) VALUES(?, ?, ?)
        ON CONFLICT(task_id, user_id) DO UPDATE SET permission = excluded.permission, shared_at = CURRENT_TIMESTAMP`,
		taskID, userID, permission)
	if err != nil {
		return models.TaskShare{}, false, fmt.Errorf("upsert share: %w", err)
	}

	share, err := s.getShare(ctx, taskID, userID)
	if err != nil {
		return models.TaskShare{}, false, err
	}
	return share, existing == 0, nil
}

func (s *Store) getShare(ctx context.Context, taskID, userID int64) (models.TaskShare, error) {
	var sh models.TaskShare
	err := s.db.QueryRowContext(ctx, `SELECT sh.id, sh.task_id, sh.user_id, u.email, sh.permission, sh.shared_at
        FROM task_shares sh JOIN users u ON u.id = sh.user_id
        WHERE sh.task_id = ? AND sh.user_id = ?`, taskID, userID).
		Scan(&sh.ID, &sh.TaskID, &sh.UserID, &sh.UserEmail, &sh.Permission, &sh.SharedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TaskShare{}, fmt.Errorf("share: %w", ErrNotFound)
	}
	if err != nil {
		return models.TaskShare{}, fmt.Errorf("get share: %w", err)
	}
	return sh, nil
}

// SharePermission returns the grant's permission for userID on taskID, or
// ErrNotFound when no grant exists.
func (s *Store) SharePermission(ctx context.Context, taskID, userID int64) (string, error) {
	var permission string
	err := s.db.QueryRowContext(ctx, `SELECT permission FROM task_shares WHERE task_id = ? AND user_id = ?`, taskID, userID).
		Scan(&permission)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("share: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("share permission: %w", err)
	}
	return permission, nil
}

// DeleteShare revokes a grant. Absent grants yield ErrNotFound.
func (s *Store) DeleteShare(ctx context.Context, taskID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_shares WHERE task_id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("share: %w", ErrNotFound)
	}
	return nil
}

// ListShares returns all grants for a task with grantee emails, most recent
// first.
func (s *Store) ListShares(ctx context.Context, taskID int64) ([]models.TaskShare, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sh.id, sh.task_id, sh.user_id, u.email, sh.permission, sh.shared_at
        FROM task_shares sh JOIN users u ON u.id = sh.user_id
        WHERE sh.task_id = ? ORDER BY sh.shared_at DESC, sh.id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var shares []models.TaskShare
	for rows.Next() {
		var sh models.TaskShare
		if err := rows.Scan(&sh.ID, &sh.TaskID, &sh.UserID, &sh.UserEmail, &sh.Permission, &sh.SharedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

// ListSharedTasks returns tasks shared with userID, most recently shared
// first.
func (s *Store) ListSharedTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM task_shares sh
        JOIN tasks t ON t.id = sh.task_id
        JOIN users u ON u.id = t.owner_id
        WHERE sh.user_id = ? ORDER BY sh.shared_at DESC, sh.id DESC`, taskColumns)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SaveRefreshToken records an issued refresh token by jti.
func (s *Store) SaveRefreshToken(ctx context.Context, t models.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO refresh_tokens(jti, user_id, expires_at) VALUES(?, ?, ?)`,
		t.JTI, t.UserID, t.ExpiresAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("refresh token %s: %w", t.JTI, ErrExists)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// RefreshToken looks up an issued refresh token by jti.
func (s *Store) RefreshToken(ctx context.Context, jti string) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := s.db.QueryRowContext(ctx, `SELECT jti, user_id, expires_at, revoked, created_at FROM refresh_tokens WHERE jti = ?`, jti).
		Scan(&t.JTI, &t.UserID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RefreshToken{}, fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return t, nil
}

// RevokeRefreshToken blacklists a refresh token by jti. Revoking an already
// revoked token is a no-op, not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, jti string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE jti = ?`, jti)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	return nil
}

// PurgeExpiredRefreshTokens deletes refresh tokens that expired before now
// and returns how many rows went away.
func (s *Store) PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
