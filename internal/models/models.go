package models

import "time"

// User is an account identified by email. The password hash never leaves the
// process through JSON.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Task represents a single task owned by exactly one user.
type Task struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	OwnerEmail  string     `json:"owner_email,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Deadline    *time.Time `json:"deadline"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsOverdue reports whether the task missed its deadline and is still open.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Deadline != nil && t.Status != StatusDone && now.After(*t.Deadline)
}

// DueWithin reports whether the open task's deadline falls inside
// (now, now+window].
func (t Task) DueWithin(now time.Time, window time.Duration) bool {
	if t.Deadline == nil || t.Status == StatusDone {
		return false
	}
	until := t.Deadline.Sub(now)
	return until > 0 && until <= window
}

// TaskShare grants a non-owner user access to a task.
type TaskShare struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	UserID     int64     `json:"user_id"`
	UserEmail  string    `json:"user_email,omitempty"`
	Permission string    `json:"permission"`
	SharedAt   time.Time `json:"shared_at"`
}

// RefreshToken tracks an issued refresh token by its jti so logout can
// revoke it.
type RefreshToken struct {
	JTI       string
	UserID    int64
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Task statuses.
const (
	StatusNew        = "new"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Share permission levels. view allows reads, edit additionally allows
// updates. Deletion stays with the owner regardless of any grant.
const (
	PermissionView = "view"
	PermissionEdit = "edit"
)

// ValidTaskStatuses enumerates the accepted task statuses.
var ValidTaskStatuses = map[string]struct{}{
	StatusNew:        {},
	StatusInProgress: {},
	StatusDone:       {},
}

// ValidTaskPriorities enumerates the accepted task priorities.
var ValidTaskPriorities = map[string]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
}

// ValidSharePermissions enumerates the accepted share permission levels.
var ValidSharePermissions = map[string]struct{}{
	PermissionView: {},
	PermissionEdit: {},
}
