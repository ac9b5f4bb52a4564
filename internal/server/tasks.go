package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
	"taskhub/internal/storage/sqlite"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Actor roles on a task, from the owner-or-grantee authorization check.
const (
	roleOwner = "owner"
	roleView  = models.PermissionView
	roleEdit  = models.PermissionEdit
)

type taskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	Deadline    *time.Time `json:"deadline"`
}

// taskView decorates a task with its computed overdue flag.
type taskView struct {
	models.Task
	IsOverdue bool `json:"is_overdue"`
}

func viewOf(t models.Task, now time.Time) taskView {
	return taskView{Task: t, IsOverdue: t.IsOverdue(now)}
}

func viewsOf(tasks []models.Task, now time.Time) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, viewOf(t, now))
	}
	return views
}

// taskForActor loads a task and decides the caller's role on it. Tasks the
// caller cannot see respond 404 so their existence is not leaked.
func (s *Server) taskForActor(c *gin.Context, taskID int64) (models.Task, string, bool) {
	userID, err := currentUserID(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return models.Task{}, "", false
	}

	task, err := s.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		s.respondServiceError(c, err)
		return models.Task{}, "", false
	}

	if task.OwnerID == userID {
		return task, roleOwner, true
	}

	permission, err := s.store.SharePermission(c.Request.Context(), taskID, userID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, fmt.Errorf("task %d: %w", taskID, sqlite.ErrNotFound))
		} else {
			s.respondServiceError(c, err)
		}
		return models.Task{}, "", false
	}
	return task, permission, true
}

// handleListTasks returns the tasks visible to the caller, filtered,
// searched, ordered and paginated.
func (s *Server) handleListTasks(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	filter := sqlite.TaskFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}

	if filter.Status != "" {
		if _, ok := models.ValidTaskStatuses[filter.Status]; !ok {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", filter.Status))
			return
		}
	}
	if filter.Priority != "" {
		if _, ok := models.ValidTaskPriorities[filter.Priority]; !ok {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid priority %q", filter.Priority))
			return
		}
	}
	if !sqlite.OrderingValid(filter.Ordering) {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid ordering %q", filter.Ordering))
		return
	}

	filter.Limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid offset %q", raw))
			return
		}
		filter.Offset = offset
	}

	tasks, count, err := s.store.ListTasks(c.Request.Context(), userID, filter)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"count": count,
		"tasks": viewsOf(tasks, time.Now()),
	})
}

// handleCreateTask inserts a new task owned by the caller.
func (s *Server) handleCreateTask(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || *req.Title == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	if !s.validEnums(c, req) {
		return
	}

	task := models.Task{
		OwnerID:     userID,
		Title:       *req.Title,
		Description: getString(req.Description),
		Status:      getString(req.Status),
		Priority:    getString(req.Priority),
		Deadline:    req.Deadline,
	}

	created, err := s.store.CreateTask(c.Request.Context(), task)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": viewOf(created, time.Now())})
}

// handleGetTask returns a task to its owner or any grantee.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, _, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": viewOf(task, time.Now())})
}

// handleUpdateTask replaces a task's fields. Omitted optional fields fall
// back to their defaults, as a full update should.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role == roleView {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("view access does not allow updates"))
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || *req.Title == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}
	if !s.validEnums(c, req) {
		return
	}

	changes := map[string]any{
		"title":       *req.Title,
		"description": getString(req.Description),
		"status":      models.StatusNew,
		"priority":    models.PriorityMedium,
		"deadline":    req.Deadline,
	}
	if req.Status != nil {
		changes["status"] = *req.Status
	}
	if req.Priority != nil {
		changes["priority"] = *req.Priority
	}

	task, err := s.store.UpdateTask(c.Request.Context(), id, changes)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": viewOf(task, time.Now())})
}

// handlePatchTask updates only the provided task fields.
func (s *Server) handlePatchTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role == roleView {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("view access does not allow updates"))
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if !s.validEnums(c, req) {
		return
	}

	changes := map[string]any{}
	if req.Title != nil {
		changes["title"] = *req.Title
	}
	if req.Description != nil {
		changes["description"] = *req.Description
	}
	if req.Status != nil {
		changes["status"] = *req.Status
	}
	if req.Priority != nil {
		changes["priority"] = *req.Priority
	}
	if req.Deadline != nil {
		changes["deadline"] = req.Deadline
	}

	task, err := s.store.UpdateTask(c.Request.Context(), id, changes)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": viewOf(task, time.Now())})
}

// handleDeleteTask removes a task. Owner only; grantees get 403.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role != roleOwner {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("only the task owner can delete it"))
		return
	}

	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// validEnums rejects out-of-range status and priority values with 400.
func (s *Server) validEnums(c *gin.Context, req taskRequest) bool {
	if req.Status != nil {
		if _, ok := models.ValidTaskStatuses[*req.Status]; !ok {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid status %q", *req.Status))
			return false
		}
	}
	if req.Priority != nil {
		if _, ok := models.ValidTaskPriorities[*req.Priority]; !ok {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid priority %q", *req.Priority))
			return false
		}
	}
	return true
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
