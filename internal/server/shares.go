package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
)

type shareRequest struct {
	Email      string `json:"email"`
	Permission string `json:"permission"`
}

type unshareRequest struct {
	Email string `json:"email"`
}

// handleShareTask grants or updates a user's access to a task. Owner only.
// Creating a grant answers 201, updating an existing one 200.
func (s *Server) handleShareTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role != roleOwner {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("only the task owner can share it"))
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("email is required"))
		return
	}
	if req.Permission == "" {
		req.Permission = models.PermissionView
	}
	if _, valid := models.ValidSharePermissions[req.Permission]; !valid {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid permission %q", req.Permission))
		return
	}

	grantee, err := s.store.UserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if grantee.ID == task.OwnerID {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("cannot share a task with its owner"))
		return
	}

	share, created, err := s.store.UpsertShare(c.Request.Context(), id, grantee.ID, req.Permission)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(c, status, gin.H{"share": share})
}

// handleUnshareTask revokes a user's access to a task. Owner only; revoking
// an absent grant answers 404.
func (s *Server) handleUnshareTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role != roleOwner {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("only the task owner can revoke shares"))
		return
	}

	var req unshareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("email is required"))
		return
	}

	grantee, err := s.store.UserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	if err := s.store.DeleteShare(c.Request.Context(), id, grantee.ID); err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleListShares lists a task's grants. Owner only.
func (s *Server) handleListShares(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	_, role, ok := s.taskForActor(c, id)
	if !ok {
		return
	}
	if role != roleOwner {
		s.respondError(c, http.StatusForbidden, fmt.Errorf("only the task owner can list shares"))
		return
	}

	shares, err := s.store.ListShares(c.Request.Context(), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"shares": shares})
}

// handleListSharedTasks returns the tasks shared with the caller, most
// recently shared first.
func (s *Server) handleListSharedTasks(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	tasks, err := s.store.ListSharedTasks(c.Request.Context(), userID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": viewsOf(tasks, time.Now())})
}
