package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// handleSignup registers a new account and hands out a token pair.
func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Password != req.PasswordConfirm {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("password fields didn't match"))
		return
	}

	user, pair, err := s.auth.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{
		"access":  pair.Access,
		"refresh": pair.Refresh,
		"user":    user,
	})
}

// handleSignin authenticates credentials and hands out a token pair.
func (s *Server) handleSignin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	user, pair, err := s.auth.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"access":  pair.Access,
		"refresh": pair.Refresh,
		"user":    user,
	})
}

// handleRefresh exchanges a valid refresh token for a new access token.
func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Refresh == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("refresh token is required"))
		return
	}

	access, err := s.auth.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"access": access})
}

// handleLogout revokes the caller's refresh token.
func (s *Server) handleLogout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Refresh == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("refresh token is required"))
		return
	}

	if err := s.auth.Logout(c.Request.Context(), req.Refresh); err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"detail": "successfully logged out"})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	user, err := s.store.UserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}
