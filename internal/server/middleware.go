package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskhub/internal/token"
)

const (
	ctxUserID    = "userID"
	ctxUserEmail = "userEmail"
)

// requireAuth validates the bearer access token and stores the caller's
// identity on the context.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing authorization header"})
		return
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "authorization header must be a bearer token"})
		return
	}

	claims, err := s.tokens.Parse(raw, token.TypeAccess)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired access token"})
		return
	}

	userID, err := claims.UserID()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired access token"})
		return
	}

	c.Set(ctxUserID, userID)
	c.Set(ctxUserEmail, claims.Email)
	c.Next()
}

// currentUserID returns the authenticated caller's id set by requireAuth.
func currentUserID(c *gin.Context) (int64, error) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, errors.New("no authenticated user on context")
	}
	id, ok := v.(int64)
	if !ok {
		return 0, errors.New("malformed user id on context")
	}
	return id, nil
}
