package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskhub/internal/auth"
	"taskhub/internal/storage/sqlite"
	"taskhub/internal/token"
)

// Server provides the HTTP handlers for the task management API.
type Server struct {
	engine *gin.Engine
	store  *sqlite.Store
	auth   *auth.Service
	tokens *token.Issuer
	logger *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, authSvc *auth.Service, tokens *token.Issuer, logger *slog.Logger, debug bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api"))

	srv := &Server{
		engine: router,
		store:  store,
		auth:   authSvc,
		tokens: tokens,
		logger: logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	{
		api.GET("/healthz", s.handleHealth)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/signup", s.handleSignup)
			authGroup.POST("/signin", s.handleSignin)
			authGroup.POST("/token/refresh", s.handleRefresh)
			authGroup.POST("/logout", s.requireAuth, s.handleLogout)
			authGroup.GET("/me", s.requireAuth, s.handleMe)
		}

		tasks := api.Group("/tasks", s.requireAuth)
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.GET("/shared", s.handleListSharedTasks)
			tasks.GET("/:id", s.handleGetTask)
			tasks.PUT("/:id", s.handleUpdateTask)
			tasks.PATCH("/:id", s.handlePatchTask)
			tasks.DELETE("/:id", s.handleDeleteTask)
			tasks.POST("/:id/share", s.handleShareTask)
			tasks.DELETE("/:id/unshare", s.handleUnshareTask)
			tasks.GET("/:id/shares", s.handleListShares)
		}
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondError logs the error and returns the JSON error envelope.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

// respondServiceError maps known sentinel errors to HTTP statuses and falls
// back to 500 for the rest.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		s.respondError(c, http.StatusNotFound, err)
	case errors.Is(err, sqlite.ErrExists), errors.Is(err, auth.ErrValidation):
		s.respondError(c, http.StatusBadRequest, err)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, token.ErrInvalid):
		s.respondError(c, http.StatusUnauthorized, err)
	default:
		s.respondError(c, http.StatusInternalServerError, err)
	}
}

// respondSuccess wraps a payload for consistency with empty responses.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
