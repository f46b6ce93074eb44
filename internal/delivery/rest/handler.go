package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskdeck/internal/delivery/rest/dto"
	"taskdeck/internal/domain"
	"taskdeck/internal/repository"
	"taskdeck/internal/session"
)

// userIDHeader identifies the caller; authentication flows proper live
// outside this service.
const userIDHeader = "X-User-ID"

// Handler handles HTTP requests
type Handler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions *session.Manager, logger *zap.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// ListTasks handles GET /api/v1/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	repo, ok := h.repository(c)
	if !ok {
		return
	}

	tasks := repo.Tasks()
	c.JSON(http.StatusOK, dto.TaskListResponse{
		Tasks:     tasks,
		Total:     len(tasks),
		Loading:   repo.Loading(),
		LastError: dto.NewErrorInfo(repo.LastError()),
	})
}

// GetStats handles GET /api/v1/tasks/stats
func (h *Handler) GetStats(c *gin.Context) {
	repo, ok := h.repository(c)
	if !ok {
		return
	}

	stats := repo.Stats()
	c.JSON(http.StatusOK, dto.StatsResponse{
		Statistics: stats,
		Todo:       stats.Todo(),
	})
}

// CreateTask handles POST /api/v1/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	repo, ok := h.repository(c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	created, err := repo.AddTask(ctx, req.ToModel())
	if err != nil {
		h.mutationError(c, err, "Failed to create task")
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateTask handles PATCH /api/v1/tasks/:id
func (h *Handler) UpdateTask(c *gin.Context) {
	repo, ok := h.repository(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if err := repo.UpdateTask(ctx, id, req.ToPatch()); err != nil {
		h.mutationError(c, err, "Failed to update task")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	repo, ok := h.repository(c)
	if !ok {
		return
	}
	id := c.Param("id")

	ctx := c.Request.Context()
	if err := repo.DeleteTask(ctx, id); err != nil {
		h.mutationError(c, err, "Failed to delete task")
		return
	}

	c.Status(http.StatusNoContent)
}

// repository resolves the caller's session, rejecting unidentified requests
func (h *Handler) repository(c *gin.Context) (*repository.Repository, bool) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "auth_required",
			Message: "Missing " + userIDHeader + " header",
		})
		return nil, false
	}

	r, err := h.sessions.Repository(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "auth_required",
			Message: "Sign in required",
		})
		return nil, false
	}
	return r, true
}

// mutationError maps a failed mutation to a status code with a generic
// user-facing message; the underlying cause goes to the log only
func (h *Handler) mutationError(c *gin.Context, err error, message string) {
	h.logger.Warn(message,
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)

	if errors.Is(err, domain.ErrBadParamInput) {
		// Validation failures are safe to echo back.
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(getStatusCode(err), dto.ErrorResponse{
		Error:   errorCode(err),
		Message: message,
	})
}

// getStatusCode maps domain errors to HTTP status codes
func getStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBadParamInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, domain.ErrNotFound):
		return "task_not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrIndexMissing):
		return "index_missing"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
