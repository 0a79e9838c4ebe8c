package task

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for task operations.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new task handler.
func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the task API under rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	chats := rg.Group("/chats/:chatID/tasks")
	chats.GET("", h.GetTasks)
	chats.POST("", h.CreateTask)
	chats.GET("/:position", h.GetTask)
	chats.DELETE("/:position", h.DeleteTask)
}

func chatIDParam(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chatID"), 10, 64)
	if err != nil {
		apperrors.AbortWithBadRequest(c, "invalid chat id", map[string]interface{}{"chat_id": c.Param("chatID")})
		return 0, false
	}
	return chatID, true
}

func positionParam(c *gin.Context) (int, bool) {
	position, err := strconv.Atoi(c.Param("position"))
	if err != nil {
		apperrors.AbortWithBadRequest(c, "invalid task position", map[string]interface{}{"position": c.Param("position")})
		return 0, false
	}
	return position, true
}

// CreateTask handles POST /api/v1/chats/:chatID/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("task-handler")

	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to bind request", slog.String("error", err.Error()))
		apperrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"details": err.Error()})
		return
	}

	t, err := h.service.Create(c.Request.Context(), chatID, req.Text)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.Int64("chat_id", chatID))
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateTaskResponse{Task: t})
}

// GetTasks handles GET /api/v1/chats/:chatID/tasks
func (h *Handler) GetTasks(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("task-handler")

	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	tasks, err := h.service.List(c.Request.Context(), chatID)
	if err != nil {
		log.Error("failed to get tasks",
			slog.String("error", err.Error()),
			slog.Int64("chat_id", chatID))
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, GetTasksResponse{Tasks: tasks})
}

// GetTask handles GET /api/v1/chats/:chatID/tasks/:position
func (h *Handler) GetTask(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	position, ok := positionParam(c)
	if !ok {
		return
	}

	t, err := h.service.Get(c.Request.Context(), chatID, position)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).WithComponent("task-handler").Warn("failed to get task",
			slog.String("error", err.Error()),
			slog.Int64("chat_id", chatID),
			slog.Int("position", position))
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, GetTaskResponse{Task: t})
}

// DeleteTask handles DELETE /api/v1/chats/:chatID/tasks/:position
// Later tasks move up one position.
func (h *Handler) DeleteTask(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("task-handler")

	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	position, ok := positionParam(c)
	if !ok {
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), chatID, position)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.Int64("chat_id", chatID),
			slog.Int("position", position))
		apperrors.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteTaskResponse{
		Success: true,
		Message: fmt.Sprintf("Task %d deleted and IDs reorganized.", position),
		Task:    deleted,
	})
}
