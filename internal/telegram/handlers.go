package telegram

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for Telegram operations.
type Handler struct {
	service *Service
	secret  string
}

// NewHandler creates a new Telegram handler. An empty secret accepts every webhook call.
func NewHandler(service *Service, secret string) *Handler {
	return &Handler{
		service: service,
		secret:  secret,
	}
}

// Webhook receives an update pushed by Telegram.
// POST /telegram/webhook
func (h *Handler) Webhook(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			apperrors.AbortWithUnauthorized(c, "invalid webhook secret", nil)
			return
		}
	}

	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.service.logger.Warn("invalid webhook payload", slog.String("error", err.Error()))
		apperrors.AbortWithBadRequest(c, "invalid update", map[string]interface{}{"details": err.Error()})
		return
	}

	h.service.Dispatch(c.Request.Context(), update)
	c.Status(http.StatusOK)
}

// Status reports transport counters.
// GET /telegram/status
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}
