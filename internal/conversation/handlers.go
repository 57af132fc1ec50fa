package conversation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/policyvoice/server/internal/auth"
	apierrors "github.com/policyvoice/server/internal/errors"
	"github.com/policyvoice/server/internal/logger"
)

// Handler handles HTTP requests for conversations and messages.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new conversation handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log.WithComponent("conversation_handler"),
	}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// Create handles POST /api/v1/conversations.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	conv, err := h.service.Create(c.Request.Context(), userID, req.Title)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to create conversation",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to create conversation", nil)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations. An optional ?tag=<id> query filters
// by tag assignment.
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	conversations, err := h.service.List(c.Request.Context(), userID, c.Query("tag"))
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to list conversations",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to list conversations", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Get handles GET /api/v1/conversations/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	conv, messages, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to get conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

// Rename handles PATCH /api/v1/conversations/:id/title.
func (h *Handler) Rename(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "title is required", nil)
		return
	}

	if err := h.service.Rename(c.Request.Context(), userID, c.Param("id"), req.Title); err != nil {
		h.respondError(c, err, "failed to rename conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type regenerateTitleRequest struct {
	CurrentTitle string `json:"current_title"`
}

// RegenerateTitle handles POST /api/v1/conversations/:id/title/generate.
func (h *Handler) RegenerateTitle(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req regenerateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	title, err := h.service.RegenerateTitle(c.Request.Context(), userID, c.Param("id"), req.CurrentTitle)
	if err != nil {
		h.respondError(c, err, "failed to regenerate title")
		return
	}

	c.JSON(http.StatusOK, gin.H{"title": title})
}

// Delete handles DELETE /api/v1/conversations/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type addMessageRequest struct {
	Role     string `json:"role" binding:"required,oneof=user assistant"`
	Content  string `json:"content" binding:"required"`
	AudioURL string `json:"audio_url"`
}

// AddMessage handles POST /api/v1/conversations/:id/messages.
func (h *Handler) AddMessage(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	msg, err := h.service.AddMessage(c.Request.Context(), userID, c.Param("id"), req.Role, req.Content, req.AudioURL)
	if err != nil {
		h.respondError(c, err, "failed to add message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// ListMessages handles GET /api/v1/conversations/:id/messages.
func (h *Handler) ListMessages(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	messages, err := h.service.Messages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to list messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		apierrors.AbortWithNotFound(c, "Conversation not found", nil)
		return
	}

	h.logger.WithContext(c.Request.Context()).Error(msg, slog.String("error", err.Error()))
	apierrors.AbortWithInternal(c, msg, nil)
}
