package tag

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/policyvoice/server/internal/auth"
	"github.com/policyvoice/server/internal/conversation"
	apierrors "github.com/policyvoice/server/internal/errors"
	"github.com/policyvoice/server/internal/logger"
)

// Handler handles HTTP requests for tags, assignments, and suggestions.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new tag handler.
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log.WithComponent("tag_handler"),
	}
}

type createTagRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

// Create handles POST /api/v1/tags.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "name is required", nil)
		return
	}

	tag, err := h.service.Create(c.Request.Context(), userID, req.Name, req.Color)
	if err != nil {
		h.respondError(c, err, "failed to create tag")
		return
	}

	c.JSON(http.StatusCreated, tag)
}

// List handles GET /api/v1/tags.
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	tags, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to list tags",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to list tags", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

type updateTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Update handles PATCH /api/v1/tags/:id.
func (h *Handler) Update(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req updateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	tag, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), req.Name, req.Color)
	if err != nil {
		h.respondError(c, err, "failed to update tag")
		return
	}

	c.JSON(http.StatusOK, tag)
}

// Delete handles DELETE /api/v1/tags/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete tag")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type assignTagRequest struct {
	TagID string `json:"tag_id" binding:"required"`
}

// Assign handles POST /api/v1/conversations/:id/tags.
func (h *Handler) Assign(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req assignTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "tag_id is required", nil)
		return
	}

	if err := h.service.Assign(c.Request.Context(), userID, c.Param("id"), req.TagID); err != nil {
		h.respondError(c, err, "failed to assign tag")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unassign handles DELETE /api/v1/conversations/:id/tags/:tagId.
func (h *Handler) Unassign(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	if err := h.service.Unassign(c.Request.Context(), userID, c.Param("id"), c.Param("tagId")); err != nil {
		h.respondError(c, err, "failed to unassign tag")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListForConversation handles GET /api/v1/conversations/:id/tags.
func (h *Handler) ListForConversation(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	tags, err := h.service.ListForConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to list conversation tags")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// Suggest handles POST /api/v1/conversations/:id/tags/suggest.
func (h *Handler) Suggest(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	result, err := h.service.Suggest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to suggest tags")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		apierrors.AbortWithNotFound(c, "Tag not found", nil)
	case errors.Is(err, conversation.ErrNotFound):
		apierrors.AbortWithNotFound(c, "Conversation not found", nil)
	case errors.Is(err, ErrDuplicateName):
		apierrors.AbortWithConflict(c, "A tag with this name already exists", nil)
	case errors.Is(err, ErrInvalid):
		apierrors.AbortWithBadRequest(c, err.Error(), nil)
	default:
		h.logger.WithContext(c.Request.Context()).Error(msg, slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, msg, nil)
	}
}
