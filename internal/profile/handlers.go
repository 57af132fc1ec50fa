package profile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/policyvoice/server/internal/auth"
	apierrors "github.com/policyvoice/server/internal/errors"
	"github.com/policyvoice/server/internal/logger"
)

// Handler handles HTTP requests for profile sync and lookup.
type Handler struct {
	store  *Store
	logger *logger.Logger
}

// NewHandler creates a new profile handler.
func NewHandler(store *Store, log *logger.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: log.WithComponent("profile_handler"),
	}
}

type syncRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Sync handles POST /api/v1/profile/sync. Clients call it after sign-in so the
// local profile row tracks the Clerk account.
func (h *Handler) Sync(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	p, err := h.store.Upsert(c.Request.Context(), userID, req.Name, req.Email)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("failed to sync profile",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to sync profile", nil)
		return
	}

	c.JSON(http.StatusOK, p)
}

// Get handles GET /api/v1/profile.
func (h *Handler) Get(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	p, err := h.store.GetByClerkID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			apierrors.AbortWithNotFound(c, "Profile not found", nil)
			return
		}
		h.logger.WithContext(c.Request.Context()).Error("failed to get profile",
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to get profile", nil)
		return
	}

	c.JSON(http.StatusOK, p)
}
