package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/policyvoice/server/internal/auth"
	"github.com/policyvoice/server/internal/conversation"
	apierrors "github.com/policyvoice/server/internal/errors"
	"github.com/policyvoice/server/internal/logger"
)

// MaxConnectionsPerUser caps concurrent event stream subscriptions.
const MaxConnectionsPerUser = 5

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles the conversation event stream endpoints.
type Handler struct {
	hub           *Hub
	conversations *conversation.Service
	logger        *logger.Logger
}

// NewHandler creates a new realtime handler.
func NewHandler(hub *Hub, conversations *conversation.Service, log *logger.Logger) *Handler {
	return &Handler{
		hub:           hub,
		conversations: conversations,
		logger:        log.WithComponent("realtime_handler"),
	}
}

// Subscribe handles WebSocket GET /api/v1/voice/conversations/:id/events. The
// connection receives every event published to the conversation until the
// client disconnects.
func (h *Handler) Subscribe(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	conversationID := c.Param("id")
	if _, _, err := h.conversations.Get(c.Request.Context(), userID, conversationID); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			apierrors.AbortWithNotFound(c, "Conversation not found", nil)
			return
		}
		log.Error("failed to validate conversation",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to validate conversation", nil)
		return
	}

	if h.hub.UserConnectionCount(userID) >= MaxConnectionsPerUser {
		log.Warn("too many concurrent connections",
			slog.String("user_id", userID))
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			apierrors.NewAPIError("too many concurrent event stream connections", nil))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.hub.Register(conversationID, userID, conn)
	defer h.hub.Unregister(conn)

	if err := h.hub.Send(conn, Event{Type: EventTypeConnected, ConversationID: conversationID}); err != nil {
		log.Error("failed to send connected event",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		return
	}

	// Ping every 30s to keep intermediaries from dropping idle streams.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := h.hub.Ping(conn); err != nil {
				return
			}
		case <-done:
			log.Info("connection closed by client",
				slog.String("conversation_id", conversationID),
				slog.String("user_id", userID))
			return
		}
	}
}

type publishRequest struct {
	Type     string `json:"type" binding:"required,oneof=user_transcript assistant_transcript status"`
	Content  string `json:"content"`
	AudioURL string `json:"audio_url"`
	Status   string `json:"status"`
}

// Publish handles POST /api/v1/voice/conversations/:id/events. Transcript
// events are persisted as conversation messages before being fanned out;
// status events are broadcast only.
func (h *Handler) Publish(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		apierrors.AbortWithUnauthorized(c, "not authenticated", nil)
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	conversationID := c.Param("id")
	event := Event{Type: req.Type, ConversationID: conversationID, Status: req.Status}

	switch req.Type {
	case EventTypeUserTranscript, EventTypeAssistantTranscript:
		if req.Content == "" {
			apierrors.AbortWithBadRequest(c, "content is required for transcript events", nil)
			return
		}
		role := conversation.RoleUser
		if req.Type == EventTypeAssistantTranscript {
			role = conversation.RoleAssistant
		}
		msg, err := h.conversations.AddMessage(c.Request.Context(), userID, conversationID, role, req.Content, req.AudioURL)
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				apierrors.AbortWithNotFound(c, "Conversation not found", nil)
				return
			}
			h.logger.WithContext(c.Request.Context()).Error("failed to persist transcript event",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()))
			apierrors.AbortWithInternal(c, "failed to persist event", nil)
			return
		}
		event.Message = msg
	case EventTypeStatus:
		if _, _, err := h.conversations.Get(c.Request.Context(), userID, conversationID); err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				apierrors.AbortWithNotFound(c, "Conversation not found", nil)
				return
			}
			apierrors.AbortWithInternal(c, "failed to validate conversation", nil)
			return
		}
	}

	if err := h.hub.Broadcast(conversationID, event); err != nil {
		apierrors.AbortWithInternal(c, "failed to broadcast event", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "event": event})
}
