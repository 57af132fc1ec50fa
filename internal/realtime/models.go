package realtime

import "github.com/policyvoice/server/internal/conversation"

// Event types pushed to subscribers of a conversation.
const (
	EventTypeConnected           = "connected"
	EventTypeUserTranscript      = "user_transcript"
	EventTypeAssistantTranscript = "assistant_transcript"
	EventTypeStatus              = "status"
)

// Event is one frame on the conversation event stream.
type Event struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Message        *conversation.Message `json:"message,omitempty"`
	Status         string                `json:"status,omitempty"`
}
