package conversation

import "time"

// Message roles stored on a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one voice session's transcript container. Title is empty
// until a user sets one or the title service generates one.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one transcript turn. AudioURL is set when the client captured a
// recording for the turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AudioURL       string    `json:"audio_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
