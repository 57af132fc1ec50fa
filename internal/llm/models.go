package llm

import "context"

// Message roles accepted by the chat-completions endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchemaFormat constrains the completion to a strict JSON schema.
type JSONSchemaFormat struct {
	Name   string
	Schema map[string]interface{}
}

// Request contains the parameters for a single completion call.
type Request struct {
	// Task names the calling feature for logging and metrics ("title", "tag_suggestions").
	Task           string
	Model          string
	Messages       []Message
	MaxTokens      int
	Temperature    float64
	ResponseFormat *JSONSchemaFormat
}

// Response exposes the single textual (or schema-validated JSON) choice.
type Response struct {
	Content string
}

// Invoker is the LLM invocation boundary. Implementations must be safe for
// concurrent use; each call is independent.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
