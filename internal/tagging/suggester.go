package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/policyvoice/server/internal/config"
	"github.com/policyvoice/server/internal/llm"
	"github.com/policyvoice/server/internal/logger"
	"github.com/policyvoice/server/internal/metrics"
)

const (
	// maxContextChars hard-caps the transcript rendered into the prompt.
	maxContextChars = 3000

	// maxSuggestions caps the returned list.
	maxSuggestions = 5

	maxNameLength   = 30
	maxReasonLength = 100
)

// Message is one conversation turn supplied to the suggester.
type Message struct {
	Role    string
	Content string
}

// ExistingTag is one entry of the caller's tag vocabulary. Never mutated.
type ExistingTag struct {
	ID    string
	Name  string
	Color string
}

// Suggestion is one proposed tag with the model's certainty and rationale.
type Suggestion struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Result is the outcome of a suggestion call. Suggestions is empty and Error
// set when Success is false; the call itself never raises.
type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
}

// suggestionsPayload is the schema-constrained response shape.
type suggestionsPayload struct {
	Suggestions []struct {
		Name       string   `json:"name" jsonschema_description:"The tag name (1-3 words)"`
		Confidence *float64 `json:"confidence" jsonschema_description:"Confidence score 0.0-1.0"`
		Reason     string   `json:"reason" jsonschema_description:"Brief explanation for this suggestion"`
	} `json:"suggestions"`
}

var suggestionsSchema = llm.MustSchemaFor(&suggestionsPayload{})

// Suggester proposes organizational tags for conversation transcripts.
type Suggester struct {
	invoker llm.Invoker
	task    config.LLMTaskConfig
	logger  *logger.Logger
}

// NewSuggester creates a tag suggester backed by the given LLM invoker.
func NewSuggester(invoker llm.Invoker, task config.LLMTaskConfig, log *logger.Logger) *Suggester {
	return &Suggester{
		invoker: invoker,
		task:    task,
		logger:  log.WithComponent("tag_suggester"),
	}
}

// Suggest analyzes a transcript and proposes up to five tags, preferring
// names from the caller's existing vocabulary. Failures are reported through
// the Result, never as an error.
func (s *Suggester) Suggest(ctx context.Context, messages []Message, existingTags []ExistingTag) Result {
	if len(messages) == 0 {
		metrics.CountTagSuggestion("no_input")
		return Result{
			Suggestions: []Suggestion{},
			Success:     false,
			Error:       "No messages to analyze",
		}
	}

	log := s.logger.WithContext(ctx)

	resp, err := s.invoker.Invoke(ctx, llm.Request{
		Task:        "tag_suggestions",
		Model:       s.task.Model,
		MaxTokens:   s.task.MaxTokens,
		Temperature: s.task.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.systemPrompt(existingTags)},
			{Role: llm.RoleUser, Content: "Analyze this conversation and suggest tags:\n\n" + conversationContext(messages)},
		},
		ResponseFormat: &llm.JSONSchemaFormat{
			Name:   "tag_suggestions",
			Schema: suggestionsSchema,
		},
	})
	if err != nil {
		log.Error("tag suggestion call failed", slog.String("error", err.Error()))
		metrics.CountTagSuggestion("error")
		return Result{Suggestions: []Suggestion{}, Success: false, Error: err.Error()}
	}

	if strings.TrimSpace(resp.Content) == "" {
		metrics.CountTagSuggestion("empty")
		return Result{Suggestions: []Suggestion{}, Success: false, Error: "Empty response from LLM"}
	}

	var parsed suggestionsPayload
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		log.Error("failed to parse tag suggestions",
			slog.String("error", err.Error()),
			slog.String("content", resp.Content))
		metrics.CountTagSuggestion("parse_error")
		return Result{Suggestions: []Suggestion{}, Success: false, Error: fmt.Sprintf("parse suggestions: %v", err)}
	}

	suggestions := make([]Suggestion, 0, len(parsed.Suggestions))
	for _, candidate := range parsed.Suggestions {
		if candidate.Confidence == nil {
			continue
		}

		name := strings.TrimSpace(candidate.Name)
		if name == "" {
			continue
		}
		if runes := []rune(name); len(runes) > maxNameLength {
			name = string(runes[:maxNameLength])
		}

		confidence := *candidate.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		reason := candidate.Reason
		if runes := []rune(reason); len(runes) > maxReasonLength {
			reason = string(runes[:maxReasonLength])
		}

		suggestions = append(suggestions, Suggestion{
			Name:       name,
			Confidence: confidence,
			Reason:     reason,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	metrics.CountTagSuggestion("ok")
	return Result{Suggestions: suggestions, Success: true}
}

func (s *Suggester) systemPrompt(existingTags []ExistingTag) string {
	var b strings.Builder

	b.WriteString(`You are a conversation tagging assistant. Analyze the conversation and suggest 2-4 relevant tags that would help organize and categorize it.

Guidelines:
- Suggest tags that capture the main topics, themes, or categories discussed
- Tags should be concise (1-3 words each)
- Prioritize suggesting from existing tags when they fit well
- Also suggest new tags if the conversation covers topics not in existing tags
- Focus on policy-related categories like: regulations, compliance, ethics, privacy, AI governance, platform terms, legal, etc.
- Each tag should have a confidence score (0.0-1.0) and a brief reason`)

	if len(existingTags) > 0 {
		names := make([]string, 0, len(existingTags))
		for _, t := range existingTags {
			names = append(names, t.Name)
		}
		b.WriteString("\n\nExisting tags the user has created: ")
		b.WriteString(strings.Join(names, ", "))
	}

	return b.String()
}

func conversationContext(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "AI"
		if m.Role == "user" {
			speaker = "User"
		}
		lines = append(lines, speaker+": "+m.Content)
	}

	text := strings.Join(lines, "\n")
	if runes := []rune(text); len(runes) > maxContextChars {
		text = string(runes[:maxContextChars])
	}
	return text
}

// FindMatchingExistingTag returns the existing tag whose name equals the
// suggestion under case-insensitive, whitespace-trimmed comparison. Exact
// equality only; no substring or fuzzy matching.
func FindMatchingExistingTag(suggestion string, existingTags []ExistingTag) *ExistingTag {
	normalized := strings.ToLower(strings.TrimSpace(suggestion))
	for _, tag := range existingTags {
		if strings.ToLower(strings.TrimSpace(tag.Name)) == normalized {
			match := tag
			return &match
		}
	}
	return nil
}
