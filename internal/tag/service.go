package tag

import (
	"context"
	"fmt"

	"github.com/policyvoice/server/internal/conversation"
	"github.com/policyvoice/server/internal/logger"
	"github.com/policyvoice/server/internal/tagging"
)

// SuggestedTag is a suggestion enriched with the matching existing tag, if any.
type SuggestedTag struct {
	Name          string  `json:"name"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
	ExistingTagID string  `json:"existing_tag_id,omitempty"`
	ExistingColor string  `json:"existing_color,omitempty"`
}

// SuggestResult is the outcome of a suggestion request.
type SuggestResult struct {
	Suggestions []SuggestedTag `json:"suggestions"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
}

// Service coordinates tag CRUD, assignments, and LLM-backed suggestions.
type Service struct {
	logger        *logger.Logger
	store         *Store
	conversations *conversation.Service
	suggester     *tagging.Suggester
}

// NewService creates a tag service.
func NewService(store *Store, conversations *conversation.Service, suggester *tagging.Suggester, log *logger.Logger) *Service {
	return &Service{
		logger:        log.WithComponent("tag_service"),
		store:         store,
		conversations: conversations,
		suggester:     suggester,
	}
}

// Create validates and inserts a new tag.
func (s *Service) Create(ctx context.Context, userID, name, color string) (*Tag, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	color, err = ValidateColor(color)
	if err != nil {
		return nil, err
	}
	return s.store.Create(ctx, userID, name, color)
}

// List returns all tags of the user.
func (s *Service) List(ctx context.Context, userID string) ([]Tag, error) {
	return s.store.ListByUser(ctx, userID)
}

// Update renames and/or recolors a tag. Empty fields keep their current value.
func (s *Service) Update(ctx context.Context, userID, id, name, color string) (*Tag, error) {
	current, err := s.store.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = current.Name
	} else if name, err = ValidateName(name); err != nil {
		return nil, err
	}

	if color == "" {
		color = current.Color
	} else if color, err = ValidateColor(color); err != nil {
		return nil, err
	}

	return s.store.Update(ctx, userID, id, name, color)
}

// Delete removes a tag and its assignments.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// Assign attaches a tag to a conversation after checking ownership of both.
func (s *Service) Assign(ctx context.Context, userID, conversationID, tagID string) error {
	if _, _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return err
	}
	if _, err := s.store.GetByID(ctx, userID, tagID); err != nil {
		return err
	}
	return s.store.Assign(ctx, conversationID, tagID)
}

// Unassign detaches a tag from a conversation.
func (s *Service) Unassign(ctx context.Context, userID, conversationID, tagID string) error {
	if _, _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.Unassign(ctx, conversationID, tagID)
}

// ListForConversation returns the tags on a conversation the user owns.
func (s *Service) ListForConversation(ctx context.Context, userID, conversationID string) ([]Tag, error) {
	if _, _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListForConversation(ctx, conversationID)
}

// Suggest runs the LLM suggester over the conversation transcript and marks
// suggestions that match one of the user's existing tags.
func (s *Service) Suggest(ctx context.Context, userID, conversationID string) (*SuggestResult, error) {
	messages, err := s.conversations.Messages(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing tags: %w", err)
	}

	existingTags := make([]tagging.ExistingTag, len(existing))
	for i, t := range existing {
		existingTags[i] = tagging.ExistingTag{ID: t.ID, Name: t.Name, Color: t.Color}
	}

	transcript := make([]tagging.Message, len(messages))
	for i, m := range messages {
		transcript[i] = tagging.Message{Role: m.Role, Content: m.Content}
	}

	result := s.suggester.Suggest(ctx, transcript, existingTags)

	out := &SuggestResult{
		Suggestions: []SuggestedTag{},
		Success:     result.Success,
		Error:       result.Error,
	}
	for _, sug := range result.Suggestions {
		st := SuggestedTag{
			Name:       sug.Name,
			Confidence: sug.Confidence,
			Reason:     sug.Reason,
		}
		if match := tagging.FindMatchingExistingTag(sug.Name, existingTags); match != nil {
			st.ExistingTagID = match.ID
			st.ExistingColor = match.Color
		}
		out.Suggestions = append(out.Suggestions, st)
	}
	return out, nil
}
