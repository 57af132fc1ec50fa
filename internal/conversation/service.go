package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/policyvoice/server/internal/logger"
	"github.com/policyvoice/server/internal/titlegen"
)

// Service owns conversation and message operations, including ownership
// enforcement and title generation orchestration.
type Service struct {
	logger       *logger.Logger
	store        *Store
	generator    *titlegen.Generator
	titleService *titlegen.Service
}

// NewService creates a conversation service.
func NewService(log *logger.Logger, store *Store, generator *titlegen.Generator, titleService *titlegen.Service) *Service {
	return &Service{
		logger:       log.WithComponent("conversation_service"),
		store:        store,
		generator:    generator,
		titleService: titleService,
	}
}

// getOwned loads a conversation and hides other users' rows behind ErrNotFound.
func (s *Service) getOwned(ctx context.Context, userID, id string) (*Conversation, error) {
	conv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// Create starts a new conversation, optionally with a title.
func (s *Service) Create(ctx context.Context, userID, title string) (*Conversation, error) {
	return s.store.Create(ctx, userID, title)
}

// List returns the caller's conversations, optionally filtered by tag.
func (s *Service) List(ctx context.Context, userID, tagID string) ([]Conversation, error) {
	return s.store.ListByUser(ctx, userID, tagID)
}

// Get returns a conversation with its messages.
func (s *Service) Get(ctx context.Context, userID, id string) (*Conversation, []Message, error) {
	conv, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return conv, messages, nil
}

// Rename sets a conversation title supplied by the user.
func (s *Service) Rename(ctx context.Context, userID, id, title string) error {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.UpdateTitle(ctx, id, title)
}

// RegenerateTitle produces a fresh title for the conversation, avoiding the
// current one, persists it and returns it. currentTitle overrides the stored
// title when the client has local edits.
func (s *Service) RegenerateTitle(ctx context.Context, userID, id, currentTitle string) (string, error) {
	conv, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return "", err
	}

	if currentTitle == "" {
		currentTitle = conv.Title
	}

	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return "", err
	}

	title := s.generator.Generate(ctx, toTitleMessages(messages), currentTitle)

	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return "", fmt.Errorf("persist regenerated title: %w", err)
	}

	return title, nil
}

// Delete removes a conversation with everything attached to it.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// AddMessage appends a transcript turn. Once an untitled conversation gains
// enough context (a user turn and an assistant turn), title generation is
// queued in the background.
func (s *Service) AddMessage(ctx context.Context, userID, conversationID, role, content, audioURL string) (*Message, error) {
	conv, err := s.getOwned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	msg, err := s.store.AddMessage(ctx, conversationID, role, content, audioURL)
	if err != nil {
		return nil, err
	}

	if conv.Title == "" && s.titleService != nil {
		messages, err := s.store.ListMessages(ctx, conversationID)
		if err != nil {
			s.logger.WithContext(ctx).Warn("could not load messages for title check",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()))
			return msg, nil
		}

		titleMessages := toTitleMessages(messages)
		if titlegen.HasEnoughContext(titleMessages) {
			s.titleService.Enqueue(ctx, titlegen.Job{
				UserID:         userID,
				ConversationID: conversationID,
				Messages:       titleMessages,
			})
		}
	}

	return msg, nil
}

// Messages returns a conversation's transcript.
func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	if _, err := s.getOwned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// CleanupStale deletes abandoned empty conversations. Run on a schedule.
func (s *Service) CleanupStale(ctx context.Context, maxAge time.Duration) {
	deleted, err := s.store.DeleteStaleEmpty(ctx, maxAge)
	if err != nil {
		s.logger.Error("conversation cleanup failed", slog.String("error", err.Error()))
		return
	}

	if deleted > 0 {
		s.logger.Info("stale conversations cleaned up",
			slog.Int64("deleted", deleted),
			slog.Duration("max_age", maxAge))
	}
}

func toTitleMessages(messages []Message) []titlegen.Message {
	out := make([]titlegen.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, titlegen.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
