package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/policyvoice/server/internal/logger"
)

// ErrNotFound is returned when a conversation does not exist. Handlers also
// map other users' conversations to this error, matching the API contract.
var ErrNotFound = errors.New("conversation not found")

// Store handles persistence of conversations and messages to PostgreSQL.
type Store struct {
	logger *logger.Logger
	db     *sql.DB
}

// NewStore creates a new conversation store.
func NewStore(log *logger.Logger, db *sql.DB) *Store {
	return &Store{
		logger: log.WithComponent("conversation_store"),
		db:     db,
	}
}

// Create inserts a new conversation. Title may be empty.
func (s *Store) Create(ctx context.Context, userID, title string) (*Conversation, error) {
	id := uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $4)
	`

	if _, err := s.db.ExecContext(ctx, query, id, userID, title, now); err != nil {
		s.logger.WithContext(ctx).Error("failed to create conversation",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetByID retrieves a conversation by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, user_id, COALESCE(title, ''), created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv Conversation
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return &conv, nil
}

// ListByUser retrieves a user's conversations, most recently updated first.
// When tagID is non-empty only conversations carrying that tag are returned.
func (s *Store) ListByUser(ctx context.Context, userID, tagID string) ([]Conversation, error) {
	query := `
		SELECT id, user_id, COALESCE(title, ''), created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	args := []interface{}{userID}

	if tagID != "" {
		query = `
			SELECT c.id, c.user_id, COALESCE(c.title, ''), c.created_at, c.updated_at
			FROM conversations c
			JOIN conversation_tags ct ON ct.conversation_id = c.id
			WHERE c.user_id = $1 AND ct.tag_id = $2
			ORDER BY c.updated_at DESC
		`
		args = append(args, tagID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// UpdateTitle sets a conversation's title.
func (s *Store) UpdateTitle(ctx context.Context, id, title string) error {
	query := `
		UPDATE conversations
		SET title = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, title)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SetTitleIfUntitled writes the title only when the conversation still has
// none, so a manual rename that raced the generator wins.
func (s *Store) SetTitleIfUntitled(ctx context.Context, id, title string) error {
	query := `
		UPDATE conversations
		SET title = $2, updated_at = NOW()
		WHERE id = $1 AND (title IS NULL OR title = '')
	`

	if _, err := s.db.ExecContext(ctx, query, id, title); err != nil {
		return fmt.Errorf("failed to set generated title: %w", err)
	}

	return nil
}

// Delete removes a conversation. Messages and tag assignments go with it via
// ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}

	return nil
}

// AddMessage appends a transcript turn and touches the conversation's
// updated_at so listings sort by recent activity.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content, audioURL string) (*Message, error) {
	log := s.logger.WithContext(ctx)

	id := uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO messages (id, conversation_id, role, content, audio_url, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`

	if _, err := s.db.ExecContext(ctx, query, id, conversationID, role, content, audioURL, now); err != nil {
		log.Error("failed to add message",
			slog.String("conversation_id", conversationID),
			slog.String("role", role),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`, conversationID, now); err != nil {
		log.Warn("failed to touch conversation",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}

	log.Debug("message added",
		slog.String("conversation_id", conversationID),
		slog.String("message_id", id),
		slog.String("role", role))

	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AudioURL:       audioURL,
		CreatedAt:      now,
	}, nil
}

// ListMessages retrieves a conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, COALESCE(audio_url, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.AudioURL, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteStaleEmpty removes untitled conversations with no messages older than
// maxAge. Abandoned sessions from voice connections that never produced a
// transcript accumulate otherwise.
func (s *Store) DeleteStaleEmpty(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	query := `
		DELETE FROM conversations c
		WHERE c.title IS NULL
		  AND c.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id)
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale conversations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return deleted, nil
}
