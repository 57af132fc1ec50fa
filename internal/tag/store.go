package tag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/policyvoice/server/internal/logger"
)

// ErrNotFound is returned when a tag does not exist or belongs to another user.
var ErrNotFound = errors.New("tag not found")

// ErrDuplicateName is returned when a tag with the same name (case-insensitive)
// already exists for the user.
var ErrDuplicateName = errors.New("tag name already in use")

// Store persists tags and tag assignments in Postgres.
type Store struct {
	logger *logger.Logger
	db     *sql.DB
}

// NewStore creates a tag store backed by the given database.
func NewStore(log *logger.Logger, db *sql.DB) *Store {
	return &Store{
		logger: log.WithComponent("tag_store"),
		db:     db,
	}
}

// Create inserts a new tag for the user.
func (s *Store) Create(ctx context.Context, userID, name, color string) (*Tag, error) {
	t := &Tag{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
		Color:  color,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tags (id, user_id, name, color)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		t.ID, userID, name, color,
	).Scan(&t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	return t, nil
}

// GetByID fetches a tag owned by the user.
func (s *Store) GetByID(ctx context.Context, userID, id string) (*Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, color, created_at
		 FROM tags
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

// ListByUser returns every tag of the user ordered by name.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, color, created_at
		 FROM tags
		 WHERE user_id = $1
		 ORDER BY LOWER(name) ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// Update renames and/or recolors a tag owned by the user.
func (s *Store) Update(ctx context.Context, userID, id, name, color string) (*Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx,
		`UPDATE tags
		 SET name = $3, color = $4
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, name, color, created_at`,
		id, userID, name, color,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update tag: %w", err)
	}
	return &t, nil
}

// Delete removes a tag; assignments cascade.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Assign links a tag to a conversation. Re-assigning is a no-op.
func (s *Store) Assign(ctx context.Context, conversationID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_tags (conversation_id, tag_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		conversationID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign tag: %w", err)
	}
	return nil
}

// Unassign removes a tag from a conversation.
func (s *Store) Unassign(ctx context.Context, conversationID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_tags
		 WHERE conversation_id = $1 AND tag_id = $2`,
		conversationID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to unassign tag: %w", err)
	}
	return nil
}

// ListForConversation returns the tags assigned to a conversation.
func (s *Store) ListForConversation(ctx context.Context, conversationID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.name, t.color, t.created_at
		 FROM tags t
		 JOIN conversation_tags ct ON ct.tag_id = t.id
		 WHERE ct.conversation_id = $1
		 ORDER BY LOWER(t.name) ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
