package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/policyvoice/server/internal/logger"
)

// ErrNotFound is returned when no profile exists for the user.
var ErrNotFound = errors.New("profile not found")

// Store persists Clerk-synced profiles in Postgres.
type Store struct {
	logger *logger.Logger
	db     *sql.DB
}

// NewStore creates a profile store backed by the given database.
func NewStore(log *logger.Logger, db *sql.DB) *Store {
	return &Store{
		logger: log.WithComponent("profile_store"),
		db:     db,
	}
}

// Upsert creates or refreshes the profile row for a Clerk user and stamps the
// sign-in time. Name and email only overwrite when non-empty.
func (s *Store) Upsert(ctx context.Context, clerkUserID, name, email string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, clerk_user_id, name, email, last_signed_in_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NOW())
		 ON CONFLICT (clerk_user_id) DO UPDATE SET
		     name = COALESCE(NULLIF(EXCLUDED.name, ''), profiles.name),
		     email = COALESCE(NULLIF(EXCLUDED.email, ''), profiles.email),
		     last_signed_in_at = NOW(),
		     updated_at = NOW()
		 RETURNING id, clerk_user_id, COALESCE(name, ''), COALESCE(email, ''), role,
		     last_signed_in_at, created_at, updated_at`,
		uuid.New().String(), clerkUserID, name, email,
	).Scan(&p.ID, &p.ClerkUserID, &p.Name, &p.Email, &p.Role,
		&p.LastSignedInAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}
	return &p, nil
}

// GetByClerkID fetches the profile for a Clerk user.
func (s *Store) GetByClerkID(ctx context.Context, clerkUserID string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, clerk_user_id, COALESCE(name, ''), COALESCE(email, ''), role,
		     last_signed_in_at, created_at, updated_at
		 FROM profiles
		 WHERE clerk_user_id = $1`,
		clerkUserID,
	).Scan(&p.ID, &p.ClerkUserID, &p.Name, &p.Email, &p.Role,
		&p.LastSignedInAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}
