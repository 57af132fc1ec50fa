package profile

import "time"

// Profile mirrors a Clerk user inside our own database. The Clerk user ID is
// the join key used by every other table.
type Profile struct {
	ID             string     `json:"id"`
	ClerkUserID    string     `json:"clerk_user_id"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Role           string     `json:"role"`
	LastSignedInAt *time.Time `json:"last_signed_in_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
