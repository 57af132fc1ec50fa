package tag

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps tag name and color validation failures.
var ErrInvalid = errors.New("invalid tag")

// DefaultColor is applied when a tag is created without an explicit color.
const DefaultColor = "blue"

// MaxNameLength bounds tag names at creation and rename time.
const MaxNameLength = 30

// validColors is the fixed palette the client renders.
var validColors = map[string]bool{
	"blue":   true,
	"green":  true,
	"purple": true,
	"orange": true,
	"pink":   true,
	"red":    true,
	"yellow": true,
	"cyan":   true,
}

// Tag is a user-owned label attachable to conversations.
type Tag struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateName trims and checks a tag name, returning the normalized form.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalid)
	}
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, MaxNameLength)
	}
	return name, nil
}

// ValidateColor returns the color to store, defaulting when none is given.
func ValidateColor(color string) (string, error) {
	if color == "" {
		return DefaultColor, nil
	}
	color = strings.ToLower(strings.TrimSpace(color))
	if !validColors[color] {
		return "", fmt.Errorf("%w: unknown color %q", ErrInvalid, color)
	}
	return color, nil
}
