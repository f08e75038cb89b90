package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	// ErrInvalidUser is returned when a caller passes an empty user id.
	ErrInvalidUser = errors.New("chat: empty user id")
	// ErrInvalidRole is returned for roles outside user/assistant/system.
	ErrInvalidRole = errors.New("chat: unsupported role")
	// ErrEmptyContent is returned when a caller appends an empty message body.
	ErrEmptyContent = errors.New("chat: empty content")
)

// Message is a single stored conversational turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary describes a user's stored history without exposing the messages.
type Summary struct {
	UserID string       `json:"user_id"`
	Count  int          `json:"count"`
	First  time.Time    `json:"first,omitzero"`
	Last   time.Time    `json:"last,omitzero"`
	ByRole map[Role]int `json:"by_role"`
}

func validRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

func validateInput(userID string, role Role, content string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if !validRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if content == "" {
		return ErrEmptyContent
	}
	return nil
}
