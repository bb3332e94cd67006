// Package session provides durable conversation transcripts backed by SQLite.
//
// A session is an ordered, append-only sequence of user and assistant
// messages. Assistant messages carry the passages that grounded them and a
// status marking whether generation ran to completion.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message statuses. An incomplete message holds the partial text of a
// generation that failed mid-stream.
const (
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// MaxTitleLength is the maximum length of a session title in characters.
const MaxTitleLength = 60

// Sentinel errors for session operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTitle indicates a session title is empty after trimming or
	// exceeds MaxTitleLength.
	ErrInvalidTitle = errors.New("invalid session title")
)

// Session is a single conversation.
type Session struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source is a retrieved passage attached to an assistant message.
type Source struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message is one entry in a session transcript.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateTitle checks a session title for rename operations.
// The title is trimmed of surrounding whitespace; the result must be between
// 1 and MaxTitleLength characters. Returns the trimmed title, never a
// truncated one.
func ValidateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", fmt.Errorf("%w: title is empty", ErrInvalidTitle)
	}
	if n := len([]rune(trimmed)); n > MaxTitleLength {
		return "", fmt.Errorf("%w: %d characters exceeds maximum of %d", ErrInvalidTitle, n, MaxTitleLength)
	}
	return trimmed, nil
}
