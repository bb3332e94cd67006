package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Export renders a full session transcript in the given format.
// FormatJSON produces a {session, messages} document; FormatText produces a
// plain "role: content" transcript. An empty format defaults to JSON.
func (s *Store) Export(ctx context.Context, id int64, format string) ([]byte, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.Messages(ctx, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON, "":
		doc := struct {
			Session  *Session   `json:"session"`
			Messages []*Message `json:"messages"`
		}{Session: sess, Messages: messages}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode session export: %w", err)
		}
		return data, nil
	case FormatText:
		return []byte(renderText(sess, messages)), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (expected json or text)", format)
	}
}

func renderText(sess *Session, messages []*Message) string {
	var b strings.Builder

	title := sess.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&b, "Session %d: %s\n", sess.ID, title)
	fmt.Fprintf(&b, "Created: %s\n\n", sess.CreatedAt.Format(time.RFC3339))

	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		if msg.Status == StatusIncomplete {
			b.WriteString("[response incomplete]\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}
