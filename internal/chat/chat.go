// Package chat runs one conversational turn: load history, retrieve
// supporting passages, stream a generated answer, persist both messages.
package chat

import (
	"context"
	"errors"

	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/rag"
	"github.com/lorein/lore/internal/session"
)

// Sentinel errors for chat operations.
var (
	// ErrEmptyQuery indicates the user query is empty after trimming.
	ErrEmptyQuery = errors.New("empty query")

	// ErrPersistence indicates the turn's messages could not be written.
	// The generated answer was already streamed to the caller when this
	// error is returned from a completed generation.
	ErrPersistence = errors.New("failed to persist turn")
)

// SystemPrompt steers the model toward the reference-context contract used
// by buildPrompt: cite numbered documents when context exists, fall back to
// general knowledge when the context block reads "[No context provided]".
const SystemPrompt = `# Role
You are a helpful and professional assistant. Your goal is to provide accurate
answers based on the information provided.

---

### Instructions:
1. **Context Priority:** If "Reference Context" contains information,
prioritize it. Use citations (e.g., "According to Document 1...") when possible.
2. **Missing Information:** If the Context is present but lacks the answer,
state that the documents don't contain the specific details before providing
a general answer.
3. **General Knowledge:** If the Context is empty or contains
"[No context provided]", answer the question directly and naturally using your
internal knowledge.
4. **Tone:** Maintain a natural conversation. Do NOT explain your internal
reasoning or state "I am answering based on my knowledge" unless the user asks
where the info came from.`

// Event types emitted to the caller during a turn, in order: one sources
// event, zero or more chunk events, then either a done or an error event.
const (
	EventSources = "sources"
	EventChunk   = "chunk"
	EventError   = "error"
	EventDone    = "done"
)

// Event is one unit of a streamed turn.
type Event struct {
	Type    string           `json:"type"`
	Chunk   string           `json:"chunk,omitempty"`
	Sources []corpus.Passage `json:"sources,omitempty"`
	Err     string           `json:"error,omitempty"`
}

// Turn is the completed result of Ask.
type Turn struct {
	SessionID int64            `json:"session_id"`
	Answer    string           `json:"answer"`
	Sources   []corpus.Passage `json:"sources,omitempty"`

	User      *session.Message `json:"user_message"`
	Assistant *session.Message `json:"assistant_message"`
}

// Retriever returns scored passages supporting a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]corpus.Passage, error)
}

// Generator streams model output for a prompt and derives session titles.
type Generator interface {
	Stream(ctx context.Context, prompt string, cb rag.StreamCallback) (string, error)
	Title(ctx context.Context, userMessage string) string
}

// SessionStore persists transcripts. *session.Store satisfies it.
type SessionStore interface {
	Get(ctx context.Context, id int64) (*session.Session, error)
	Messages(ctx context.Context, sessionID int64) ([]*session.Message, error)
	AddMessage(ctx context.Context, sessionID int64, msg session.Message) (*session.Message, error)
	Rename(ctx context.Context, id int64, title string) error
}
