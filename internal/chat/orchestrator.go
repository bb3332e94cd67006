package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
)

// Orchestrator executes conversational turns. It holds no state across
// calls; history is reloaded from the session store at the start of each
// Ask, so orchestrators serving different sessions are fully independent.
// Concurrent Asks on the same session must be serialized by the caller.
type Orchestrator struct {
	sessions  SessionStore
	retriever Retriever
	generator Generator
	logger    log.Logger
}

func New(sessions SessionStore, retriever Retriever, generator Generator, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		sessions:  sessions,
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// Ask runs one turn for an existing session: builds the conversation prompt
// from prior messages, retrieves supporting passages, streams the generated
// answer through emit, and persists the user and assistant messages.
//
// emit receives one sources event, a chunk event per fragment, then done;
// a failed turn ends the stream with an error event instead. A nil emit
// buffers silently; the Turn still carries the full answer. An error from
// emit aborts generation and is returned.
//
// Failure semantics: a generation failure before the first fragment writes
// nothing; a failure after at least one fragment persists the user message
// and the partial answer with StatusIncomplete. Persistence failures wrap
// ErrPersistence. Returns session.ErrNotFound for an unknown session.
func (o *Orchestrator) Ask(ctx context.Context, sessionID int64, query string, emit func(Event) error) (*Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if emit == nil {
		emit = func(Event) error { return nil }
	}

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := o.sessions.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conversation := buildConversation(history, query)

	passages, err := o.retriever.Retrieve(ctx, conversation)
	if err != nil {
		_ = emit(Event{Type: EventError, Err: err.Error()})
		return nil, err
	}
	if err := emit(Event{Type: EventSources, Sources: passages}); err != nil {
		return nil, fmt.Errorf("emit sources: %w", err)
	}

	prompt := buildPrompt(conversation, passages)

	var buf strings.Builder
	var fragments int
	answer, genErr := o.generator.Stream(ctx, prompt, func(ctx context.Context, fragment string) error {
		fragments++
		buf.WriteString(fragment)
		return emit(Event{Type: EventChunk, Chunk: fragment})
	})

	if genErr != nil {
		_ = emit(Event{Type: EventError, Err: genErr.Error()})
		if fragments == 0 {
			return nil, genErr
		}
		o.logger.Warn("generation failed mid-stream, persisting partial answer",
			"session_id", sessionID, "fragments", fragments, "error", genErr)
		if _, _, err := o.persist(ctx, sessionID, query, buf.String(), passages, session.StatusIncomplete); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return nil, genErr
	}

	userMsg, asstMsg, err := o.persist(ctx, sessionID, query, answer, passages, session.StatusCompleted)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		_ = emit(Event{Type: EventError, Err: err.Error()})
		return nil, err
	}

	if err := emit(Event{Type: EventDone}); err != nil {
		return nil, fmt.Errorf("emit done: %w", err)
	}

	if sess.Title == "" && len(history) == 0 {
		o.titleSession(ctx, sessionID, query)
	}

	return &Turn{
		SessionID: sessionID,
		Answer:    answer,
		Sources:   passages,
		User:      userMsg,
		Assistant: asstMsg,
	}, nil
}

// persist writes the turn's user message then the assistant message, so the
// transcript read order is user, assistant for every turn.
func (o *Orchestrator) persist(ctx context.Context, sessionID int64, query, answer string, passages []corpus.Passage, status string) (*session.Message, *session.Message, error) {
	userMsg, err := o.sessions.AddMessage(ctx, sessionID, session.Message{
		Role:    session.RoleUser,
		Content: query,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("add user message: %w", err)
	}

	asstMsg, err := o.sessions.AddMessage(ctx, sessionID, session.Message{
		Role:    session.RoleAssistant,
		Content: answer,
		Sources: toSources(passages),
		Status:  status,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("add assistant message: %w", err)
	}
	return userMsg, asstMsg, nil
}

// titleSession names a fresh session after its first question. Best-effort.
func (o *Orchestrator) titleSession(ctx context.Context, sessionID int64, query string) {
	title := o.generator.Title(ctx, query)
	if title == "" {
		return
	}
	if err := o.sessions.Rename(ctx, sessionID, title); err != nil {
		o.logger.Warn("failed to set session title", "session_id", sessionID, "error", err)
	}
}

// buildConversation renders prior turns as "role: content" lines followed by
// the new question. With no history the prompt is the raw query.
func buildConversation(history []*session.Message, query string) string {
	if len(history) == 0 {
		return query
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	b.WriteString("user: ")
	b.WriteString(query)
	b.WriteByte('\n')
	return b.String()
}

// noContextMarker must match the wording SystemPrompt instructs the model
// to recognize.
const noContextMarker = "[No context provided]"

// buildPrompt prepends the retrieved passages as a numbered reference block
// the model can cite from.
func buildPrompt(conversation string, passages []corpus.Passage) string {
	var b strings.Builder
	b.WriteString("### Reference Context:\n")
	if len(passages) == 0 {
		b.WriteString(noContextMarker)
		b.WriteByte('\n')
	} else {
		for i, p := range passages {
			fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, p.Text)
		}
	}
	b.WriteString("\n---\n\n")
	b.WriteString(conversation)
	return b.String()
}

func toSources(passages []corpus.Passage) []session.Source {
	if len(passages) == 0 {
		return nil
	}
	sources := make([]session.Source, len(passages))
	for i, p := range passages {
		sources[i] = session.Source{Text: p.Text, Score: p.Score, Metadata: p.Metadata}
	}
	return sources
}
