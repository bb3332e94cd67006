package chat_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lorein/lore/internal/chat"
	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/database"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/rag"
	"github.com/lorein/lore/internal/session"
)

type fakeRetriever struct {
	passages []corpus.Passage
	err      error

	calls     int
	lastQuery string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) ([]corpus.Passage, error) {
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

// fakeGenerator streams answer word by word. failAfter >= 0 injects failErr
// before delivering fragment number failAfter (0 fails before the first).
type fakeGenerator struct {
	answer    string
	failAfter int
	failErr   error
	title     string

	lastPrompt string
	titleCalls int
}

func newFakeGenerator(answer string) *fakeGenerator {
	return &fakeGenerator{answer: answer, failAfter: -1}
}

func (f *fakeGenerator) Stream(ctx context.Context, prompt string, cb rag.StreamCallback) (string, error) {
	f.lastPrompt = prompt
	for i, fragment := range strings.SplitAfter(f.answer, " ") {
		if f.failAfter >= 0 && i >= f.failAfter {
			return "", fmt.Errorf("%w: %w", rag.ErrGeneration, f.failErr)
		}
		if cb != nil {
			if err := cb(ctx, fragment); err != nil {
				return "", fmt.Errorf("%w: %w", rag.ErrGeneration, err)
			}
		}
	}
	return f.answer, nil
}

func (f *fakeGenerator) Title(_ context.Context, _ string) string {
	f.titleCalls++
	return f.title
}

type fixture struct {
	store *session.Store
	ret   *fakeRetriever
	gen   *fakeGenerator
	orch  *chat.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "lore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	f := &fixture{
		store: session.NewStore(db, log.NewNop()),
		ret:   &fakeRetriever{},
		gen:   newFakeGenerator("the answer is 42"),
	}
	f.orch = chat.New(f.store, f.ret, f.gen, log.NewNop())
	return f
}

func (f *fixture) newSession(t *testing.T, title string) int64 {
	t.Helper()
	sess, err := f.store.Create(context.Background(), title)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sess.ID
}

func collectEvents(events *[]chat.Event) func(chat.Event) error {
	return func(e chat.Event) error {
		*events = append(*events, e)
		return nil
	}
}

func TestAsk_StreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	f.ret.passages = []corpus.Passage{
		{Text: "doc one", Score: 0.9, Metadata: map[string]string{"source": "a.txt"}},
		{Text: "doc two", Score: 0.5},
	}
	id := f.newSession(t, "titled")
	ctx := context.Background()

	var events []chat.Event
	turn, err := f.orch.Ask(ctx, id, "what is the answer?", collectEvents(&events))
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if turn.Answer != "the answer is 42" {
		t.Errorf("Answer = %q", turn.Answer)
	}
	if len(turn.Sources) != 2 {
		t.Errorf("len(Sources) = %d, want 2", len(turn.Sources))
	}

	if events[0].Type != chat.EventSources || len(events[0].Sources) != 2 {
		t.Errorf("first event = %+v, want sources with 2 passages", events[0])
	}
	if last := events[len(events)-1]; last.Type != chat.EventDone {
		t.Errorf("last event = %+v, want done", last)
	}
	var streamed strings.Builder
	for _, e := range events {
		if e.Type == chat.EventChunk {
			streamed.WriteString(e.Chunk)
		}
	}
	if streamed.String() != turn.Answer {
		t.Errorf("streamed chunks = %q, want %q", streamed.String(), turn.Answer)
	}

	msgs, err := f.store.Messages(ctx, id)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[0].Content != "what is the answer?" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != session.RoleAssistant || msgs[1].Content != turn.Answer {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	if msgs[1].Status != session.StatusCompleted {
		t.Errorf("assistant status = %q, want completed", msgs[1].Status)
	}
	if len(msgs[1].Sources) != 2 || msgs[1].Sources[0].Metadata["source"] != "a.txt" {
		t.Errorf("assistant sources = %+v", msgs[1].Sources)
	}
}

func TestAsk_FirstTurnQueryIsRaw(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")

	if _, err := f.orch.Ask(context.Background(), id, "bare question", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.ret.lastQuery != "bare question" {
		t.Errorf("retriever query = %q, want raw query", f.ret.lastQuery)
	}
}

func TestAsk_HistoryBuildsConversation(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "titled")
	ctx := context.Background()

	if _, err := f.orch.Ask(ctx, id, "first question", nil); err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	if _, err := f.orch.Ask(ctx, id, "second question", nil); err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}

	want := "user: first question\n" +
		"assistant: the answer is 42\n" +
		"user: second question\n"
	if f.ret.lastQuery != want {
		t.Errorf("retriever query = %q, want %q", f.ret.lastQuery, want)
	}
	if !strings.HasSuffix(f.gen.lastPrompt, want) {
		t.Errorf("prompt does not end with conversation: %q", f.gen.lastPrompt)
	}
}

func TestAsk_PromptFormatsPassages(t *testing.T) {
	f := newFixture(t)
	f.ret.passages = []corpus.Passage{
		{Text: "alpha", Score: 0.9},
		{Text: "beta", Score: 0.8},
	}
	id := f.newSession(t, "titled")

	if _, err := f.orch.Ask(context.Background(), id, "q", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	for _, want := range []string{"### Reference Context:", "Document 1:\nalpha", "Document 2:\nbeta"} {
		if !strings.Contains(f.gen.lastPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, f.gen.lastPrompt)
		}
	}
	if strings.Contains(f.gen.lastPrompt, "[No context provided]") {
		t.Error("prompt has the no-context marker despite passages")
	}
}

func TestAsk_EmptyCorpusUsesMarker(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "titled")

	var events []chat.Event
	if _, err := f.orch.Ask(context.Background(), id, "q", collectEvents(&events)); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.Contains(f.gen.lastPrompt, "[No context provided]") {
		t.Errorf("prompt missing no-context marker:\n%s", f.gen.lastPrompt)
	}
	if events[0].Type != chat.EventSources || len(events[0].Sources) != 0 {
		t.Errorf("first event = %+v, want empty sources", events[0])
	}
}

func TestAsk_RetrievalErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.ret.err = fmt.Errorf("%w: backend down", rag.ErrRetrieval)
	id := f.newSession(t, "titled")
	ctx := context.Background()

	var events []chat.Event
	_, err := f.orch.Ask(ctx, id, "q", collectEvents(&events))
	if !errors.Is(err, rag.ErrRetrieval) {
		t.Fatalf("Ask() error = %v, want ErrRetrieval", err)
	}
	if len(events) != 1 || events[0].Type != chat.EventError {
		t.Errorf("events = %+v, want a single error event", events)
	}

	msgs, _ := f.store.Messages(ctx, id)
	if len(msgs) != 0 {
		t.Errorf("len(messages) = %d, want 0", len(msgs))
	}
}

func TestAsk_FailureBeforeFirstFragmentWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.gen.failAfter = 0
	f.gen.failErr = errors.New("model unavailable")
	id := f.newSession(t, "titled")
	ctx := context.Background()

	var events []chat.Event
	_, err := f.orch.Ask(ctx, id, "q", collectEvents(&events))
	if !errors.Is(err, rag.ErrGeneration) {
		t.Fatalf("Ask() error = %v, want ErrGeneration", err)
	}
	if last := events[len(events)-1]; last.Type != chat.EventError {
		t.Errorf("last event = %+v, want error", last)
	}

	msgs, _ := f.store.Messages(ctx, id)
	if len(msgs) != 0 {
		t.Errorf("len(messages) = %d, want 0", len(msgs))
	}
}

func TestAsk_MidStreamFailurePersistsPartial(t *testing.T) {
	f := newFixture(t)
	f.ret.passages = []corpus.Passage{{Text: "doc", Score: 0.9}}
	f.gen.failAfter = 2
	f.gen.failErr = errors.New("connection reset")
	id := f.newSession(t, "titled")
	ctx := context.Background()

	var events []chat.Event
	_, err := f.orch.Ask(ctx, id, "q", collectEvents(&events))
	if !errors.Is(err, rag.ErrGeneration) {
		t.Fatalf("Ask() error = %v, want ErrGeneration", err)
	}

	msgs, err := f.store.Messages(ctx, id)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want user + partial assistant", len(msgs))
	}
	if msgs[1].Status != session.StatusIncomplete {
		t.Errorf("assistant status = %q, want incomplete", msgs[1].Status)
	}
	if msgs[1].Content != "the answer " {
		t.Errorf("partial content = %q", msgs[1].Content)
	}
	if len(msgs[1].Sources) != 1 {
		t.Errorf("partial sources = %+v, want the retrieved passage", msgs[1].Sources)
	}
	if last := events[len(events)-1]; last.Type != chat.EventError {
		t.Errorf("last event = %+v, want error", last)
	}
}

// failingStore delegates reads to a real store but refuses every write.
type failingStore struct {
	*session.Store
	addErr error
}

func (s *failingStore) AddMessage(_ context.Context, _ int64, _ session.Message) (*session.Message, error) {
	return nil, s.addErr
}

func TestAsk_PersistFailureEmitsErrorEvent(t *testing.T) {
	f := newFixture(t)
	f.ret.passages = []corpus.Passage{{Text: "doc", Score: 0.9}}
	id := f.newSession(t, "titled")
	ctx := context.Background()

	store := &failingStore{Store: f.store, addErr: errors.New("disk full")}
	orch := chat.New(store, f.ret, f.gen, log.NewNop())

	var events []chat.Event
	_, err := orch.Ask(ctx, id, "q", collectEvents(&events))
	if !errors.Is(err, chat.ErrPersistence) {
		t.Fatalf("Ask() error = %v, want ErrPersistence", err)
	}

	last := events[len(events)-1]
	if last.Type != chat.EventError {
		t.Fatalf("last event = %+v, want error", last)
	}
	if !strings.Contains(last.Err, "disk full") {
		t.Errorf("error event Err = %q, want the store failure", last.Err)
	}
	for _, e := range events {
		if e.Type == chat.EventDone {
			t.Errorf("stream contains a done event after a failed turn")
		}
	}

	msgs, err := f.store.Messages(ctx, id)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(messages) = %d, want 0", len(msgs))
	}
}

func TestAsk_EmitErrorAbortsAndPersistsPartial(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "titled")
	ctx := context.Background()

	var chunks int
	emit := func(e chat.Event) error {
		if e.Type != chat.EventChunk {
			return nil
		}
		chunks++
		if chunks == 2 {
			return errors.New("client gone")
		}
		return nil
	}

	_, err := f.orch.Ask(ctx, id, "q", emit)
	if !errors.Is(err, rag.ErrGeneration) {
		t.Fatalf("Ask() error = %v, want ErrGeneration", err)
	}

	msgs, _ := f.store.Messages(ctx, id)
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[1].Status != session.StatusIncomplete {
		t.Errorf("assistant status = %q, want incomplete", msgs[1].Status)
	}
	if msgs[1].Content != "the answer " {
		t.Errorf("partial content = %q", msgs[1].Content)
	}
}

func TestAsk_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Ask(context.Background(), 999, "q", nil)
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Ask() error = %v, want ErrNotFound", err)
	}
	if f.ret.calls != 0 {
		t.Errorf("retriever called %d times for missing session", f.ret.calls)
	}
}

func TestAsk_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "titled")

	_, err := f.orch.Ask(context.Background(), id, "   \n ", nil)
	if !errors.Is(err, chat.ErrEmptyQuery) {
		t.Fatalf("Ask() error = %v, want ErrEmptyQuery", err)
	}
	if f.ret.calls != 0 {
		t.Errorf("retriever called %d times for empty query", f.ret.calls)
	}
}

func TestAsk_TitlesUntitledSessionOnFirstTurn(t *testing.T) {
	f := newFixture(t)
	f.gen.title = "Generated Title"
	id := f.newSession(t, "")
	ctx := context.Background()

	if _, err := f.orch.Ask(ctx, id, "first question", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	sess, err := f.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.Title != "Generated Title" {
		t.Errorf("Title = %q, want generated", sess.Title)
	}

	if _, err := f.orch.Ask(ctx, id, "second question", nil); err != nil {
		t.Fatalf("second Ask() error = %v", err)
	}
	if f.gen.titleCalls != 1 {
		t.Errorf("titleCalls = %d, want 1", f.gen.titleCalls)
	}
}

func TestAsk_KeepsExistingTitle(t *testing.T) {
	f := newFixture(t)
	f.gen.title = "Generated Title"
	id := f.newSession(t, "chosen by user")
	ctx := context.Background()

	if _, err := f.orch.Ask(ctx, id, "first question", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	sess, _ := f.store.Get(ctx, id)
	if sess.Title != "chosen by user" {
		t.Errorf("Title = %q, want unchanged", sess.Title)
	}
	if f.gen.titleCalls != 0 {
		t.Errorf("titleCalls = %d, want 0", f.gen.titleCalls)
	}
}
