package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"loreweave/internal/approve"
	"loreweave/internal/classify"
	"loreweave/internal/draft"
	"loreweave/internal/extract"
	"loreweave/internal/lore"
	"loreweave/internal/orchestrator"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

type emptyQuerier struct{}

func (emptyQuerier) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	return nil, store.ErrNotFound
}

func (emptyQuerier) SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error) {
	return nil, nil
}

func (emptyQuerier) ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return nil, nil
}

func (emptyQuerier) ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return nil, nil
}

func (emptyQuerier) ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error) {
	return nil, nil
}

type recordedMessage struct {
	role    string
	content string
}

type fakeLog struct {
	appendErr error
	messages  []recordedMessage
	titles    chan string
}

func newFakeLog() *fakeLog {
	return &fakeLog{titles: make(chan string, 1)}
}

func (f *fakeLog) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	if f.appendErr != nil && role == "user" {
		return f.appendErr
	}
	f.messages = append(f.messages, recordedMessage{role: role, content: content})
	return nil
}

func (f *fakeLog) SetTitle(ctx context.Context, conversationID, title string) error {
	f.titles <- title
	return nil
}

type fakeChat struct {
	reply  string
	err    error
	calls  int
	system string
}

func (f *fakeChat) Reply(ctx context.Context, systemPrompt string, history []classify.Message, message string) (string, error) {
	f.calls++
	f.system = systemPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeTitler struct{ title string }

func (f *fakeTitler) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.title, nil
}

type stubCreator struct {
	response json.RawMessage
	calls    int
}

func (s *stubCreator) CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error) {
	s.calls++
	return s.response, nil
}

func newTestService(log *fakeLog, chat *fakeChat, creator *stubCreator) (*Service, *draft.Manager) {
	registry := schema.Builtin()
	db := emptyQuerier{}
	engine := relate.NewEngine(db, nil)
	extractor := extract.New(nil, registry, db, nil)
	builder := lore.NewBuilder(registry, extractor, engine, nil)
	classifier := classify.New(nil, registry, nil)
	augmenter := orchestrator.New(classifier, builder, registry, nil)

	drafts := draft.NewManager(draft.NewMemoryStore(), nil)
	gate := approve.NewGate(creator, drafts, nil)

	return NewService(log, augmenter, drafts, gate, chat, &fakeTitler{title: "Highmoor Lore"}, nil), drafts
}

func TestHandleTurnPersistsUserMessageBeforeReplying(t *testing.T) {
	log := newFakeLog()
	chat := &fakeChat{err: fmt.Errorf("model unreachable")}
	svc, _ := newTestService(log, chat, &stubCreator{})

	_, err := svc.HandleTurn(context.Background(), "conv-1", "hello there", []classify.Message{{Role: "user", Content: "earlier"}})
	if err == nil {
		t.Fatal("chat failure should surface")
	}

	if len(log.messages) != 1 || log.messages[0].role != "user" {
		t.Fatalf("messages = %+v, want the user message persisted first", log.messages)
	}
}

func TestHandleTurnAbortsWhenPersistenceFails(t *testing.T) {
	log := newFakeLog()
	log.appendErr = fmt.Errorf("disk full")
	chat := &fakeChat{reply: "hi"}
	svc, _ := newTestService(log, chat, &stubCreator{})

	_, err := svc.HandleTurn(context.Background(), "conv-1", "hello", nil)
	if err == nil {
		t.Fatal("persistence failure should abort the turn")
	}
	if chat.calls != 0 {
		t.Fatal("no model call may happen before the message is persisted")
	}
}

func TestHandleTurnMergesDraftForLoreMessage(t *testing.T) {
	log := newFakeLog()
	chat := &fakeChat{reply: "Noted! Tell me more about Highmoor."}
	svc, drafts := newTestService(log, chat, &stubCreator{})

	result, err := svc.HandleTurn(context.Background(), "conv-1",
		`Add a location called "Highmoor". It is an abandoned settlement.`,
		[]classify.Message{{Role: "user", Content: "earlier"}})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if result.Augmented == nil || result.Draft == nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Draft.FilledFields["name"] != "Highmoor" {
		t.Fatalf("draft fields = %v", result.Draft.FilledFields)
	}
	if chat.system == "" {
		t.Fatal("augmented system prompt should reach the chat model")
	}

	saved, err := drafts.Load(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved == nil || saved.FilledFields["name"] != "Highmoor" {
		t.Fatalf("saved draft = %+v", saved)
	}

	if len(log.messages) != 2 || log.messages[1].role != "assistant" {
		t.Fatalf("messages = %+v", log.messages)
	}
}

func TestHandleTurnApprovalSkipsChatModel(t *testing.T) {
	log := newFakeLog()
	chat := &fakeChat{reply: "should not be used"}
	creator := &stubCreator{response: json.RawMessage(`{"entry": {"id": "abc", "slug": "highmoor", "name": "Highmoor"}, "warnings": []}`)}
	svc, drafts := newTestService(log, chat, creator)
	ctx := context.Background()

	sch, err := schema.Builtin().Get("location")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	fields := map[string]any{
		"type": "location", "name": "Highmoor", "category": "settlement",
		"status": "abandoned", "content": "An abandoned settlement.",
	}
	if _, err := drafts.MergeAndSave(ctx, "conv-1", &lore.ContextPackage{
		EntryType:       "location",
		Schema:          sch,
		FilledFields:    fields,
		MissingRequired: lore.MissingRequired(sch, fields),
	}); err != nil {
		t.Fatalf("seeding draft: %v", err)
	}

	result, err := svc.HandleTurn(ctx, "conv-1", "looks good, ship it",
		[]classify.Message{{Role: "user", Content: "earlier"}})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if chat.calls != 0 {
		t.Fatal("approval turns must not call the chat model")
	}
	if result.Approval == nil || !result.Approval.Created {
		t.Fatalf("approval = %+v", result.Approval)
	}
	if creator.calls != 1 {
		t.Fatalf("creator calls = %d", creator.calls)
	}
	if result.Reply != result.Approval.Message {
		t.Fatalf("reply = %q", result.Reply)
	}
}

func TestHandleTurnAutoTitlesFirstExchange(t *testing.T) {
	log := newFakeLog()
	chat := &fakeChat{reply: "hello"}
	svc, _ := newTestService(log, chat, &stubCreator{})

	if _, err := svc.HandleTurn(context.Background(), "conv-1", "hi", nil); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	select {
	case title := <-log.titles:
		if title != "Highmoor Lore" {
			t.Fatalf("title = %q", title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto-title never ran")
	}
}

func TestHandleTurnSkipsTitleAfterFirstExchange(t *testing.T) {
	log := newFakeLog()
	chat := &fakeChat{reply: "hello again"}
	svc, _ := newTestService(log, chat, &stubCreator{})

	if _, err := svc.HandleTurn(context.Background(), "conv-1", "hi",
		[]classify.Message{{Role: "user", Content: "earlier"}}); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	select {
	case title := <-log.titles:
		t.Fatalf("unexpected title %q", title)
	case <-time.After(100 * time.Millisecond):
	}
}
