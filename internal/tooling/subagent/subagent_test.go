package subagent

import (
	"context"
	"testing"

	"github.com/pedrow21/proxima/pkg/models"
)

type fakeStore struct {
	chats  map[models.ChatID]models.Chat
	nextID models.ChatID
}

func newFakeStore() *fakeStore {
	return &fakeStore{chats: map[models.ChatID]models.Chat{}}
}

func (s *fakeStore) AddChat(chat models.Chat) (models.ChatID, error) {
	s.nextID++
	chat.ID = s.nextID
	s.chats[s.nextID] = chat
	return s.nextID, nil
}

func (s *fakeStore) UpdateChat(chat models.Chat) error {
	s.chats[chat.ID] = chat
	return nil
}

func (s *fakeStore) GetChat(id models.ChatID) (models.Chat, error) {
	return s.chats[id], nil
}

// fakeRequester returns a canned final response, standing in for a
// nested dialogue.Run round trip through the AI Endpoint Actor.
type fakeRequester struct {
	reply string
}

func (r *fakeRequester) RespondToFullPrompt(_ context.Context, prompt models.Context, _ models.SessionType, _ *models.ChatConfiguration, _ bool) (models.Context, error) {
	prompt.AddPart(models.NewPart(models.PositionAI, models.TextData(r.reply)))
	return prompt, nil
}

func TestRunCreatesAgentAndReturnsNameAndText(t *testing.T) {
	store := newFakeStore()
	requester := &fakeRequester{reply: "<response>4</response>"}
	tool := &Tool{Store: store, Requester: requester, Now: func() int64 { return 100 }}

	registry := Empty([]string{"Calculator"})
	out, newState, err := tool.Invoke(context.Background(), "run", "helper\ndefault model\nCalculator\n2+2 please", registry)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "helper\n4" {
		t.Fatalf("want %q, got %q", "helper\n4", out)
	}

	got := newState.(Registry)
	rec, ok := got.Agents["helper"]
	if !ok {
		t.Fatal("expected a registry entry for \"helper\"")
	}
	if rec.Model != "default model" || len(rec.AllowedTools) != 1 || rec.AllowedTools[0] != "Calculator" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(store.chats) != 1 {
		t.Fatalf("want exactly one persisted chat, got %d", len(store.chats))
	}
}

func TestRunRejectsToolNotAllocatable(t *testing.T) {
	tool := &Tool{Store: newFakeStore(), Requester: &fakeRequester{reply: "<response>ok</response>"}}
	registry := Empty([]string{"Calculator"})
	_, _, err := tool.Invoke(context.Background(), "run", "helper\nm\nWeb\ndo it", registry)
	if err == nil {
		t.Fatal("expected an error for a non-allocatable tool")
	}
}

func TestRunRejectsDuplicateName(t *testing.T) {
	store := newFakeStore()
	requester := &fakeRequester{reply: "<response>ok</response>"}
	tool := &Tool{Store: store, Requester: requester}
	registry := Empty([]string{"Calculator"})

	_, state, err := tool.Invoke(context.Background(), "run", "helper\nm\nCalculator\nhi", registry)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	_, _, err = tool.Invoke(context.Background(), "run", "helper\nm\nCalculator\nhi again", state.(Registry))
	if err == nil {
		t.Fatal("expected an error creating a second agent with the same name")
	}
}

func TestRespondAppendsTurnAndUpdatesChat(t *testing.T) {
	store := newFakeStore()
	tool := &Tool{Store: store, Requester: &fakeRequester{reply: "<response>4</response>"}}
	registry := Empty([]string{"Calculator"})

	out, state, err := tool.Invoke(context.Background(), "run", "helper\nm\nCalculator\n2+2", registry)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = out

	tool.Requester = &fakeRequester{reply: "<response>16</response>"}
	out, _, err = tool.Invoke(context.Background(), "respond", "helper\nwhat about 4*4", state.(Registry))
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if out != "helper\n16" {
		t.Fatalf("want %q, got %q", "helper\n16", out)
	}

	rec := state.(Registry).Agents["helper"]
	chat, _ := store.GetChat(rec.ChatID)
	if chat.Context.Len() < 3 {
		t.Fatalf("expected the respond turn to have appended to the chat's context, got %d parts", chat.Context.Len())
	}
}

func TestRespondUnknownAgentErrors(t *testing.T) {
	tool := &Tool{Store: newFakeStore(), Requester: &fakeRequester{}}
	_, _, err := tool.Invoke(context.Background(), "respond", "ghost\nhello", Empty(nil))
	if err == nil {
		t.Fatal("expected an error responding to an unknown agent")
	}
}
