package scripted

import (
	"context"
	"testing"

	"github.com/pedrow21/proxima/pkg/models"
)

func TestSendNewPromptReturnsScriptedTurnsInOrder(t *testing.T) {
	b := New(Turn{Text: "first"}, Turn{Text: "second"})
	ctx := context.Background()

	id1, err := b.SendNewPrompt(ctx, models.NewContext(), models.SessionChat, nil)
	if err != nil {
		t.Fatalf("SendNewPrompt: %v", err)
	}
	part1, err := b.GetResponse(ctx, id1)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if part1.ConcatenatedText() != "first" {
		t.Fatalf("want %q, got %q", "first", part1.ConcatenatedText())
	}

	id2, _ := b.SendNewPrompt(ctx, models.NewContext(), models.SessionChat, nil)
	part2, _ := b.GetResponse(ctx, id2)
	if part2.ConcatenatedText() != "second" {
		t.Fatalf("want %q, got %q", "second", part2.ConcatenatedText())
	}

	if b.Calls() != 2 {
		t.Fatalf("want 2 calls, got %d", b.Calls())
	}
}

func TestPastScriptedTurnsReturnEmptyFinal(t *testing.T) {
	b := New(Turn{Text: "only"})
	ctx := context.Background()
	b.SendNewPrompt(ctx, models.NewContext(), models.SessionChat, nil)

	id, _ := b.SendNewPrompt(ctx, models.NewContext(), models.SessionChat, nil)
	part, err := b.GetResponse(ctx, id)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if part.ConcatenatedText() != "" {
		t.Fatalf("want empty text past the scripted turns, got %q", part.ConcatenatedText())
	}
}

func TestGetResponseUnknownSessionIsError(t *testing.T) {
	b := New()
	if _, err := b.GetResponse(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unknown session id")
	}
}

func TestAddToSessionAppendsToWholeContext(t *testing.T) {
	b := New(Turn{Text: "resp"})
	ctx := context.Background()
	id, _ := b.SendNewPrompt(ctx, models.NewContext(models.NewPart(models.PositionUser, models.TextData("hi"))), models.SessionChat, nil)

	extra := models.NewPart(models.PositionUser, models.TextData("more"))
	if err := b.AddToSession(ctx, id, extra); err != nil {
		t.Fatalf("AddToSession: %v", err)
	}
	whole, err := b.GetWholeContext(id)
	if err != nil {
		t.Fatalf("GetWholeContext: %v", err)
	}
	if whole.Len() != 2 {
		t.Fatalf("want 2 parts after AddToSession, got %d", whole.Len())
	}
}

func TestStreamingEmitsTokensThenResponse(t *testing.T) {
	b := New(Turn{Tokens: []string{"a", "b", "c"}})
	ctx := context.Background()
	id, events, err := b.SendNewPromptStreaming(ctx, models.NewContext(), models.SessionChat, nil)
	if err != nil {
		t.Fatalf("SendNewPromptStreaming: %v", err)
	}
	var got string
	for e := range events {
		if e.Err != nil {
			t.Fatalf("unexpected stream error: %v", e.Err)
		}
		got += e.Data.Text
	}
	if got != "abc" {
		t.Fatalf("want %q, got %q", "abc", got)
	}
	part, err := b.GetResponse(ctx, id)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if part.ConcatenatedText() != "abc" {
		t.Fatalf("want final response %q, got %q", "abc", part.ConcatenatedText())
	}
}
