// Package scripted provides a Backend adapter driven by a canned sequence
// of responses, one per call to SendNewPrompt. It exists to back the
// dialogue loop's test suite the way loopTestProvider backs the agentic
// loop's tests: an index into a pre-scripted response table, advanced
// atomically per call.
package scripted

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/pkg/models"
)

// Turn is one scripted response: either a plain final reply or a
// tool-calling reply, expressed as the literal text the backend returns.
type Turn struct {
	Text string
	// Tokens, if non-empty, is used by the streaming path instead of
	// Text: each token is one stream event and their concatenation is the
	// response. SendNewPrompt always uses Text.
	Tokens []string
}

// Backend implements backend.Adapter by returning Turns[call] on the
// call'th invocation of SendNewPrompt (0-indexed); calls past the end of
// Turns return an empty final response so tests need not script every
// turn of a bounded loop.
type Backend struct {
	Turns []Turn

	call int32

	mu       sync.Mutex
	sessions map[backend.SessionID]session
	nextID   int64
}

type session struct {
	ctx      models.Context
	response models.ContextPart
}

// New returns a Backend scripted with turns, in order.
func New(turns ...Turn) *Backend {
	return &Backend{Turns: turns, sessions: map[backend.SessionID]session{}}
}

func (b *Backend) nextSessionID() backend.SessionID {
	b.nextID++
	return backend.SessionID(fmt.Sprintf("scripted-%d", b.nextID))
}

func (b *Backend) turnFor(call int) Turn {
	if call < 0 || call >= len(b.Turns) {
		return Turn{Text: ""}
	}
	return b.Turns[call]
}

// SendNewPrompt records ctx as the session's context and immediately
// computes the scripted response for this call index.
func (b *Backend) SendNewPrompt(_ context.Context, ctx models.Context, _ models.SessionType, _ *models.ChatConfiguration) (backend.SessionID, error) {
	call := int(atomic.AddInt32(&b.call, 1)) - 1
	turn := b.turnFor(call)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSessionID()
	b.sessions[id] = session{
		ctx:      ctx,
		response: models.NewPart(models.PositionAI, models.TextData(turn.Text)),
	}
	return id, nil
}

// SendNewPromptStreaming behaves like SendNewPrompt but also emits the
// scripted turn's text as a sequence of StreamEvents (split on Tokens, or
// a single event if Tokens is empty).
func (b *Backend) SendNewPromptStreaming(_ context.Context, ctx models.Context, _ models.SessionType, _ *models.ChatConfiguration) (backend.SessionID, <-chan backend.StreamEvent, error) {
	call := int(atomic.AddInt32(&b.call, 1)) - 1
	turn := b.turnFor(call)

	tokens := turn.Tokens
	fullText := turn.Text
	if len(tokens) == 0 && turn.Text != "" {
		tokens = []string{turn.Text}
	} else if len(tokens) > 0 {
		fullText = strings.Join(tokens, "")
	}

	b.mu.Lock()
	id := b.nextSessionID()
	b.sessions[id] = session{
		ctx:      ctx,
		response: models.NewPart(models.PositionAI, models.TextData(fullText)),
	}
	b.mu.Unlock()
	ch := make(chan backend.StreamEvent, len(tokens))
	for _, tok := range tokens {
		ch <- backend.StreamEvent{Data: models.TextData(tok), Position: models.PositionAI}
	}
	close(ch)
	return id, ch, nil
}

// AddToSession appends part to the session's recorded context. Scripted
// sessions are always in Standby, so this never returns ErrSessionBusy.
func (b *Backend) AddToSession(_ context.Context, id backend.SessionID, part models.ContextPart) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return backend.ErrSessionMissing
	}
	s.ctx.AddPart(part)
	b.sessions[id] = s
	return nil
}

// GetResponse returns the scripted response computed when id was created.
func (b *Backend) GetResponse(_ context.Context, id backend.SessionID) (models.ContextPart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return models.ContextPart{}, backend.ErrSessionMissing
	}
	return s.response, nil
}

// TryGetResponse is GetResponse's non-blocking twin; scripted responses
// are always immediately ready.
func (b *Backend) TryGetResponse(id backend.SessionID) (models.ContextPart, bool) {
	part, err := b.GetResponse(context.Background(), id)
	return part, err == nil
}

// GetWholeContext returns the context the session was created with, plus
// anything appended via AddToSession.
func (b *Backend) GetWholeContext(id backend.SessionID) (models.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return models.Context{}, backend.ErrSessionMissing
	}
	return s.ctx, nil
}

// Calls reports how many times SendNewPrompt/SendNewPromptStreaming have
// been invoked, for assertions like "the loop issued exactly N turns".
func (b *Backend) Calls() int {
	return int(atomic.LoadInt32(&b.call))
}
