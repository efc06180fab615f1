// Package endpoint implements the AI Endpoint Actor and Request Handler
// from spec.md §4.3: a Priority Mailbox owner that spawns one handler
// goroutine per accepted request, each driving internal/dialogue's
// state machine against a fresh backend client.
package endpoint

import (
	"github.com/pedrow21/proxima/internal/dialogue"
	"github.com/pedrow21/proxima/pkg/models"
)

// Variant is the tagged union of AI Endpoint Actor request kinds.
type Variant interface{ isVariant() }

// RespondToFullPrompt drives one full dialogue-loop turn (or the
// recursive Agent tool's nested call) over ctx.
type RespondToFullPrompt struct {
	Context     models.Context
	Streaming   bool
	SessionType models.SessionType
	Config      *models.ChatConfiguration
}

// ContinueOp is reserved for a future session-resumption variant;
// currently a no-op, matching spec.md §4.3.
type ContinueOp struct{}

func (RespondToFullPrompt) isVariant() {}
func (ContinueOp) isVariant()          {}

// Request is one message on the actor's Priority Mailbox: a variant plus
// the per-request reply channel the handler sends exactly one Response
// to.
type Request struct {
	Variant Variant
	Reply   chan Response
}

// Response is what a handler sends back. Exactly one of Block,
// MultiTurnBlock, or Stream is populated, depending on which path
// RespondToFullPrompt took; Err is set on failure and the others are
// left zero.
type Response struct {
	Err error

	// Block is the single-turn result when the request's configuration
	// names no tools: just the final AI response part.
	Block *models.ContextPart

	// MultiTurnBlock is the full accumulated context when the dialogue
	// loop ran one or more tool round trips.
	MultiTurnBlock *models.Context

	// Stream carries StartStream/ContinueStream events for a streaming
	// request, closed once the handler finishes. The terminal result
	// (Block or MultiTurnBlock semantics) is not separately delivered;
	// callers reconstruct it by replaying Stream if they need the final
	// Context, matching spec.md §4.3's "client observes a single merged
	// stream" framing.
	Stream <-chan StreamEvent
}

// StreamEvent is one element forwarded over Response.Stream, the same
// shape internal/dialogue.RunStreaming emits.
type StreamEvent = dialogue.StreamEvent
