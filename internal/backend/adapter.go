// Package backend defines the Backend Adapter interface abstracting over
// a chat-completion provider (spec.md §4.3/§2), plus the session-state
// machine every concrete adapter must honor.
package backend

import (
	"context"
	"errors"

	"github.com/pedrow21/proxima/pkg/models"
)

// ErrSessionMissing is returned when an operation names a SessionID the
// adapter has never seen (or has already discarded after Over).
var ErrSessionMissing = errors.New("backend: session missing")

// ErrSessionBusy is returned by AddToSession when the session is not
// currently in Standby (e.g. a response is still in flight).
var ErrSessionBusy = errors.New("backend: session busy")

// SessionID identifies one in-progress prompt-response exchange with a
// backend adapter.
type SessionID string

// SessionState is one of the four states a session passes through.
type SessionState int

const (
	SessionBeginning SessionState = iota
	SessionWaiting
	SessionStandby
	SessionOver
)

// StreamEvent is one token forwarded by the streaming prompt path.
type StreamEvent struct {
	Data     models.ContextData
	Position models.ContextPosition
	Err      error
}

// Adapter abstracts over a chat-completion provider. A session is in one
// of {Beginning, Waiting, Standby, Over}; AddToSession is valid only in
// Standby. The anthropic and openai implementations serialize Context
// into the provider's message format: User/System/AI map directly onto
// the provider's matching role, while Tool and Total are sent as ordinary
// user turns (neither uses the provider's tool role). Only the text of
// each part is sent: image ContextData is dropped without an error, and a
// part with no text is skipped.
type Adapter interface {
	// SendNewPrompt starts a fresh session from ctx and blocks until the
	// provider accepts it, returning the new SessionID.
	SendNewPrompt(ctx context.Context, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration) (SessionID, error)

	// SendNewPromptStreaming is the streaming twin of SendNewPrompt: it
	// returns immediately with a channel of StreamEvents, closed when the
	// upstream stream ends.
	SendNewPromptStreaming(ctx context.Context, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration) (SessionID, <-chan StreamEvent, error)

	// AddToSession appends part to an existing session. Valid only when
	// the session is in Standby; returns ErrSessionBusy or
	// ErrSessionMissing otherwise.
	AddToSession(ctx context.Context, id SessionID, part models.ContextPart) error

	// GetResponse blocks, driving the adapter's in-flight work, until id
	// produces a result.
	GetResponse(ctx context.Context, id SessionID) (models.ContextPart, error)

	// TryGetResponse is GetResponse's non-blocking twin: ok is false if
	// no response is ready yet.
	TryGetResponse(id SessionID) (part models.ContextPart, ok bool)

	// GetWholeContext returns the accumulated context of a session.
	GetWholeContext(id SessionID) (models.Context, error)
}
