package endpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/internal/dialogue"
	"github.com/pedrow21/proxima/internal/mailbox"
	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/internal/tooling"
	"github.com/pedrow21/proxima/internal/tooling/calculator"
	"github.com/pedrow21/proxima/internal/tooling/localmemory"
	"github.com/pedrow21/proxima/internal/tooling/python"
	"github.com/pedrow21/proxima/internal/tooling/subagent"
	"github.com/pedrow21/proxima/internal/tooling/web"
	"github.com/pedrow21/proxima/pkg/models"
)

// NewAdapter constructs a fresh, single-use backend.Adapter for one
// Request Handler, matching spec.md §4.3's "instantiates a fresh
// backend client" per accepted request.
type NewAdapter func() (backend.Adapter, error)

// Config bundles an Actor's construction-time dependencies: the backend
// factory, the Database Actor it persists sub-agent chats through, and
// the external endpoints its Web/Python tools reach.
type Config struct {
	NewAdapter   NewAdapter
	Store        *store.Actor
	SearchBase   string
	PyExecBroker string
	OriginDevice int
	Now          func() int64
	Log          *slog.Logger
}

// Actor owns connection parameters to the external chat service and
// spawns a Request Handler goroutine per accepted mailbox message,
// matching spec.md §4.3/§2.
type Actor struct {
	mb           *mailbox.Mailbox[Request]
	newAdapter   NewAdapter
	dispatcher   *tooling.Dispatcher
	log          *slog.Logger
	originDevice int
	now          func() int64
}

// NewActor builds an Actor with its tool dispatcher fully wired:
// LocalMemory, Calculator, Web, Python, and Agent — the last addressed
// back at this very Actor as its self_sender, letting a nested
// RespondToFullPrompt recurse through the same mailbox without the
// tooling package depending on this one.
func NewActor(cfg Config) *Actor {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return 0 }
	}

	a := &Actor{
		mb:           mailbox.New[Request](),
		newAdapter:   cfg.NewAdapter,
		log:          cfg.Log,
		originDevice: cfg.OriginDevice,
		now:          cfg.Now,
	}

	agentTool := &subagent.Tool{
		Store:        storeClient{db: cfg.Store},
		Requester:    a,
		Now:          cfg.Now,
		OriginDevice: cfg.OriginDevice,
	}
	a.dispatcher = tooling.NewDispatcher(
		localmemory.Tool{},
		calculator.Tool{},
		web.New(cfg.SearchBase),
		python.New(cfg.PyExecBroker),
		agentTool,
	)
	return a
}

// Mailbox exposes the actor's request queue to callers (apiserver, the
// Agent tool's self_sender) that need to send requests in.
func (a *Actor) Mailbox() *mailbox.Mailbox[Request] { return a.mb }

// Run drives the actor loop until its mailbox is closed and drains,
// matching internal/store.Actor's own Run/Close shape.
func (a *Actor) Run() { a.mb.Run(a.handle) }

// Close stops the actor loop once its mailbox drains.
func (a *Actor) Close() { a.mb.Close() }

// handle spawns one Request Handler goroutine per accepted message and
// returns immediately, so a slow or recursive handler never blocks the
// actor's own mailbox loop.
func (a *Actor) handle(req Request) {
	go a.serve(req)
}

func (a *Actor) serve(req Request) {
	switch v := req.Variant.(type) {
	case RespondToFullPrompt:
		a.serveRespond(req.Reply, v)
	case ContinueOp:
		req.Reply <- Response{}
	default:
		req.Reply <- Response{Err: fmt.Errorf("endpoint: unknown request variant %T", v)}
	}
}

func (a *Actor) serveRespond(reply chan Response, v RespondToFullPrompt) {
	ctx := context.Background()
	adapter, err := a.newAdapter()
	if err != nil {
		reply <- Response{Err: fmt.Errorf("endpoint: new adapter: %w", err)}
		return
	}

	if v.Streaming {
		a.serveStreaming(ctx, reply, adapter, v)
		return
	}

	result, err := dialogue.Run(ctx, adapter, a.dispatcher, v.Context, v.SessionType, v.Config)
	if err != nil {
		reply <- Response{Err: err}
		return
	}
	if !result.MultiTurn {
		last, _ := result.Context.LastPart()
		reply <- Response{Block: &last}
		return
	}
	reply <- Response{MultiTurnBlock: &result.Context}
}

// serveStreaming hands the caller its Stream channel immediately, then
// drives RunStreaming on this same goroutine, closing the channel when
// it finishes (an Err event is pushed first if the dialogue failed).
func (a *Actor) serveStreaming(ctx context.Context, reply chan Response, adapter backend.Adapter, v RespondToFullPrompt) {
	sink := make(chan dialogue.StreamEvent, 64)
	reply <- Response{Stream: sink}

	if _, err := dialogue.RunStreaming(ctx, adapter, a.dispatcher, v.Context, v.SessionType, v.Config, sink); err != nil {
		sink <- dialogue.StreamEvent{Err: err}
	}
	close(sink)
}

// RespondToFullPrompt implements subagent.Requester: it is the
// self_sender a handler (via the Agent tool) carries to recurse back
// into this same Actor for a nested, non-streaming dialogue.
func (a *Actor) RespondToFullPrompt(ctx context.Context, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration, streaming bool) (models.Context, error) {
	reply := make(chan Response, 1)
	a.mb.SendNormal(Request{
		Variant: RespondToFullPrompt{Context: prompt, Streaming: streaming, SessionType: sessionType, Config: config},
		Reply:   reply,
	})

	select {
	case resp := <-reply:
		if resp.Err != nil {
			return models.Context{}, resp.Err
		}
		if resp.MultiTurnBlock != nil {
			return *resp.MultiTurnBlock, nil
		}
		if resp.Block != nil {
			out := prompt.Clone()
			out.AddPart(*resp.Block)
			return out, nil
		}
		return models.Context{}, fmt.Errorf("endpoint: nested request produced no result")
	case <-ctx.Done():
		return models.Context{}, ctx.Err()
	}
}
