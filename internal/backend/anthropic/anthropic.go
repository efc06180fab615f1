// Package anthropic implements backend.Adapter against Anthropic's Claude
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/pkg/models"
)

// Config holds the parameters needed to construct a Backend.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Backend implements backend.Adapter, one instance per Request Handler
// (spec.md §4.3: "the handler owns a fresh backend client, single-use").
type Backend struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int

	mu       sync.Mutex
	sessions map[backend.SessionID]*session
}

type session struct {
	ctx  models.Context
	done chan struct{}
	part models.ContextPart
	err  error
}

// New constructs a Backend from cfg, applying defaults for an unset model
// or token limit.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Backend{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		sessions:     map[backend.SessionID]*session{},
	}, nil
}

func (b *Backend) newSessionID() backend.SessionID {
	return backend.SessionID(fmt.Sprintf("anthropic-%s", uuid.NewString()))
}

// SendNewPrompt submits ctx to the Messages API in the background and
// returns immediately with a SessionID; GetResponse blocks on completion.
func (b *Backend) SendNewPrompt(ctx context.Context, prompt models.Context, _ models.SessionType, config *models.ChatConfiguration) (backend.SessionID, error) {
	id := b.newSessionID()
	s := &session{ctx: prompt, done: make(chan struct{})}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		part, err := b.complete(ctx, prompt, config)
		s.part, s.err = part, err
	}()
	return id, nil
}

// SendNewPromptStreaming submits ctx using the streaming Messages API and
// forwards text deltas as StreamEvents.
func (b *Backend) SendNewPromptStreaming(ctx context.Context, prompt models.Context, _ models.SessionType, config *models.ChatConfiguration) (backend.SessionID, <-chan backend.StreamEvent, error) {
	id := b.newSessionID()
	s := &session{ctx: prompt, done: make(chan struct{})}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	events := make(chan backend.StreamEvent, 16)
	params, err := b.buildParams(prompt, config)
	if err != nil {
		close(events)
		return "", nil, err
	}

	go func() {
		defer close(s.done)
		defer close(events)
		stream := b.client.Messages.NewStreaming(ctx, params)
		var full strings.Builder
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					full.WriteString(text)
					events <- backend.StreamEvent{Data: models.TextData(text), Position: models.PositionAI}
				}
			}
		}
		if err := stream.Err(); err != nil {
			s.err = fmt.Errorf("anthropic: stream: %w", err)
			events <- backend.StreamEvent{Err: s.err}
			return
		}
		s.part = models.NewPart(models.PositionAI, models.TextData(full.String()))
	}()
	return id, events, nil
}

// AddToSession is valid only once the session has produced a response
// (Standby); it seeds the next turn's context with the extra part.
func (b *Backend) AddToSession(_ context.Context, id backend.SessionID, part models.ContextPart) error {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return backend.ErrSessionMissing
	}
	select {
	case <-s.done:
	default:
		return backend.ErrSessionBusy
	}
	s.ctx.AddPart(part)
	return nil
}

// GetResponse blocks until the session's goroutine completes.
func (b *Backend) GetResponse(ctx context.Context, id backend.SessionID) (models.ContextPart, error) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return models.ContextPart{}, backend.ErrSessionMissing
	}
	select {
	case <-s.done:
		return s.part, s.err
	case <-ctx.Done():
		return models.ContextPart{}, ctx.Err()
	}
}

// TryGetResponse never blocks: ok is false until the session's goroutine
// has completed.
func (b *Backend) TryGetResponse(id backend.SessionID) (models.ContextPart, bool) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return models.ContextPart{}, false
	}
	select {
	case <-s.done:
		return s.part, true
	default:
		return models.ContextPart{}, false
	}
}

// GetWholeContext returns the session's accumulated context.
func (b *Backend) GetWholeContext(id backend.SessionID) (models.Context, error) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return models.Context{}, backend.ErrSessionMissing
	}
	return s.ctx, nil
}

func (b *Backend) complete(ctx context.Context, prompt models.Context, config *models.ChatConfiguration) (models.ContextPart, error) {
	params, err := b.buildParams(prompt, config)
	if err != nil {
		return models.ContextPart{}, err
	}
	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return models.ContextPart{}, fmt.Errorf("anthropic: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return models.NewPart(models.PositionAI, models.TextData(text.String())), nil
}

// buildParams converts a Context + ChatConfiguration into the SDK's
// request params. Anthropic's Messages API only recognizes "user" and
// "assistant" roles (no literal "tool" role), so Tool and Total positions
// are folded into user turns alongside User itself; System becomes the
// top-level system prompt, matching the account for both this adapter's
// and openai's mapping (documented in DESIGN.md).
func (b *Backend) buildParams(prompt models.Context, config *models.ChatConfiguration) (anthropic.MessageNewParams, error) {
	model := b.defaultModel
	maxTokens := b.maxTokens
	var system strings.Builder

	if config != nil {
		sp := config.FullSystemPrompt()
		system.WriteString(sp.ConcatenatedText())
		for _, s := range config.Settings {
			if lim, ok := s.(models.ResponseTokenLimitSetting); ok {
				maxTokens = lim.N
			}
		}
	}

	var messages []anthropic.MessageParam
	for _, part := range prompt.Parts {
		text := part.ConcatenatedText()
		if text == "" {
			continue
		}
		switch part.Position {
		case models.PositionSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(text)
		case models.PositionAI:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}
	return params, nil
}
