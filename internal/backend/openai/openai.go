// Package openai implements backend.Adapter against OpenAI's chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

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

// Backend implements backend.Adapter, one instance per Request Handler.
type Backend struct {
	client       *openai.Client
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

// New constructs a Backend from cfg.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Backend{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		sessions:     map[backend.SessionID]*session{},
	}, nil
}

func (b *Backend) newSessionID() backend.SessionID {
	return backend.SessionID(fmt.Sprintf("openai-%s", uuid.NewString()))
}

// SendNewPrompt submits ctx to the chat completions API in the background.
func (b *Backend) SendNewPrompt(ctx context.Context, prompt models.Context, _ models.SessionType, config *models.ChatConfiguration) (backend.SessionID, error) {
	id := b.newSessionID()
	s := &session{ctx: prompt, done: make(chan struct{})}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		req := b.buildRequest(prompt, config)
		resp, err := b.client.CreateChatCompletion(ctx, req)
		if err != nil {
			s.err = fmt.Errorf("openai: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			s.err = fmt.Errorf("openai: empty choice list")
			return
		}
		s.part = models.NewPart(models.PositionAI, models.TextData(resp.Choices[0].Message.Content))
	}()
	return id, nil
}

// SendNewPromptStreaming submits ctx using the streaming chat completions
// API and forwards text deltas as StreamEvents.
func (b *Backend) SendNewPromptStreaming(ctx context.Context, prompt models.Context, _ models.SessionType, config *models.ChatConfiguration) (backend.SessionID, <-chan backend.StreamEvent, error) {
	id := b.newSessionID()
	s := &session{ctx: prompt, done: make(chan struct{})}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()

	req := b.buildRequest(prompt, config)
	req.Stream = true
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		close(s.done)
		return "", nil, fmt.Errorf("openai: %w", err)
	}

	events := make(chan backend.StreamEvent, 16)
	go func() {
		defer close(s.done)
		defer close(events)
		defer stream.Close()
		var full strings.Builder
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				s.err = fmt.Errorf("openai: stream: %w", err)
				events <- backend.StreamEvent{Err: s.err}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			events <- backend.StreamEvent{Data: models.TextData(delta), Position: models.PositionAI}
		}
		s.part = models.NewPart(models.PositionAI, models.TextData(full.String()))
	}()
	return id, events, nil
}

// AddToSession is valid only once the session has produced a response.
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

// TryGetResponse never blocks.
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

// buildRequest converts a Context + ChatConfiguration into a
// ChatCompletionRequest. OpenAI's chat roles are system/user/assistant
// (and tool, tied to a tool_call_id this dialogue never produces since
// tool calls are mini-XML embedded in ordinary text, not native function
// calls), so Tool and Total positions fold into user turns, matching
// the anthropic adapter's mapping.
func (b *Backend) buildRequest(prompt models.Context, config *models.ChatConfiguration) openai.ChatCompletionRequest {
	model := b.defaultModel
	maxTokens := b.maxTokens
	var messages []openai.ChatCompletionMessage

	if config != nil {
		if sp := config.FullSystemPrompt().ConcatenatedText(); sp != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sp})
		}
		for _, s := range config.Settings {
			if lim, ok := s.(models.ResponseTokenLimitSetting); ok {
				maxTokens = lim.N
			}
		}
	}

	for _, part := range prompt.Parts {
		text := part.ConcatenatedText()
		if text == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch part.Position {
		case models.PositionSystem:
			role = openai.ChatMessageRoleSystem
		case models.PositionAI:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: text})
	}

	return openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
}
