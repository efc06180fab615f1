package subagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedrow21/proxima/internal/tooling/localmemory"
	"github.com/pedrow21/proxima/pkg/models"
)

// displayName mirrors the dispatcher's own tool-name table (unexported
// there to avoid this package importing it and creating a cycle, since
// the dispatcher wires subagent.Tool in as its Agent implementation).
var displayName = map[string]models.ToolKind{
	"Local Memory": models.ToolLocalMemory,
	"Calculator":   models.ToolCalculator,
	"Web":          models.ToolWeb,
	"Python":       models.ToolPython,
	"Agent":        models.ToolAgent,
}

// Store is the subset of the Database Actor's operations the Agent tool
// needs to persist the Chat each sub-agent owns.
type Store interface {
	AddChat(chat models.Chat) (models.ChatID, error)
	UpdateChat(chat models.Chat) error
	GetChat(id models.ChatID) (models.Chat, error)
}

// Requester is the nested-request callback into the AI Endpoint Actor
// that a handler carries as its self_sender, letting the Agent tool
// recurse into a fresh dialogue without this package depending on
// internal/endpoint.
type Requester interface {
	RespondToFullPrompt(ctx context.Context, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration, streaming bool) (models.Context, error)
}

// Tool implements tooling.Impl for Agent.
type Tool struct {
	Store     Store
	Requester Requester
	Now       func() int64
	// OriginDevice is the device id recorded on every sub-agent Chat this
	// tool creates.
	OriginDevice int
}

func (t *Tool) Kind() models.ToolKind { return models.ToolAgent }
func (t *Tool) Actions() []string     { return []string{"run", "respond"} }

func (t *Tool) Invoke(ctx context.Context, action, input string, state models.ToolState) (string, models.ToolState, error) {
	registry, ok := state.(Registry)
	if !ok {
		registry = Empty(nil)
	}
	clone := registry.Clone().(Registry)

	switch action {
	case "run":
		return t.run(ctx, input, clone)
	case "respond":
		return t.respond(ctx, input, clone)
	default:
		return "", nil, fmt.Errorf("unsupported action %q", action)
	}
}

func (t *Tool) run(ctx context.Context, input string, registry Registry) (string, models.ToolState, error) {
	lines := splitLines(input)
	if len(lines) < 4 {
		return "", nil, fmt.Errorf("run input needs: name, model, comma-separated tools, then a prompt")
	}
	name, model := lines[0], lines[1]
	toolNames := splitCSV(lines[2])
	prompt := strings.Join(lines[3:], "\n")

	if _, exists := registry.Agents[name]; exists {
		return "", nil, fmt.Errorf("agent %q already exists", name)
	}

	kinds, err := t.resolveAllowedTools(toolNames, registry.AllocatableTools)
	if err != nil {
		return "", nil, err
	}

	config := buildConfig(model, kinds)
	chat := models.NewChat(t.OriginDevice, nil, t.now())
	chat.AddToContext(models.NewPart(models.PositionUser, models.TextData(prompt)))

	result, err := t.Requester.RespondToFullPrompt(ctx, chat.Context, models.SessionChat, &config, false)
	if err != nil {
		return "", nil, fmt.Errorf("agent run %q: %w", name, err)
	}
	chat.Context = result

	chatID, err := t.Store.AddChat(chat)
	if err != nil {
		return "", nil, fmt.Errorf("agent run %q: persist chat: %w", name, err)
	}

	registry.Agents[name] = AgentRecord{
		Name:         name,
		Model:        model,
		AllowedTools: toolNames,
		Status:       "idle",
		ChatID:       chatID,
	}
	registry.Counter++

	text := extractResponseText(result)
	return fmt.Sprintf("%s\n%s", name, text), registry, nil
}

func (t *Tool) respond(ctx context.Context, input string, registry Registry) (string, models.ToolState, error) {
	lines := splitLines(input)
	if len(lines) < 2 {
		return "", nil, fmt.Errorf("respond input needs: agent name, then a user turn")
	}
	name := lines[0]
	userTurn := strings.Join(lines[1:], "\n")

	record, ok := registry.Agents[name]
	if !ok {
		return "", nil, fmt.Errorf("unknown agent %q", name)
	}

	chat, err := t.Store.GetChat(record.ChatID)
	if err != nil {
		return "", nil, fmt.Errorf("agent respond %q: fetch chat: %w", name, err)
	}

	chat.AddToContext(models.NewPart(models.PositionUser, models.TextData("<user_prompt>"+userTurn+"</user_prompt>")))

	kinds, err := t.resolveAllowedTools(record.AllowedTools, registry.AllocatableTools)
	if err != nil {
		return "", nil, err
	}
	config := buildConfig(record.Model, kinds)

	result, err := t.Requester.RespondToFullPrompt(ctx, chat.Context, models.SessionChat, &config, false)
	if err != nil {
		return "", nil, fmt.Errorf("agent respond %q: %w", name, err)
	}
	chat.Context = result
	chat.LastMessage = t.now()
	if last, ok := result.LastPart(); ok {
		chat.WaitingOnResponse = last.Position != models.PositionUser && last.Position != models.PositionSystem
	}

	if err := t.Store.UpdateChat(chat); err != nil {
		return "", nil, fmt.Errorf("agent respond %q: update chat: %w", name, err)
	}

	text := extractResponseText(result)
	return fmt.Sprintf("%s\n%s", name, text), registry, nil
}

func (t *Tool) now() int64 {
	if t.Now != nil {
		return t.Now()
	}
	return 0
}

// resolveAllowedTools validates every requested tool name is both a
// known display name and a member of allocatable, returning their kinds
// in the same order.
func (t *Tool) resolveAllowedTools(names, allocatable []string) ([]models.ToolKind, error) {
	out := make([]models.ToolKind, 0, len(names))
	for _, n := range names {
		kind, known := displayName[n]
		if !known {
			return nil, fmt.Errorf("unknown tool name %q", n)
		}
		if !contains(allocatable, n) {
			return nil, fmt.Errorf("tool %q is not allocatable to sub-agents", n)
		}
		out = append(out, kind)
	}
	return out, nil
}

// buildConfig composes an anonymous ChatConfiguration carrying exactly
// the named tool set, seeding each kind's starting persistent data the
// same way the top-level chat configuration would.
func buildConfig(model string, kinds []models.ToolKind) models.ChatConfiguration {
	settings := make([]models.ChatSetting, 0, len(kinds)+1)
	for _, k := range kinds {
		settings = append(settings, models.ToolSetting{Kind: k, Data: emptyDataFor(k)})
	}
	return models.ChatConfiguration{Name: "agent:" + model, Settings: settings}
}

func emptyDataFor(kind models.ToolKind) models.ToolState {
	switch kind {
	case models.ToolLocalMemory:
		return localmemory.Empty()
	case models.ToolAgent:
		return Empty(nil)
	default:
		return nil
	}
}

func contains(set []string, item string) bool {
	for _, s := range set {
		if s == item {
			return true
		}
	}
	return false
}

// extractResponseText returns the text between the last part's
// <response> and </response> tags, falling back to the raw text if the
// part isn't wrapped (the dialogue loop should never hand back
// anything else, but this keeps the tool robust to a malformed nested
// result).
func extractResponseText(ctx models.Context) string {
	last, ok := ctx.LastPart()
	if !ok {
		return ""
	}
	text := last.ConcatenatedText()
	open := strings.Index(text, "<response>")
	shut := strings.Index(text, "</response>")
	if open < 0 || shut < 0 || shut < open {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[open+len("<response>") : shut])
}

func splitLines(input string) []string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
