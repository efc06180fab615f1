// Package dialogue implements the tool-augmented multi-turn dialogue state
// machine: it issues a prompt, inspects the reply for a final response or
// a tool call, dispatches the call, and re-issues, bounded by MaxTurns.
package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/pkg/models"
)

// MaxTurns bounds the number of tool-calling round trips a single
// RespondToFullPrompt performs before the loop gives up and returns
// whatever the backend last produced.
const MaxTurns = 8

// Dispatcher executes the `<call>` blocks inside a response and returns
// the resulting Tool-position outputs part plus the tools' updated
// persistent state, in the same order as the input.
type Dispatcher interface {
	Dispatch(ctx context.Context, response models.ContextPart, tools []models.ToolSetting) (outputs models.ContextPart, updated []models.ToolSetting, err error)
}

// Result is what a completed dialogue produces: either a single Block (no
// tools configured) or a MultiTurnBlock (the whole accumulated context).
type Result struct {
	// MultiTurn is true when the loop ran with a non-empty tool set,
	// false when it issued exactly one turn because no tools were
	// configured (Block in spec.md's terms).
	MultiTurn bool
	Context   models.Context
	// Turns counts the number of re-issue iterations actually performed.
	Turns int
}

// Run drives the dialogue state machine described in spec.md §4.3: issue a
// prompt, and if the configuration names any tools, keep dispatching and
// re-issuing until a turn's response is a valid or nonstandard final
// answer, or MaxTurns is reached.
func Run(ctx context.Context, adapter backend.Adapter, dispatcher Dispatcher, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration) (Result, error) {
	working := prompt.Clone()

	response, err := issue(ctx, adapter, working, sessionType, config)
	if err != nil {
		return Result{}, err
	}

	tools := toolSettings(config)
	if len(tools) == 0 {
		working.AddPart(response)
		return Result{MultiTurn: false, Context: working}, nil
	}

	turn := 0
	for turn < MaxTurns && !isValidFinal(response) && !looksLikeNonstandardFinal(response) {
		outputs, updated, err := dispatcher.Dispatch(ctx, response, tools)
		if err != nil {
			return Result{}, fmt.Errorf("dialogue: dispatch: %w", err)
		}
		tools = updated

		working.AddPart(response)
		working.AddPart(outputs)
		working.AddPart(dataSnapshot(tools))
		if config != nil {
			config.ApplyPerTurnSettings(&working)
		}

		response, err = issue(ctx, adapter, working, sessionType, config)
		if err != nil {
			return Result{}, err
		}
		turn++
	}

	if looksLikeNonstandardFinal(response) {
		response = wrapAsFinal(response)
	}
	working.AddPart(response)
	return Result{MultiTurn: true, Context: working, Turns: turn}, nil
}

// issue sends the accumulated context as a fresh prompt and blocks for its
// single response part, mirroring the original's per-turn send_new_prompt
// + get_response_to_latest_prompt_for pairing: every turn resubmits the
// whole context rather than continuing one long-lived session.
func issue(ctx context.Context, adapter backend.Adapter, working models.Context, sessionType models.SessionType, config *models.ChatConfiguration) (models.ContextPart, error) {
	id, err := adapter.SendNewPrompt(ctx, working, sessionType, config)
	if err != nil {
		return models.ContextPart{}, fmt.Errorf("dialogue: send new prompt: %w", err)
	}
	return adapter.GetResponse(ctx, id)
}

func toolSettings(config *models.ChatConfiguration) []models.ToolSetting {
	if config == nil {
		return nil
	}
	return config.Tools()
}

// isValidFinal implements the spec's is_valid_tool_calling_response
// negation: a response is a valid final answer when it is fully wrapped
// and carries no further call.
func isValidFinal(response models.ContextPart) bool {
	text := response.ConcatenatedText()
	return strings.Contains(text, "<response>") && strings.Contains(text, "</response>") && !strings.Contains(text, "<call>")
}

// looksLikeNonstandardFinal matches a reply that is missing proper
// <response> wrapping but also contains no <call>: a malformed-but-final
// answer, auto-wrapped rather than treated as another turn.
func looksLikeNonstandardFinal(response models.ContextPart) bool {
	text := response.ConcatenatedText()
	missingWrap := !strings.Contains(text, "<response>") || !strings.Contains(text, "</response>")
	return missingWrap && !strings.Contains(text, "<call>")
}

func wrapAsFinal(response models.ContextPart) models.ContextPart {
	text := response.ConcatenatedText()
	return models.NewPart(response.Position, models.TextData("<response>\n"+text+"</response>\n"))
}

// dataSnapshot builds the Tool-position part carrying every stateful
// tool's current persistent data, skipping tool kinds with nothing to
// show (SnapshotData's second return is false). This part is appended
// every turn regardless of whether any tool actually contributed data,
// mirroring the original's unconditional ctx.append(tools.data_snapshot()).
func dataSnapshot(tools []models.ToolSetting) models.ContextPart {
	part := models.ContextPart{Position: models.PositionTool}
	for _, t := range tools {
		if t.Data == nil {
			continue
		}
		if data, ok := t.Data.SnapshotData(); ok {
			part.AddData(data)
		}
	}
	return part
}
