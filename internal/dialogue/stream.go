package dialogue

import (
	"context"
	"fmt"

	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/pkg/models"
)

// StreamEvent is one token forwarded to a streaming RespondToFullPrompt
// caller: either the first element of a new ContextPart (Start) or a
// continuation of the current one, per spec.md §4.3's
// StartStream/ContinueStream pairing.
type StreamEvent struct {
	Position models.ContextPosition
	Data     models.ContextData
	Start    bool
	Err      error
}

// RunStreaming mirrors Run, but every turn's tokens are forwarded to sink
// as they arrive, and between turns the tool-output and
// tool-state parts are emitted as synthetic Start/Continue events so a
// caller observes one merged stream regardless of how many tool round
// trips happen underneath. sink is never closed by this function; the
// caller closes it once RunStreaming returns.
func RunStreaming(ctx context.Context, adapter backend.Adapter, dispatcher Dispatcher, prompt models.Context, sessionType models.SessionType, config *models.ChatConfiguration, sink chan<- StreamEvent) (Result, error) {
	working := prompt.Clone()

	response, err := issueStreaming(ctx, adapter, working, sessionType, config, sink)
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
		snapshot := dataSnapshot(tools)
		working.AddPart(snapshot)
		if config != nil {
			config.ApplyPerTurnSettings(&working)
		}

		emitSynthetic(sink, outputs)
		emitSynthetic(sink, snapshot)

		response, err = issueStreaming(ctx, adapter, working, sessionType, config, sink)
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

// issueStreaming drives one streaming prompt/response round trip,
// forwarding every token to sink and materializing the accumulated
// ContextPart for the dialogue predicates.
func issueStreaming(ctx context.Context, adapter backend.Adapter, working models.Context, sessionType models.SessionType, config *models.ChatConfiguration, sink chan<- StreamEvent) (models.ContextPart, error) {
	_, events, err := adapter.SendNewPromptStreaming(ctx, working, sessionType, config)
	if err != nil {
		return models.ContextPart{}, fmt.Errorf("dialogue: send new prompt streaming: %w", err)
	}

	part := models.ContextPart{Position: models.PositionAI}
	first := true
	for ev := range events {
		if ev.Err != nil {
			return models.ContextPart{}, fmt.Errorf("dialogue: stream: %w", ev.Err)
		}
		part.AddData(ev.Data)
		sink <- StreamEvent{Position: ev.Position, Data: ev.Data, Start: first}
		first = false
	}
	return part, nil
}

// emitSynthetic forwards an already-materialized part (a tool-output or
// tool-state snapshot part produced between turns) to sink as one Start
// event followed by a Continue per remaining data element.
func emitSynthetic(sink chan<- StreamEvent, part models.ContextPart) {
	for i, d := range part.Data {
		sink <- StreamEvent{Position: part.Position, Data: d, Start: i == 0}
	}
}
