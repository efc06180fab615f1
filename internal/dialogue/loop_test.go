package dialogue

import (
	"context"
	"strings"
	"testing"

	"github.com/pedrow21/proxima/internal/backend/scripted"
	"github.com/pedrow21/proxima/pkg/models"
)

// fakeDispatcher scripts Dispatch's return values by call index, the same
// shape as the scripted backend's per-call response table.
type fakeDispatcher struct {
	outputs []models.ContextPart
	call    int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ models.ContextPart, tools []models.ToolSetting) (models.ContextPart, []models.ToolSetting, error) {
	out := models.ContextPart{Position: models.PositionTool}
	if f.call < len(f.outputs) {
		out = f.outputs[f.call]
	}
	f.call++
	return out, tools, nil
}

func calculatorConfig() *models.ChatConfiguration {
	return &models.ChatConfiguration{
		Settings: []models.ChatSetting{models.ToolSetting{Kind: models.ToolCalculator}},
	}
}

// TestNoToolsIsSingleTurn covers the no-tools-configured Block path: the
// loop issues exactly one turn and never consults the dispatcher.
func TestNoToolsIsSingleTurn(t *testing.T) {
	be := scripted.New(scripted.Turn{Text: "<response>hi</response>"})
	prompt := models.NewContext(models.NewPart(models.PositionUser, models.TextData("hello")))

	result, err := Run(context.Background(), be, &fakeDispatcher{}, prompt, models.SessionChat, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.MultiTurn {
		t.Fatal("expected a single-turn Block result when no tools are configured")
	}
	if be.Calls() != 1 {
		t.Fatalf("want exactly 1 backend call, got %d", be.Calls())
	}
	if result.Context.Len() != 2 {
		t.Fatalf("want prompt + response, got %d parts", result.Context.Len())
	}
}

// TestSingleToolCall is Scenario S2.
func TestSingleToolCall(t *testing.T) {
	be := scripted.New(
		scripted.Turn{Text: "<call><tool>Calculator</tool><action>compute</action><in_data>2+3</in_data></call>"},
		scripted.Turn{Text: "<response>5</response>"},
	)
	disp := &fakeDispatcher{outputs: []models.ContextPart{
		models.NewPart(models.PositionTool, models.TextData("<outputs><output><tool>Calculator</tool><action>compute</action><output_data>2+3 = 5.0000</output_data></output></outputs>")),
	}}
	prompt := models.NewContext(
		models.NewPart(models.PositionSystem, models.TextData("sys")),
		models.NewPart(models.PositionUser, models.TextData("what's 2+3?")),
	)

	result, err := Run(context.Background(), be, disp, prompt, models.SessionChat, calculatorConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.MultiTurn {
		t.Fatal("expected a MultiTurnBlock result")
	}
	parts := result.Context.Parts
	// system, user, turn-1 AI call, tool outputs, tool data snapshot, final response
	if len(parts) != 6 {
		t.Fatalf("want 6 parts, got %d: %+v", len(parts), parts)
	}
	if parts[0].Position != models.PositionSystem || parts[1].Position != models.PositionUser {
		t.Fatalf("expected original system+user first, got %+v %+v", parts[0], parts[1])
	}
	if !strings.Contains(parts[2].ConcatenatedText(), "<call>") {
		t.Fatalf("expected turn-1 AI call as part 3, got %+v", parts[2])
	}
	if !strings.Contains(parts[3].ConcatenatedText(), "2+3 = 5.0000") || parts[3].Position != models.PositionTool {
		t.Fatalf("expected tool outputs as part 4, got %+v", parts[3])
	}
	if parts[4].Position != models.PositionTool {
		t.Fatalf("expected tool data snapshot as part 5, got %+v", parts[4])
	}
	final := parts[5]
	if final.ConcatenatedText() != "<response>5</response>" {
		t.Fatalf("want final response text <response>5</response>, got %q", final.ConcatenatedText())
	}
}

// TestNonstandardFinalIsWrapped is Scenario S3.
func TestNonstandardFinalIsWrapped(t *testing.T) {
	be := scripted.New(scripted.Turn{Text: "just 5"})
	prompt := models.NewContext(models.NewPart(models.PositionUser, models.TextData("what's 2+3?")))

	result, err := Run(context.Background(), be, &fakeDispatcher{}, prompt, models.SessionChat, calculatorConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last, ok := result.Context.LastPart()
	if !ok {
		t.Fatal("expected a final part")
	}
	want := "<response>\njust 5</response>\n"
	if last.ConcatenatedText() != want {
		t.Fatalf("want %q, got %q", want, last.ConcatenatedText())
	}
}

// TestLoopTerminatesWithinMaxTurns is Testable Property 6: a backend that
// never stops calling tools still halts by MaxTurns, and the last part
// contains no <call>.
func TestLoopTerminatesWithinMaxTurns(t *testing.T) {
	turns := make([]scripted.Turn, 0, MaxTurns+2)
	for i := 0; i < MaxTurns+2; i++ {
		turns = append(turns, scripted.Turn{Text: "<call><tool>Calculator</tool><action>compute</action><in_data>1+1</in_data></call>"})
	}
	be := scripted.New(turns...)
	disp := &fakeDispatcher{}
	prompt := models.NewContext(models.NewPart(models.PositionUser, models.TextData("loop forever")))

	result, err := Run(context.Background(), be, disp, prompt, models.SessionChat, calculatorConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Turns != MaxTurns {
		t.Fatalf("want exactly %d turns, got %d", MaxTurns, result.Turns)
	}
	last, _ := result.Context.LastPart()
	if strings.Contains(last.ConcatenatedText(), "<call>") {
		t.Fatalf("final part must not contain <call>, got %q", last.ConcatenatedText())
	}
}

// TestResponseWrappingInvariant is Testable Property 7: the final part of
// every MultiTurnBlock contains <response> and </response>, whether the
// backend produced it directly or the loop had to wrap it.
func TestResponseWrappingInvariant(t *testing.T) {
	cases := []struct {
		name  string
		turns []scripted.Turn
	}{
		{"well-formed", []scripted.Turn{{Text: "<response>done</response>"}}},
		{"nonstandard", []scripted.Turn{{Text: "done, no tags"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			be := scripted.New(c.turns...)
			result, err := Run(context.Background(), be, &fakeDispatcher{}, models.NewContext(), models.SessionChat, calculatorConfig())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			last, ok := result.Context.LastPart()
			if !ok {
				t.Fatal("expected a final part")
			}
			text := last.ConcatenatedText()
			if !strings.Contains(text, "<response>") || !strings.Contains(text, "</response>") {
				t.Fatalf("final part must be wrapped, got %q", text)
			}
		})
	}
}
