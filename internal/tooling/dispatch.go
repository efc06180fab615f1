// Package tooling implements the Tool Dispatcher: it parses a model
// reply's text for `<call>` blocks, invokes the named tool, and produces
// an `<outputs>`-wrapped Tool ContextPart plus each tool's updated
// persistent state.
package tooling

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/pedrow21/proxima/pkg/models"
)

// Impl is one tool kind's invocation logic. Each concrete tool
// (localmemory, calculator, web, python, subagent) implements this.
type Impl interface {
	Kind() models.ToolKind
	// Actions lists the action names this kind permits.
	Actions() []string
	// Invoke runs action over input with the kind's current persistent
	// data (nil if the kind carries none), returning the raw output text
	// to embed in <output_data> and the kind's new persistent data.
	Invoke(ctx context.Context, action, input string, data models.ToolState) (output string, newData models.ToolState, err error)
}

// toolName is the human-readable name used inside <tool> elements,
// matching ProximaTool::get_name/try_from_string in the original.
var toolName = map[models.ToolKind]string{
	models.ToolLocalMemory: "Local Memory",
	models.ToolCalculator:  "Calculator",
	models.ToolWeb:         "Web",
	models.ToolPython:      "Python",
	models.ToolAgent:       "Agent",
}

var nameToKind = func() map[string]models.ToolKind {
	out := map[string]models.ToolKind{}
	for k, v := range toolName {
		out[v] = k
	}
	return out
}()

// Dispatcher implements dialogue.Dispatcher by routing each <call> to the
// Impl registered for its resolved ToolKind.
type Dispatcher struct {
	impls map[models.ToolKind]Impl
}

// NewDispatcher builds a Dispatcher from a set of tool implementations,
// keyed by their own Kind().
func NewDispatcher(impls ...Impl) *Dispatcher {
	d := &Dispatcher{impls: map[models.ToolKind]Impl{}}
	for _, impl := range impls {
		d.impls[impl.Kind()] = impl
	}
	return d
}

// call is one parsed <call><tool/><action/><in_data/></call> block.
type call struct {
	tool   string
	action string
	inData string
}

// Dispatch parses response for <call> blocks, invokes each against tools,
// and returns the combined <outputs>-wrapped Tool part plus every tool's
// updated state, in the same order as the input slice.
func (d *Dispatcher) Dispatch(ctx context.Context, response models.ContextPart, tools []models.ToolSetting) (models.ContextPart, []models.ToolSetting, error) {
	calls, err := parseCalls(response.ConcatenatedText())
	if err != nil {
		return models.ContextPart{}, tools, fmt.Errorf("tooling: parse calls: %w", err)
	}

	byKind := make(map[models.ToolKind]int, len(tools))
	for i, t := range tools {
		byKind[t.Kind] = i
	}

	var outputs strings.Builder
	outputs.WriteString("<outputs>")
	for _, c := range calls {
		outputs.WriteString(d.runOne(ctx, c, tools, byKind))
	}
	outputs.WriteString("</outputs>")

	return models.NewPart(models.PositionTool, models.TextData(outputs.String())), tools, nil
}

func (d *Dispatcher) runOne(ctx context.Context, c call, tools []models.ToolSetting, byKind map[models.ToolKind]int) string {
	kind, ok := nameToKind[strings.TrimSpace(c.tool)]
	if !ok {
		return errorElement(c.tool, c.action, "unknown tool name")
	}
	impl, ok := d.impls[kind]
	if !ok {
		return errorElement(c.tool, c.action, "tool not configured for this chat")
	}
	if !contains(impl.Actions(), strings.TrimSpace(c.action)) {
		return errorElement(c.tool, c.action, "action not permitted for this tool")
	}

	idx, hasData := byKind[kind]
	var data models.ToolState
	if hasData {
		data = tools[idx].Data
	}

	out, newData, err := impl.Invoke(ctx, strings.TrimSpace(c.action), c.inData, data)
	if err != nil {
		return errorElement(c.tool, c.action, err.Error())
	}
	if hasData {
		tools[idx].Data = newData
	}
	return fmt.Sprintf("<output><tool>%s</tool><action>%s</action><output_data>%s</output_data></output>", c.tool, c.action, out)
}

func errorElement(tool, action, reason string) string {
	return fmt.Sprintf("<error><tool>%s</tool><action>%s</action><error_data>%s</error_data></error>", tool, action, reason)
}

func contains(set []string, item string) bool {
	for _, s := range set {
		if s == item {
			return true
		}
	}
	return false
}

// parseCalls walks the HTML parse tree of text collecting every top-level
// <call> element with exactly three element children named tool/action/
// in_data, in that order. html.Parse is lenient with unrecognized tags,
// which is what lets it stand in for a proper XML parser here: <call>
// blocks are well-formed-enough tag soup, not valid XML or HTML5.
func parseCalls(text string) ([]call, error) {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	var calls []call
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "call" {
			if c, ok := parseCallElement(n); ok {
				calls = append(calls, c)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return calls, nil
}

func parseCallElement(n *html.Node) (call, bool) {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			children = append(children, c)
		}
	}
	if len(children) != 3 {
		return call{}, false
	}
	names := []string{"tool", "action", "in_data"}
	values := make([]string, 3)
	for i, want := range names {
		if children[i].Data != want {
			return call{}, false
		}
		values[i] = elementText(children[i])
	}
	return call{tool: values[0], action: values[1], inData: values[2]}, true
}

func elementText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
