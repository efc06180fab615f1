// Package localmemory implements the LocalMemory tool: a simple
// key/value store threaded through the dialogue loop as persistent tool
// state, grounded on ProximaToolData::LocalMemory in the original
// implementation (original_source/src/ai_interaction/tools.rs).
package localmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pedrow21/proxima/pkg/models"
)

// Data is the LocalMemory tool's persistent state.
type Data struct {
	Values map[string]string
}

// Empty returns a fresh, empty Data, matching get_empty_data's
// Some(HashMap::new()) for LocalMemory.
func Empty() Data {
	return Data{Values: map[string]string{}}
}

func (Data) ToolKind() models.ToolKind { return models.ToolLocalMemory }

// Clone deep-copies the key/value map.
func (d Data) Clone() models.ToolState {
	out := Data{Values: make(map[string]string, len(d.Values))}
	for k, v := range d.Values {
		out.Values[k] = v
	}
	return out
}

// SnapshotData renders the map for the data-snapshot ContextPart.
func (d Data) SnapshotData() (models.ContextData, bool) {
	keys := make([]string, 0, len(d.Values))
	for k := range d.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("<LocalMemory> local memory data : map[")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s:%s", k, d.Values[k])
	}
	sb.WriteString("]<LocalMemory>")
	return models.TextData(sb.String()), true
}

// Tool implements tooling.Impl for LocalMemory.
type Tool struct{}

func (Tool) Kind() models.ToolKind { return models.ToolLocalMemory }
func (Tool) Actions() []string     { return []string{"add", "update", "remove"} }

func (Tool) Invoke(_ context.Context, action, input string, state models.ToolState) (string, models.ToolState, error) {
	data, ok := state.(Data)
	if !ok {
		data = Empty()
	}
	clone := data.Clone().(Data)

	lines := splitLines(input)
	switch action {
	case "add", "update":
		if len(lines) < 2 {
			return "", nil, fmt.Errorf("the first input line contains the key, all the rest contain the value assigned to that key")
		}
		key := lines[0]
		value := strings.Join(lines[1:], "\n")
		clone.Values[key] = value
		return "", clone, nil
	case "remove":
		if len(lines) != 1 {
			return "", nil, fmt.Errorf("the first input line contains the key, there are no other lines")
		}
		delete(clone.Values, lines[0])
		return "", clone, nil
	default:
		return "", nil, fmt.Errorf("unsupported action %q", action)
	}
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
