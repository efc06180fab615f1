// Package subagent implements the Agent tool: recursive sub-agent
// instantiation scoped to a caller-chosen subset of tools, grounded on
// the `run`/`respond` sub-tool described in spec.md §4.3 and on the
// recursive AiEndpoint/self_sender pattern in the original
// ai_interaction module (original_source/src/ai_interaction/mod.rs).
package subagent

import (
	"sort"

	"github.com/pedrow21/proxima/pkg/models"
)

// AgentRecord is one named sub-agent: the model and tool subset it was
// created with, its chat, and a coarse status string ("idle"/"busy").
type AgentRecord struct {
	Name         string
	Model        string
	AllowedTools []string
	Status       string
	ChatID       models.ChatID
}

// Registry is the Agent tool's persistent state: named sub-agents plus
// the set of tool names a caller of `run` is permitted to hand to one.
type Registry struct {
	Agents           map[string]AgentRecord
	Counter          int
	AllocatableTools []string
}

// Empty returns a fresh Registry scoped to allocatable.
func Empty(allocatable []string) Registry {
	return Registry{Agents: map[string]AgentRecord{}, AllocatableTools: allocatable}
}

func (Registry) ToolKind() models.ToolKind { return models.ToolAgent }

// ShiftIDs bumps every sub-agent chat id at or above insertedAt when a
// chat is inserted at that id, so each record keeps naming its own chat.
func (r Registry) ShiftIDs(kind models.ItemKind, insertedAt int) {
	if kind != models.KindChat {
		return
	}
	for name, rec := range r.Agents {
		if rec.ChatID >= insertedAt {
			rec.ChatID++
			r.Agents[name] = rec
		}
	}
}

func (r Registry) Clone() models.ToolState {
	out := Registry{
		Agents:           make(map[string]AgentRecord, len(r.Agents)),
		Counter:          r.Counter,
		AllocatableTools: append([]string{}, r.AllocatableTools...),
	}
	for k, v := range r.Agents {
		v.AllowedTools = append([]string{}, v.AllowedTools...)
		out.Agents[k] = v
	}
	return out
}

// SnapshotData lists every live sub-agent by name and status, so the
// model can see what agents it has already spawned.
func (r Registry) SnapshotData() (models.ContextData, bool) {
	if len(r.Agents) == 0 {
		return models.ContextData{}, false
	}
	names := make([]string, 0, len(r.Agents))
	for n := range r.Agents {
		names = append(names, n)
	}
	sort.Strings(names)

	out := "<Agent> sub-agents : map["
	for i, n := range names {
		if i > 0 {
			out += " "
		}
		rec := r.Agents[n]
		out += n + ":" + rec.Status
	}
	out += "]<Agent>"
	return models.TextData(out), true
}
