package store

import (
	"fmt"
	"strings"

	"github.com/pedrow21/proxima/pkg/models"
)

// agentPromptSystemText instructs the model to answer a description/tag
// generation subprompt in the fixed DOM shape the original implementation
// parses (original_source/src/database/description.rs's Description/
// NewTags/Tagging elements): generating that shape is in scope, parsing
// the response back into entities is the explicit "description parsing"
// non-goal, so this only ever builds the prompt, never consumes a reply.
const agentPromptSystemText = "Given the descriptor below and the existing tag list, respond with exactly " +
	"one <Description>...</Description> element containing a short description, " +
	"zero or more <NewTags>name:description:parent</NewTags> lines (parent is an " +
	"existing tag name or NONE), and one <Tagging>...</Tagging> element listing, " +
	"one per line, the names of existing tags that apply. Emit nothing else."

// AgentPrompt synthesizes the system-plus-user context for a
// description-or-tag-generation subprompt (spec.md §2/§4.2's
// GetAgentPrompt operation; see §10 of SPEC_FULL.md).
func (a *Actor) AgentPrompt(descriptor string) models.Context {
	sys := models.NewPart(models.PositionSystem, models.TextData(agentPromptSystemText))

	names := make([]string, 0, a.db.Tags.Len())
	for _, t := range a.db.Tags.All() {
		names = append(names, t.Name)
	}
	user := models.NewPart(models.PositionUser, models.TextData(fmt.Sprintf(
		"Descriptor:\n%s\n\nExisting tags:\n%s",
		descriptor, strings.Join(names, "\n"),
	)))
	return models.NewContext(sys, user)
}
