package models

// ToolKind names one of the five tool kinds the dispatcher knows how to
// invoke. A ChatConfiguration's derived Tools set is built from the
// Tool(kind) settings present in its settings list.
type ToolKind string

const (
	ToolLocalMemory ToolKind = "local_memory"
	ToolCalculator  ToolKind = "calculator"
	ToolWeb         ToolKind = "web"
	ToolPython      ToolKind = "python"
	ToolAgent       ToolKind = "agent"
)

// RepeatPosition selects where a RepeatedPrePrompt setting is re-inserted
// on every turn: immediately before the latest part, or appended after it.
type RepeatPosition string

const (
	RepeatBeforeLatest RepeatPosition = "before_latest"
	RepeatAfterLatest  RepeatPosition = "after_latest"
)

// ChatSetting is a tagged union over the configuration variants named in
// the spec. Each concrete type below implements it; a type switch in
// consumers (pkg/models.ChatConfiguration, internal/dialogue) recovers the
// variant, matching the shape of the original Rust ChatSetting enum.
type ChatSetting interface {
	isChatSetting()
}

type SystemPromptSetting struct{ Part ContextPart }
type TemperatureSetting struct{ Hundredths int }
type ResponseTokenLimitSetting struct{ N int }
type MaxContextLengthSetting struct{ N int }
type AccessModeSetting struct{ ID int }
type PrePromptSetting struct{ Part ContextPart }
type RepeatedPrePromptSetting struct {
	Part     ContextPart
	Position RepeatPosition
}
type ToolSetting struct {
	Kind ToolKind
	// Data is the initial persistent data for the tool, if any (e.g. an
	// empty LocalMemory map). nil means the tool carries no persistent
	// state (Calculator, Web) or starts empty (Agent registry).
	Data ToolState
}

func (SystemPromptSetting) isChatSetting()      {}
func (TemperatureSetting) isChatSetting()       {}
func (ResponseTokenLimitSetting) isChatSetting() {}
func (MaxContextLengthSetting) isChatSetting()  {}
func (AccessModeSetting) isChatSetting()        {}
func (PrePromptSetting) isChatSetting()         {}
func (RepeatedPrePromptSetting) isChatSetting() {}
func (ToolSetting) isChatSetting()              {}

// ToolState is the persistent data a tool kind threads through the
// dialogue loop between calls (e.g. LocalMemory's key/value map, or the
// Agent tool's sub-agent registry). Dispatch implementations type-assert
// to their own concrete state type.
type ToolState interface {
	ToolKind() ToolKind
	Clone() ToolState
	// SnapshotData returns this tool's representation inserted into the
	// per-turn data-snapshot ContextPart, or false if this tool kind
	// carries nothing worth showing the model (Calculator, Web).
	SnapshotData() (ContextData, bool)
}

// ChatConfigID is a dense index into the database's configuration arena.
type ChatConfigID = int

// ChatConfiguration is a named, reusable settings profile.
type ChatConfiguration struct {
	ID          ChatConfigID  `json:"id"`
	Name        string        `json:"name"`
	CreatedOn   int64         `json:"created_on"`
	LastUpdated int64         `json:"last_updated"`
	Settings    []ChatSetting `json:"-"`
	Tags        map[int]struct{}        `json:"-"`
	AccessModes map[int]struct{}        `json:"-"`
}

// Clone returns a deep copy. Settings are value types over immutable-ish
// ContextParts; only the maps and the settings slice header need a fresh
// backing allocation to avoid aliasing the live configuration.
func (c ChatConfiguration) Clone() ChatConfiguration {
	out := c
	out.Settings = append([]ChatSetting{}, c.Settings...)
	out.Tags = cloneIntSet(c.Tags)
	out.AccessModes = cloneIntSet(c.AccessModes)
	return out
}

// Tools returns the set of tool kinds derived from the settings list. The
// derived set is non-empty iff at least one Tool setting is present,
// matching the invariant in spec.md §3.
func (c ChatConfiguration) Tools() []ToolSetting {
	var out []ToolSetting
	for _, s := range c.Settings {
		if t, ok := s.(ToolSetting); ok {
			out = append(out, t)
		}
	}
	return out
}

// HasTools reports whether this configuration derives a non-empty tool
// set.
func (c ChatConfiguration) HasTools() bool {
	return len(c.Tools()) > 0
}

// FullSystemPrompt concatenates every SystemPrompt setting's part, in
// settings-list order, into one System ContextPart.
func (c ChatConfiguration) FullSystemPrompt() ContextPart {
	out := ContextPart{Position: PositionSystem}
	for _, s := range c.Settings {
		if sp, ok := s.(SystemPromptSetting); ok {
			out.MergeDataWith(sp.Part)
		}
	}
	return out
}

// ApplyPerTurnSettings applies every RepeatedPrePrompt setting to ctx,
// inserting before or after the latest part per its RepeatPosition. This
// mirrors WholeContext::add_per_turn_settings from the original
// implementation (original_source/src/database/context.rs): BeforeLatest
// inserts immediately before the current last part (or at index 0 if the
// context is empty), AfterLatest appends at the end.
func (c ChatConfiguration) ApplyPerTurnSettings(ctx *Context) {
	for _, s := range c.Settings {
		rp, ok := s.(RepeatedPrePromptSetting)
		if !ok {
			continue
		}
		switch rp.Position {
		case RepeatAfterLatest:
			ctx.AddPart(rp.Part)
		case RepeatBeforeLatest:
			if len(ctx.Parts) >= 1 {
				idx := len(ctx.Parts) - 1
				ctx.Parts = append(ctx.Parts[:idx], append([]ContextPart{rp.Part}, ctx.Parts[idx:]...)...)
			} else {
				ctx.Parts = append([]ContextPart{rp.Part}, ctx.Parts...)
			}
		}
	}
}
