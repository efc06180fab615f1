package models

// SessionType distinguishes the kind of backend session a chat turn is
// addressed to: a plain completion, a full chat session, or a structured
// function/tool-only exchange. The Agent tool's nested requests use
// SessionChat.
type SessionType string

const (
	SessionChat       SessionType = "chat"
	SessionCompletion SessionType = "completion"
	SessionFunction   SessionType = "function"
)

// ChatID is a dense index into the database's chat arena.
type ChatID = int

// Chat is a single conversation: its accumulated context, the
// configuration it was started with (if any), and the bookkeeping fields
// the database invariants are stated over.
type Chat struct {
	ID                ChatID      `json:"id"`
	Context           Context     `json:"context"`
	Title             *string     `json:"title,omitempty"`
	SessionID          *string    `json:"session_id,omitempty"`
	OriginDevice      int         `json:"origin_device"`
	StartDate         int64       `json:"start_date"`
	LastMessage       int64       `json:"last_message"`
	WaitingOnResponse bool        `json:"waiting_on_response"`
	Tags              map[int]struct{} `json:"-"`
	AccessModes       map[int]struct{} `json:"-"`
	ConfigID          *ChatConfigID `json:"config_id,omitempty"`
	// LastUsedConfig snapshots the configuration in effect for the most
	// recent turn, so a later config edit doesn't retroactively change
	// what a past turn "ran under".
	LastUsedConfig *ChatConfiguration `json:"-"`
}

// AddToContext appends a part and recomputes WaitingOnResponse, matching
// Chat::add_to_context: waiting_on_response is true iff the new last
// part's position is neither User nor System.
func (c *Chat) AddToContext(part ContextPart) {
	c.Context.AddPart(part)
	c.WaitingOnResponse = part.Position != PositionUser && part.Position != PositionSystem
}

// NewChat constructs a chat in the Beginning state: the caller is
// expected to push the initial system/user parts via AddToContext before
// handing it to the database.
func NewChat(originDevice int, configID *ChatConfigID, now int64) Chat {
	return Chat{
		OriginDevice:      originDevice,
		StartDate:         now,
		LastMessage:       now,
		WaitingOnResponse: true,
		Tags:              map[int]struct{}{},
		AccessModes:       map[int]struct{}{0: {}},
		ConfigID:          configID,
	}
}

func (c Chat) Clone() Chat {
	out := c
	out.Context = c.Context.Clone()
	out.Tags = cloneIntSet(c.Tags)
	out.AccessModes = cloneIntSet(c.AccessModes)
	return out
}

func cloneIntSet(s map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
