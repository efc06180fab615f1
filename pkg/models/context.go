// Package models defines the data model shared by the database actor, the
// AI endpoint, and the tool dispatcher: the dense-id entity types described
// by the database invariants, and the Context/ContextPart wire types that
// flow between the dialogue loop and the backend adapters.
package models

// ContextPosition tags a ContextPart with the role that produced it.
type ContextPosition string

const (
	PositionSystem ContextPosition = "system"
	PositionUser   ContextPosition = "user"
	PositionAI     ContextPosition = "ai"
	PositionTool   ContextPosition = "tool"
	PositionTotal  ContextPosition = "total"
)

// ContextData is one element of a ContextPart: either a text run or a
// reference to an image blob (media storage/hashing is out of core scope,
// so an image is carried only as an opaque id).
type ContextData struct {
	Text    string `json:"text,omitempty"`
	ImageID int    `json:"image_id,omitempty"`
	IsImage bool   `json:"is_image,omitempty"`
}

// TextData builds a text ContextData element.
func TextData(text string) ContextData {
	return ContextData{Text: text}
}

// ImageData builds an image-reference ContextData element.
func ImageData(id int) ContextData {
	return ContextData{ImageID: id, IsImage: true}
}

// ContextPart is an ordered list of ContextData tagged by position.
type ContextPart struct {
	Position ContextPosition `json:"position"`
	Data     []ContextData   `json:"data"`
}

// NewPart builds a ContextPart from a position and data slice.
func NewPart(position ContextPosition, data ...ContextData) ContextPart {
	return ContextPart{Position: position, Data: data}
}

// AddData appends one element.
func (p *ContextPart) AddData(d ContextData) {
	p.Data = append(p.Data, d)
}

// MergeDataWith appends another part's data onto this one, in order.
func (p *ContextPart) MergeDataWith(other ContextPart) {
	p.Data = append(p.Data, other.Data...)
}

// PrependText inserts a text run at the front of the part's data.
func (p *ContextPart) PrependText(text string) {
	p.Data = append([]ContextData{TextData(text)}, p.Data...)
}

// InVisiblePosition reports whether the part should be shown to a client
// (everything except System).
func (p ContextPart) InVisiblePosition() bool {
	return p.Position != PositionSystem
}

// ConcatenateText joins all contiguous text runs into one Text element,
// leaving image references as their own elements. This mirrors
// concatenate_text from the original Rust WholeContext implementation.
func (p *ContextPart) ConcatenateText() {
	newData := make([]ContextData, 0, len(p.Data))
	var current string
	for _, d := range p.Data {
		if d.IsImage {
			if current != "" {
				newData = append(newData, TextData(current))
				current = ""
			}
			newData = append(newData, d)
			continue
		}
		current += d.Text
	}
	if current != "" {
		newData = append(newData, TextData(current))
	}
	p.Data = newData
}

// ConcatenatedText returns the part's text runs joined into a single
// string, ignoring image placeholders (used by the tool-calling
// predicates, which only ever look at text).
func (p ContextPart) ConcatenatedText() string {
	out := ""
	for _, d := range p.Data {
		if !d.IsImage {
			out += d.Text
		}
	}
	return out
}

// Context is an ordered sequence of ContextParts: one full conversation.
type Context struct {
	Parts []ContextPart `json:"parts"`
}

// NewContext builds a Context from a slice of parts.
func NewContext(parts ...ContextPart) Context {
	return Context{Parts: append([]ContextPart{}, parts...)}
}

// AddPart appends a part.
func (c *Context) AddPart(p ContextPart) {
	c.Parts = append(c.Parts, p)
}

// Len returns the number of parts.
func (c Context) Len() int {
	return len(c.Parts)
}

// LastPart returns the final part, or false if the context is empty.
func (c Context) LastPart() (ContextPart, bool) {
	if len(c.Parts) == 0 {
		return ContextPart{}, false
	}
	return c.Parts[len(c.Parts)-1], true
}

// ConcatenateIntoSinglePart flattens every part's data into one Total part,
// in order. Neither backend adapter calls it.
func (c Context) ConcatenateIntoSinglePart() ContextPart {
	total := ContextPart{Position: PositionTotal}
	for _, p := range c.Parts {
		total.Data = append(total.Data, p.Data...)
	}
	return total
}

// Clone returns a deep copy so callers can mutate without aliasing the
// database's or another goroutine's copy.
func (c Context) Clone() Context {
	out := Context{Parts: make([]ContextPart, len(c.Parts))}
	for i, p := range c.Parts {
		out.Parts[i] = ContextPart{Position: p.Position, Data: append([]ContextData{}, p.Data...)}
	}
	return out
}
