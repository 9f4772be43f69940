package events

import "strings"

// ItemType identifies the kind of conversation item.
type ItemType string

const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
)

// ContentType identifies the kind of a message content part.
type ContentType string

const (
	ContentText          ContentType = "text"
	ContentInputText     ContentType = "input_text"
	ContentAudio         ContentType = "audio"
	ContentInputAudio    ContentType = "input_audio"
	ContentItemReference ContentType = "item_reference"
)

// StatusCompleted marks a finalized item.
const StatusCompleted = "completed"

// Item is one conversation item: a message, a function call, or a function
// call output. An item's Type never changes after creation; replacing an
// item wholesale under the same ID is the only legal "mutation" besides
// text/transcript delta appends.
type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      ItemType      `json:"type,omitempty"`
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// ContentPart is one ordered piece of a message item. Text parts accumulate
// into Text; audio parts accumulate their transcript into Transcript.
type ContentPart struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Audio      string      `json:"audio,omitempty"`
	ID         string      `json:"id,omitempty"`
}

// TextContent concatenates the display text of all content parts: the text
// of text parts and the transcript of audio parts.
func (i Item) TextContent() string {
	var b strings.Builder
	for _, p := range i.Content {
		switch p.Type {
		case ContentText, ContentInputText:
			b.WriteString(p.Text)
		case ContentAudio, ContentInputAudio:
			b.WriteString(p.Transcript)
		}
	}
	return b.String()
}

// IsFunctionCall reports whether the item is a function call.
func (i Item) IsFunctionCall() bool { return i.Type == ItemFunctionCall }
