// Package events defines the typed messages exchanged over a realtime
// session, both client- and server-originated.
package events

import "encoding/json"

// Type identifies the kind of realtime event.
type Type string

// Client event types.
const (
	TypeSessionUpdate          Type = "session.update"
	TypeConversationItemCreate Type = "conversation.item.create"
	TypeResponseCreate         Type = "response.create"
	TypeResponseCancel         Type = "response.cancel"
)

// Server event types.
const (
	TypeError                        Type = "error"
	TypeSessionCreated               Type = "session.created"
	TypeSessionUpdated               Type = "session.updated"
	TypeConversationItemCreated      Type = "conversation.item.created"
	TypeResponseCreated              Type = "response.created"
	TypeResponseDone                 Type = "response.done"
	TypeResponseOutputItemAdded      Type = "response.output_item.added"
	TypeResponseOutputItemDone       Type = "response.output_item.done"
	TypeResponseTextDelta            Type = "response.text.delta"
	TypeResponseTextDone             Type = "response.text.done"
	TypeResponseAudioTranscriptDelta Type = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone  Type = "response.audio_transcript.done"
)

var knownTypes = map[Type]struct{}{
	TypeSessionUpdate:                {},
	TypeConversationItemCreate:       {},
	TypeResponseCreate:               {},
	TypeResponseCancel:               {},
	TypeError:                        {},
	TypeSessionCreated:               {},
	TypeSessionUpdated:               {},
	TypeConversationItemCreated:      {},
	TypeResponseCreated:              {},
	TypeResponseDone:                 {},
	TypeResponseOutputItemAdded:      {},
	TypeResponseOutputItemDone:       {},
	TypeResponseTextDelta:            {},
	TypeResponseTextDone:             {},
	TypeResponseAudioTranscriptDelta: {},
	TypeResponseAudioTranscriptDone:  {},
}

// Known reports whether t is part of the closed set of recognized event
// types. Events with unrecognized types still decode and are delivered to
// generic subscribers only.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is a single realtime event. Which payload fields are populated
// depends on Type; unused fields stay at their zero value and are omitted
// from the wire encoding.
type Event struct {
	Type       Type         `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	ResponseID string       `json:"response_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Item       *Item        `json:"item,omitempty"`
	Session    *Session     `json:"session,omitempty"`
	Response   *Response    `json:"response,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// Session carries session configuration for session.update and the
// session.created/session.updated acknowledgements.
type Session struct {
	Model        string           `json:"model,omitempty"`
	Voice        string           `json:"voice,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
	Modalities   []string         `json:"modalities,omitempty"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   string           `json:"tool_choice,omitempty"`
	Temperature  float64          `json:"temperature,omitempty"`
}

// ToolDefinition declares one callable function to the model.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Response carries generation parameters for response.create and status
// information on response.* server events.
type Response struct {
	ID           string   `json:"id,omitempty"`
	Status       string   `json:"status,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Output       []Item   `json:"output,omitempty"`
}

// ErrorDetail describes a server-reported error event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
