package toolbox

import (
	"context"
	"encoding/json"
)

// Handler executes a tool with the given JSON arguments and returns a text
// result.
type Handler func(ctx context.Context, arguments json.RawMessage) (string, error)

// Tool is one callable tool: a name, a description, a JSON Schema for its
// arguments, and the handler that runs it.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}
