// Package toolbox holds the neutral tool representation shared between the
// MCP aggregation layer and the realtime session, which advertises tools to
// the model.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolBox is a named collection of tools keyed by tool name. It is safe for
// concurrent use: the session refreshes it while the UI reads it.
type ToolBox struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// New creates an empty ToolBox.
func New() *ToolBox {
	return &ToolBox{tools: make(map[string]Tool)}
}

// Register adds one or more tools. A tool whose name is already present
// replaces the existing entry without changing its position.
func (tb *ToolBox) Register(tools ...Tool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for _, t := range tools {
		if _, ok := tb.tools[t.Name]; !ok {
			tb.order = append(tb.order, t.Name)
		}
		tb.tools[t.Name] = t
	}
}

// Get returns a tool by name.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	t, ok := tb.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return len(tb.order)
}

// Tools returns all registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		out = append(out, tb.tools[name])
	}
	return out
}

// Call runs the named tool and returns its text result.
func (tb *ToolBox) Call(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	tb.mu.RLock()
	t, ok := tb.tools[name]
	tb.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("toolbox: tool not found: %s", name)
	}

	return t.Handler(ctx, arguments)
}
