// Package mcpregistry wraps a single MCP server connection and caches its
// tool, prompt, and resource catalogs.
package mcpregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Registry is a connected MCP server with lazily-populated catalog caches.
// Each listing is fetched once on first access and kept until Invalidate is
// called; the registry itself never expires a cache.
type Registry struct {
	name    string
	client  *mcp.Client
	session *mcp.ClientSession
	caps    *mcp.ServerCapabilities
	log     *slog.Logger

	mu          sync.Mutex
	tools       []*mcp.Tool
	toolsOK     bool
	prompts     []*mcp.Prompt
	promptsOK   bool
	resources   []*mcp.Resource
	resourcesOK bool
	templates   []*mcp.ResourceTemplate
	templatesOK bool
}

// Connect establishes an MCP session over the given transport and captures
// the server's capability set. Connection or capability retrieval failure
// leaves nothing registered.
func Connect(ctx context.Context, name string, transport mcp.Transport, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "realtime-console",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: connect %q: %w", name, err)
	}

	init := session.InitializeResult()
	if init == nil || init.Capabilities == nil {
		_ = session.Close()
		return nil, fmt.Errorf("mcpregistry: connect %q: server reported no capabilities", name)
	}

	return &Registry{
		name:    name,
		client:  client,
		session: session,
		caps:    init.Capabilities,
		log:     log,
	}, nil
}

// ConnectCommand spawns an MCP server process and connects over stdio.
func ConnectCommand(ctx context.Context, name, command string, args []string, log *slog.Logger) (*Registry, error) {
	transport := &mcp.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command comes from the user's own config
	}
	return Connect(ctx, name, transport, log)
}

// ConnectSSE connects to an SSE-based MCP server at the given URL.
func ConnectSSE(ctx context.Context, name, url string, log *slog.Logger) (*Registry, error) {
	return Connect(ctx, name, &mcp.SSEClientTransport{Endpoint: url}, log)
}

// ConnectStreamable connects to a streamable-HTTP MCP server at the given
// URL.
func ConnectStreamable(ctx context.Context, name, url string, log *slog.Logger) (*Registry, error) {
	return Connect(ctx, name, &mcp.StreamableClientTransport{Endpoint: url}, log)
}

// Name returns the registry's unique server name.
func (r *Registry) Name() string { return r.name }

// Capabilities returns the capability set captured at connect time.
func (r *Registry) Capabilities() *mcp.ServerCapabilities { return r.caps }

// ListTools returns the server's tools. The first successful fetch is
// cached. A server without the tools capability contributes an empty list
// without being contacted.
func (r *Registry) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	if r.caps.Tools == nil {
		r.log.Warn("mcpregistry: server lacks tools capability", "server", r.name)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.toolsOK {
		return r.tools, nil
	}

	res, err := r.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: list tools: %w", r.name, err)
	}

	r.tools = res.Tools
	r.toolsOK = true
	return r.tools, nil
}

// ListPrompts returns the server's prompts, cached after the first fetch.
// A server without the prompts capability contributes an empty list.
func (r *Registry) ListPrompts(ctx context.Context) ([]*mcp.Prompt, error) {
	if r.caps.Prompts == nil {
		r.log.Warn("mcpregistry: server lacks prompts capability", "server", r.name)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.promptsOK {
		return r.prompts, nil
	}

	res, err := r.session.ListPrompts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: list prompts: %w", r.name, err)
	}

	r.prompts = res.Prompts
	r.promptsOK = true
	return r.prompts, nil
}

// ListResources returns the server's resources, cached after the first
// fetch. A server without the resources capability contributes an empty
// list.
func (r *Registry) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	if r.caps.Resources == nil {
		r.log.Warn("mcpregistry: server lacks resources capability", "server", r.name)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resourcesOK {
		return r.resources, nil
	}

	res, err := r.session.ListResources(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: list resources: %w", r.name, err)
	}

	r.resources = res.Resources
	r.resourcesOK = true
	return r.resources, nil
}

// ListResourceTemplates returns the server's resource templates, cached
// after the first fetch. Templates fall under the resources capability.
func (r *Registry) ListResourceTemplates(ctx context.Context) ([]*mcp.ResourceTemplate, error) {
	if r.caps.Resources == nil {
		r.log.Warn("mcpregistry: server lacks resources capability", "server", r.name)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.templatesOK {
		return r.templates, nil
	}

	res, err := r.session.ListResourceTemplates(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: list resource templates: %w", r.name, err)
	}

	r.templates = res.ResourceTemplates
	r.templatesOK = true
	return r.templates, nil
}

// HasTool reports whether the server currently exposes the named tool. It
// asks the server directly, bypassing the catalog cache, and refreshes the
// cache with what the server answered. A server without the tools capability
// reports false without being contacted.
func (r *Registry) HasTool(ctx context.Context, name string) (bool, error) {
	if r.caps.Tools == nil {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.session.ListTools(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("mcpregistry: %q: list tools: %w", r.name, err)
	}

	r.tools = res.Tools
	r.toolsOK = true

	for _, t := range r.tools {
		if t.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CallTool invokes the named tool with the given JSON arguments and returns
// the raw result, including tool-reported errors (IsError).
func (r *Registry) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("mcpregistry: %q: unmarshal arguments: %w", r.name, err)
		}
	}

	res, err := r.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: call tool %q: %w", r.name, name, err)
	}

	return res, nil
}

// GetPrompt fetches the named prompt. This path carries no arguments.
func (r *Registry) GetPrompt(ctx context.Context, name string) (*mcp.GetPromptResult, error) {
	res, err := r.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name})
	if err != nil {
		return nil, fmt.Errorf("mcpregistry: %q: get prompt %q: %w", r.name, name, err)
	}

	return res, nil
}

// HasPrompt reports whether the server currently exposes the named prompt.
// Like HasTool, it bypasses the catalog cache and refreshes it. A server
// without the prompts capability reports false without being contacted.
func (r *Registry) HasPrompt(ctx context.Context, name string) (bool, error) {
	if r.caps.Prompts == nil {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.session.ListPrompts(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("mcpregistry: %q: list prompts: %w", r.name, err)
	}

	r.prompts = res.Prompts
	r.promptsOK = true

	for _, p := range r.prompts {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops all cached catalogs; the next access refetches.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools, r.toolsOK = nil, false
	r.prompts, r.promptsOK = nil, false
	r.resources, r.resourcesOK = nil, false
	r.templates, r.templatesOK = nil, false
}

// Close terminates the session. The MCP SDK handles subprocess shutdown for
// command transports.
func (r *Registry) Close() error {
	return r.session.Close()
}
