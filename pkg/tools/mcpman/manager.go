// Package mcpman aggregates the tool, prompt, and resource catalogs of any
// number of independently-connected MCP servers and routes calls to the
// server owning a given capability.
package mcpman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/speaches-ai/realtime-console/pkg/tools/mcpregistry"
	"github.com/speaches-ai/realtime-console/pkg/tools/toolbox"
)

var (
	// ErrDuplicateServer is returned by AddServer for a name already in use.
	ErrDuplicateServer = errors.New("mcpman: server name already registered")
	// ErrUnknownServer is returned by RemoveServer for an unregistered name.
	ErrUnknownServer = errors.New("mcpman: unknown server")
	// ErrToolNotFound is returned when no merged catalog entry matches.
	ErrToolNotFound = errors.New("mcpman: tool not found")
	// ErrToolStale is returned when the merged catalog lists a tool but no
	// live server confirms it on recheck.
	ErrToolStale = errors.New("mcpman: tool in catalog but not found on recheck")
	// ErrPromptNotFound is returned when no merged catalog entry matches.
	ErrPromptNotFound = errors.New("mcpman: prompt not found")
	// ErrPromptStale is returned when the merged catalog lists a prompt but
	// no live server confirms it on recheck.
	ErrPromptStale = errors.New("mcpman: prompt in catalog but not found on recheck")
)

// ServerInfo describes a newly-initialized server to notification listeners.
type ServerInfo struct {
	Name         string
	Capabilities *mcp.ServerCapabilities
}

type initEntry struct{ fn func(ServerInfo) }

// Manager owns a set of named MCP server connections. Catalog listings fan
// out to every server concurrently and merge first-seen-wins by natural key
// in server registration order; a failing server contributes nothing and
// does not fail the aggregate call.
type Manager struct {
	log *slog.Logger

	mu      sync.RWMutex
	order   []string
	servers map[string]*mcpregistry.Registry
	initFns []*initEntry
}

// New creates a Manager with no servers. A nil logger falls back to
// slog.Default().
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log,
		servers: make(map[string]*mcpregistry.Registry),
	}
}

// OnServerInitialized registers fn to run after each successful AddServer,
// carrying the server name and its capability set. Returns a removal
// function.
func (m *Manager) OnServerInitialized(fn func(ServerInfo)) func() {
	e := &initEntry{fn: fn}

	m.mu.Lock()
	m.initFns = append(m.initFns, e)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.initFns {
			if cur == e {
				m.initFns = append(m.initFns[:i], m.initFns[i+1:]...)
				return
			}
		}
	}
}

// AddServer connects to an MCP server over the given transport and
// registers it under name. Connection or capability retrieval failure is a
// hard failure and nothing is registered. On success the catalogs of
// previously-registered servers are invalidated and initialization
// listeners are notified.
func (m *Manager) AddServer(ctx context.Context, name string, transport mcp.Transport) error {
	m.mu.RLock()
	_, dup := m.servers[name]
	m.mu.RUnlock()
	if dup {
		return fmt.Errorf("%w: %q", ErrDuplicateServer, name)
	}

	reg, err := mcpregistry.Connect(ctx, name, transport, m.log)
	if err != nil {
		return fmt.Errorf("mcpman: add server %q: %w", name, err)
	}

	m.mu.Lock()
	if _, dup := m.servers[name]; dup {
		m.mu.Unlock()
		_ = reg.Close()
		return fmt.Errorf("%w: %q", ErrDuplicateServer, name)
	}
	existing := m.snapshotLocked()
	m.order = append(m.order, name)
	m.servers[name] = reg
	listeners := make([]*initEntry, len(m.initFns))
	copy(listeners, m.initFns)
	m.mu.Unlock()

	for _, other := range existing {
		other.Invalidate()
	}

	info := ServerInfo{Name: name, Capabilities: reg.Capabilities()}
	for _, e := range listeners {
		e.fn(info)
	}

	m.log.Info("mcpman: server initialized", "server", name)
	return nil
}

// Register adds an already-connected registry. Used by hosts that manage
// their own transports.
func (m *Manager) Register(reg *mcpregistry.Registry) error {
	m.mu.Lock()
	if _, dup := m.servers[reg.Name()]; dup {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateServer, reg.Name())
	}
	m.order = append(m.order, reg.Name())
	m.servers[reg.Name()] = reg
	listeners := make([]*initEntry, len(m.initFns))
	copy(listeners, m.initFns)
	m.mu.Unlock()

	info := ServerInfo{Name: reg.Name(), Capabilities: reg.Capabilities()}
	for _, e := range listeners {
		e.fn(info)
	}
	return nil
}

// RemoveServer closes the named server's connection and forgets it.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	reg, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		m.log.Error("mcpman: cannot remove unknown server", "server", name)
		return fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}

	delete(m.servers, name)
	for i, cur := range m.order {
		if cur == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := reg.Close(); err != nil {
		return fmt.Errorf("mcpman: close server %q: %w", name, err)
	}
	return nil
}

// Servers returns the registered server names in registration order.
func (m *Manager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// snapshot returns the registries in registration order. Fan-out operations
// work on this fixed snapshot of the member set.
func (m *Manager) snapshot() []*mcpregistry.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() []*mcpregistry.Registry {
	out := make([]*mcpregistry.Registry, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.servers[name])
	}
	return out
}

// ListTools returns the merged tool catalog: every server is asked
// concurrently and duplicates by tool name are dropped first-seen-wins in
// registration order.
func (m *Manager) ListTools(ctx context.Context) []*mcp.Tool {
	regs := m.snapshot()
	results := make([][]*mcp.Tool, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Go(func() {
			tools, err := reg.ListTools(ctx)
			if err != nil {
				m.log.Warn("mcpman: list tools failed", "server", reg.Name(), "err", err)
				return
			}
			results[i] = tools
		})
	}
	wg.Wait()

	seen := make(map[string]string)
	var merged []*mcp.Tool
	for i, tools := range results {
		for _, t := range tools {
			if owner, dup := seen[t.Name]; dup {
				m.log.Warn("mcpman: duplicate tool suppressed",
					"tool", t.Name, "server", regs[i].Name(), "owner", owner)
				continue
			}
			seen[t.Name] = regs[i].Name()
			merged = append(merged, t)
		}
	}
	return merged
}

// ListPrompts returns the merged prompt catalog, deduplicated by name.
func (m *Manager) ListPrompts(ctx context.Context) []*mcp.Prompt {
	regs := m.snapshot()
	results := make([][]*mcp.Prompt, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Go(func() {
			prompts, err := reg.ListPrompts(ctx)
			if err != nil {
				m.log.Warn("mcpman: list prompts failed", "server", reg.Name(), "err", err)
				return
			}
			results[i] = prompts
		})
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []*mcp.Prompt
	for _, prompts := range results {
		for _, p := range prompts {
			if _, dup := seen[p.Name]; dup {
				m.log.Warn("mcpman: duplicate prompt suppressed", "prompt", p.Name)
				continue
			}
			seen[p.Name] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

// ListResources returns the merged resource catalog, deduplicated by URI.
func (m *Manager) ListResources(ctx context.Context) []*mcp.Resource {
	regs := m.snapshot()
	results := make([][]*mcp.Resource, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Go(func() {
			resources, err := reg.ListResources(ctx)
			if err != nil {
				m.log.Warn("mcpman: list resources failed", "server", reg.Name(), "err", err)
				return
			}
			results[i] = resources
		})
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []*mcp.Resource
	for _, resources := range results {
		for _, r := range resources {
			if _, dup := seen[r.URI]; dup {
				m.log.Warn("mcpman: duplicate resource suppressed", "uri", r.URI)
				continue
			}
			seen[r.URI] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}

// ListResourceTemplates returns the merged resource template catalog,
// deduplicated by URI template.
func (m *Manager) ListResourceTemplates(ctx context.Context) []*mcp.ResourceTemplate {
	regs := m.snapshot()
	results := make([][]*mcp.ResourceTemplate, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Go(func() {
			templates, err := reg.ListResourceTemplates(ctx)
			if err != nil {
				m.log.Warn("mcpman: list resource templates failed", "server", reg.Name(), "err", err)
				return
			}
			results[i] = templates
		})
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var merged []*mcp.ResourceTemplate
	for _, templates := range results {
		for _, rt := range templates {
			if _, dup := seen[rt.URITemplate]; dup {
				m.log.Warn("mcpman: duplicate resource template suppressed", "template", rt.URITemplate)
				continue
			}
			seen[rt.URITemplate] = struct{}{}
			merged = append(merged, rt)
		}
	}
	return merged
}

// CallTool resolves name against the merged catalog and forwards the call
// to the first registered server whose own tool list contains it. If the
// catalog listed the tool but no live server confirms it, the distinct
// ErrToolStale is returned rather than a silent success.
func (m *Manager) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	if !containsTool(m.ListTools(ctx), name) {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	for _, reg := range m.snapshot() {
		ok, err := reg.HasTool(ctx, name)
		if err != nil {
			m.log.Warn("mcpman: recheck failed", "server", reg.Name(), "err", err)
			continue
		}
		if ok {
			return reg.CallTool(ctx, name, arguments)
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrToolStale, name)
}

// GetPrompt resolves name against the merged catalog and fetches it from
// the owning server. This path carries no prompt arguments.
func (m *Manager) GetPrompt(ctx context.Context, name string) (*mcp.GetPromptResult, error) {
	var listed bool
	for _, p := range m.ListPrompts(ctx) {
		if p.Name == name {
			listed = true
			break
		}
	}
	if !listed {
		return nil, fmt.Errorf("%w: %q", ErrPromptNotFound, name)
	}

	for _, reg := range m.snapshot() {
		ok, err := reg.HasPrompt(ctx, name)
		if err != nil {
			m.log.Warn("mcpman: recheck failed", "server", reg.Name(), "err", err)
			continue
		}
		if ok {
			return reg.GetPrompt(ctx, name)
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrPromptStale, name)
}

// Tools converts the merged tool catalog into toolbox tools whose handlers
// route back through CallTool.
func (m *Manager) Tools(ctx context.Context) []toolbox.Tool {
	catalog := m.ListTools(ctx)

	out := make([]toolbox.Tool, 0, len(catalog))
	for _, t := range catalog {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			m.log.Warn("mcpman: skipping tool with unencodable schema", "tool", t.Name, "err", err)
			continue
		}

		name := t.Name
		out = append(out, toolbox.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			Handler: func(ctx context.Context, arguments json.RawMessage) (string, error) {
				res, err := m.CallTool(ctx, name, arguments)
				if err != nil {
					return "", err
				}

				text := extractText(res)
				if res.IsError {
					return "", fmt.Errorf("mcpman: tool %q error: %s", name, text)
				}
				return text, nil
			},
		})
	}
	return out
}

// Invalidate drops every server's cached catalogs.
func (m *Manager) Invalidate() {
	for _, reg := range m.snapshot() {
		reg.Invalidate()
	}
}

// Close closes all server connections and returns the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	regs := m.snapshotLocked()
	m.order = nil
	m.servers = make(map[string]*mcpregistry.Registry)
	m.mu.Unlock()

	var firstErr error
	for _, reg := range regs {
		if err := reg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func containsTool(tools []*mcp.Tool, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// extractText joins all text content items from a tool result with newlines.
func extractText(res *mcp.CallToolResult) string {
	var texts []string
	for _, item := range res.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}
