package mcpregistry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs an in-memory MCP server and returns a connected Registry
// plus the server for live mutation. The server goroutine is tied to
// t.Cleanup.
func startServer(t *testing.T, build func(*mcp.Server)) (*Registry, *mcp.Server) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "test-server",
		Version: "1.0.0",
	}, nil)

	if build != nil {
		build(server)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Run(ctx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	reg, err := Connect(ctx, "test", clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	return reg, server
}

func addEchoTool(server *mcp.Server, name string) {
	server.AddTool(&mcp.Tool{
		Name:        name,
		Description: "echoes its arguments",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := json.Marshal(req.Params.Arguments)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(args)}},
		}, nil
	})
}

func TestConnectCapturesCapabilities(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "echo")
	})

	assert.Equal(t, "test", reg.Name())
	require.NotNil(t, reg.Capabilities())
	assert.NotNil(t, reg.Capabilities().Tools)
}

func TestListToolsCachesUntilInvalidate(t *testing.T) {
	reg, server := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "one")
	})

	tools, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	// A tool added after the first fetch is invisible until the cache is
	// dropped.
	addEchoTool(server, "two")

	tools, err = reg.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)

	reg.Invalidate()

	tools, err = reg.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestListWithoutCapabilityReturnsEmpty(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "echo")
	})

	// Force a capability set without prompts or resources: the registry
	// must answer empty without contacting the server.
	reg.caps = &mcp.ServerCapabilities{Tools: reg.caps.Tools}

	prompts, err := reg.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prompts)

	resources, err := reg.ListResources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resources)

	templates, err := reg.ListResourceTemplates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestListPrompts(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		s.AddPrompt(&mcp.Prompt{
			Name:        "greeting",
			Description: "A friendly greeting",
		}, func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Messages: []*mcp.PromptMessage{
					{Role: "user", Content: &mcp.TextContent{Text: "Say hello."}},
				},
			}, nil
		})
	})

	prompts, err := reg.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "greeting", prompts[0].Name)

	got, err := reg.GetPrompt(context.Background(), "greeting")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
}

func TestListResourcesAndTemplates(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		s.AddResource(&mcp.Resource{
			URI:      "file:///notes.txt",
			Name:     "notes",
			MIMEType: "text/plain",
		}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: "file:///notes.txt", Text: "hello"},
				},
			}, nil
		})
		s.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: "file:///{name}.txt",
			Name:        "text files",
		}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{}, nil
		})
	})

	resources, err := reg.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "file:///notes.txt", resources[0].URI)

	templates, err := reg.ListResourceTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "file:///{name}.txt", templates[0].URITemplate)
}

func TestHasTool(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "echo")
	})

	ok, err := reg.HasTool(context.Background(), "echo")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.HasTool(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasToolBypassesCache(t *testing.T) {
	reg, server := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "one")
	})

	tools, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	// HasTool sees a tool added after the catalog was cached, and its live
	// answer refreshes the cache.
	addEchoTool(server, "two")

	ok, err := reg.HasTool(context.Background(), "two")
	require.NoError(t, err)
	assert.True(t, ok)

	tools, err = reg.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestHasToolSeesRemoval(t *testing.T) {
	reg, server := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "vanishing")
	})

	tools, err := reg.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	server.RemoveTools("vanishing")

	ok, err := reg.HasTool(context.Background(), "vanishing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPromptBypassesCache(t *testing.T) {
	addGreeting := func(s *mcp.Server, name string) {
		s.AddPrompt(&mcp.Prompt{Name: name}, func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{}, nil
		})
	}

	reg, server := startServer(t, func(s *mcp.Server) {
		addGreeting(s, "greeting")
	})

	prompts, err := reg.ListPrompts(context.Background())
	require.NoError(t, err)
	require.Len(t, prompts, 1)

	addGreeting(server, "farewell")

	ok, err := reg.HasPrompt(context.Background(), "farewell")
	require.NoError(t, err)
	assert.True(t, ok)

	prompts, err = reg.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Len(t, prompts, 2)
}

func TestCallTool(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "echo")
	})

	res, err := reg.CallTool(context.Background(), "echo", json.RawMessage(`{"msg":"hi"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"msg":"hi"}`, tc.Text)
}

func TestCallToolBadArguments(t *testing.T) {
	reg, _ := startServer(t, func(s *mcp.Server) {
		addEchoTool(s, "echo")
	})

	_, err := reg.CallTool(context.Background(), "echo", json.RawMessage(`not json`))
	assert.Error(t, err)
}
