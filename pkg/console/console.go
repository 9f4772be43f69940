// Package console is the composition root: it dials the realtime endpoint,
// wires the frame reassembler into the event dispatcher, connects the
// configured MCP servers, and exposes the live session.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/speaches-ai/realtime-console/pkg/convo"
	"github.com/speaches-ai/realtime-console/pkg/dispatch"
	"github.com/speaches-ai/realtime-console/pkg/events"
	"github.com/speaches-ai/realtime-console/pkg/session"
	"github.com/speaches-ai/realtime-console/pkg/tools/mcpman"
	"github.com/speaches-ai/realtime-console/pkg/transport"
	"github.com/speaches-ai/realtime-console/pkg/wire"
)

// Console owns the connected realtime session and its supporting parts.
type Console struct {
	log  *slog.Logger
	cfg  Config
	ctx  context.Context
	ch   transport.Channel
	disp *dispatch.Dispatcher
	conv *convo.Conversation
	man  *mcpman.Manager
	sess *session.Session
}

// New connects to the realtime endpoint described by cfg and brings up the
// full pipeline. MCP servers that fail to connect are logged and skipped;
// the console stays usable without them.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Console, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Console{
		log:  log,
		cfg:  cfg,
		ctx:  context.WithoutCancel(ctx),
		disp: dispatch.New(log),
		conv: convo.New(),
		man:  mcpman.New(log),
	}

	sess, err := session.New(session.Config{
		Model:        cfg.Model,
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
		Modalities:   cfg.Modalities,
	}, c.disp, c.conv, c.man, log)
	if err != nil {
		_ = c.man.Close()
		return nil, fmt.Errorf("console: %w", err)
	}
	c.sess = sess

	reasm := wire.NewReassembler(func(ev events.Event) {
		c.disp.Dispatch(c.ctx, ev)
	}, log)

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	endpoint := cfg.BaseURL + "/realtime?model=" + url.QueryEscape(cfg.Model)
	ch, err := transport.DialWS(ctx, endpoint, header, nil, log)
	if err != nil {
		sess.Close()
		_ = c.man.Close()
		return nil, fmt.Errorf("console: %w", err)
	}
	c.ch = ch

	ch.OnMessage(reasm.Ingest)
	c.disp.Attach(ch)

	// Each newly-connected MCP server refreshes the advertised catalog and
	// re-advertises it.
	c.man.OnServerInitialized(func(info mcpman.ServerInfo) {
		c.sess.RefreshTools(c.ctx)
		if err := c.sess.UpdateSession(c.ctx); err != nil {
			log.Error("console: session update after server init", "server", info.Name, "err", err)
		}
	})

	for _, sc := range cfg.MCPServers {
		if err := c.man.AddServer(ctx, sc.Name, serverTransport(sc)); err != nil {
			log.Error("console: mcp server unavailable", "server", sc.Name, "err", err)
		}
	}

	c.sess.RefreshTools(ctx)
	if err := c.sess.UpdateSession(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("console: initial session update: %w", err)
	}

	return c, nil
}

func serverTransport(sc MCPServerConfig) mcp.Transport {
	if sc.Command != "" {
		return &mcp.CommandTransport{
			Command: exec.Command(sc.Command, sc.Args...), //nolint:gosec // command comes from the user's own config
		}
	}
	return &mcp.SSEClientTransport{Endpoint: sc.URL}
}

// Session returns the live realtime session.
func (c *Console) Session() *session.Session { return c.sess }

// Conversation returns the mirrored conversation state.
func (c *Console) Conversation() *convo.Conversation { return c.conv }

// Dispatcher returns the event dispatcher, for any-handler and OnSent
// registration by the UI.
func (c *Console) Dispatcher() *dispatch.Dispatcher { return c.disp }

// Manager returns the MCP server manager.
func (c *Console) Manager() *mcpman.Manager { return c.man }

// Close tears down the session handlers, the realtime channel, and all MCP
// connections, returning the first error.
func (c *Console) Close() error {
	c.sess.Close()

	var firstErr error
	if err := c.ch.Close(); err != nil {
		firstErr = err
	}
	if err := c.man.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
