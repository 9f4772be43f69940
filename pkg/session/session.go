// Package session implements the realtime session protocol on top of the
// event dispatcher: it mirrors server conversation state, executes model
// function calls through the MCP manager, and advertises the merged tool
// catalog to the model.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/speaches-ai/realtime-console/pkg/convo"
	"github.com/speaches-ai/realtime-console/pkg/dispatch"
	"github.com/speaches-ai/realtime-console/pkg/events"
	"github.com/speaches-ai/realtime-console/pkg/tools/mcpman"
	"github.com/speaches-ai/realtime-console/pkg/tools/toolbox"
)

// Config carries the session parameters advertised via session.update.
type Config struct {
	Model        string
	Voice        string
	Instructions string
	Modalities   []string
}

// Session owns the protocol handlers for one realtime connection. It is the
// sole typed handler for conversation and response events; the dispatcher
// serializes delivery, so no internal locking is needed.
type Session struct {
	log  *slog.Logger
	disp *dispatch.Dispatcher
	conv *convo.Conversation
	man  *mcpman.Manager
	cfg  Config

	// tb is the advertised tool catalog: RefreshTools fills it from the
	// manager and UpdateSession advertises its contents.
	tb *toolbox.ToolBox

	// executed tracks function call_ids already run, so an item surfacing
	// through both conversation.item.created and response.output_item.done
	// executes at most once.
	executed map[string]bool

	removeFns []func()
}

// New registers the session's typed handlers on the dispatcher. It fails if
// another component already owns one of the event types.
func New(cfg Config, disp *dispatch.Dispatcher, conv *convo.Conversation, man *mcpman.Manager, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		log:      log,
		disp:     disp,
		conv:     conv,
		man:      man,
		cfg:      cfg,
		tb:       toolbox.New(),
		executed: make(map[string]bool),
	}

	handlers := map[events.Type]dispatch.Handler{
		events.TypeConversationItemCreated:      s.onItemCreated,
		events.TypeResponseOutputItemAdded:      s.onOutputItemAdded,
		events.TypeResponseOutputItemDone:       s.onOutputItemDone,
		events.TypeResponseTextDelta:            s.onDelta,
		events.TypeResponseAudioTranscriptDelta: s.onDelta,
		events.TypeError:                        s.onError,
	}
	for t, h := range handlers {
		remove, err := disp.Handle(t, h)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("session: register handler: %w", err)
		}
		s.removeFns = append(s.removeFns, remove)
	}

	return s, nil
}

// Close removes the session's handlers from the dispatcher.
func (s *Session) Close() {
	for _, remove := range s.removeFns {
		remove()
	}
	s.removeFns = nil
}

// SendText creates a user text message in the server conversation and asks
// the model to respond.
func (s *Session) SendText(ctx context.Context, text string) error {
	err := s.disp.Send(ctx, events.Event{
		Type: events.TypeConversationItemCreate,
		Item: &events.Item{
			Type: events.ItemMessage,
			Role: "user",
			Content: []events.ContentPart{
				{Type: events.ContentInputText, Text: text},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("session: send text: %w", err)
	}

	if err := s.CreateResponse(ctx); err != nil {
		return fmt.Errorf("session: request response: %w", err)
	}
	return nil
}

// CreateResponse asks the model to produce a response from the current
// conversation state.
func (s *Session) CreateResponse(ctx context.Context) error {
	return s.disp.Send(ctx, events.Event{Type: events.TypeResponseCreate})
}

// RefreshTools pulls the manager's merged tool catalog into the session's
// toolbox. The host calls it after each MCP server comes up, before
// re-advertising with UpdateSession.
func (s *Session) RefreshTools(ctx context.Context) {
	s.tb.Register(s.man.Tools(ctx)...)
}

// Tools returns the currently advertised tool catalog.
func (s *Session) Tools() []toolbox.Tool {
	return s.tb.Tools()
}

// UpdateSession pushes the session configuration and the advertised tool
// catalog to the server.
func (s *Session) UpdateSession(ctx context.Context) error {
	tools := s.tb.Tools()

	defs := make([]events.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, events.ToolDefinition{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	err := s.disp.Send(ctx, events.Event{
		Type: events.TypeSessionUpdate,
		Session: &events.Session{
			Model:        s.cfg.Model,
			Voice:        s.cfg.Voice,
			Instructions: s.cfg.Instructions,
			Modalities:   s.cfg.Modalities,
			Tools:        defs,
			ToolChoice:   "auto",
		},
	})
	if err != nil {
		return fmt.Errorf("session: update session: %w", err)
	}
	return nil
}

func (s *Session) onItemCreated(ctx context.Context, ev events.Event) error {
	if ev.Item == nil {
		return fmt.Errorf("session: %s without item", ev.Type)
	}

	if err := s.conv.Upsert(*ev.Item); err != nil {
		return fmt.Errorf("session: upsert item: %w", err)
	}

	// A function call arriving already completed carries its full
	// arguments, so it is runnable immediately.
	if ev.Item.IsFunctionCall() && ev.Item.Status == events.StatusCompleted {
		s.runTool(ctx, *ev.Item)
	}
	return nil
}

func (s *Session) onOutputItemAdded(_ context.Context, ev events.Event) error {
	if ev.Item == nil {
		return fmt.Errorf("session: %s without item", ev.Type)
	}

	if err := s.conv.Upsert(*ev.Item); err != nil {
		return fmt.Errorf("session: upsert item: %w", err)
	}
	return nil
}

func (s *Session) onOutputItemDone(ctx context.Context, ev events.Event) error {
	if ev.Item == nil {
		return fmt.Errorf("session: %s without item", ev.Type)
	}

	if err := s.conv.Upsert(*ev.Item); err != nil {
		return fmt.Errorf("session: upsert item: %w", err)
	}

	if ev.Item.IsFunctionCall() {
		s.runTool(ctx, *ev.Item)
	}
	return nil
}

func (s *Session) onDelta(_ context.Context, ev events.Event) error {
	if err := s.conv.AddDelta(ev.ItemID, ev.Delta); err != nil {
		// Deltas can race item creation on reconnect; drop rather than
		// poison the stream.
		s.log.Warn("session: dropped delta", "item_id", ev.ItemID, "err", err)
	}
	return nil
}

func (s *Session) onError(_ context.Context, ev events.Event) error {
	if ev.Error != nil {
		s.log.Error("session: server error", "code", ev.Error.Code, "message", ev.Error.Message)
	} else {
		s.log.Error("session: server error without detail")
	}
	return nil
}

// runTool executes a model function call through the MCP manager and, on
// success, reports the output and asks for a follow-up response. Any
// failure leaves the model's turn pending: no function_call_output is sent.
func (s *Session) runTool(ctx context.Context, item events.Item) {
	if s.executed[item.CallID] {
		return
	}
	s.executed[item.CallID] = true

	var args map[string]any
	if item.Arguments != "" {
		if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
			s.log.Error("session: invalid tool arguments",
				"tool", item.Name, "call_id", item.CallID, "err", err)
			return
		}
	}

	res, err := s.man.CallTool(ctx, item.Name, json.RawMessage(item.Arguments))
	if err != nil {
		s.log.Error("session: tool call failed",
			"tool", item.Name, "call_id", item.CallID, "err", err)
		return
	}

	if res.IsError {
		s.log.Error("session: tool reported error",
			"tool", item.Name, "call_id", item.CallID)
		return
	}

	if len(res.Content) == 0 {
		s.log.Error("session: tool returned no content",
			"tool", item.Name, "call_id", item.CallID)
		return
	}

	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		s.log.Error("session: tool returned non-text content",
			"tool", item.Name, "call_id", item.CallID)
		return
	}

	err = s.disp.Send(ctx, events.Event{
		Type: events.TypeConversationItemCreate,
		Item: &events.Item{
			Type:   events.ItemFunctionCallOutput,
			CallID: item.CallID,
			Output: tc.Text,
		},
	})
	if err != nil {
		s.log.Error("session: send tool output",
			"tool", item.Name, "call_id", item.CallID, "err", err)
		return
	}

	if err := s.disp.Send(ctx, events.Event{Type: events.TypeResponseCreate}); err != nil {
		s.log.Error("session: request follow-up response",
			"tool", item.Name, "call_id", item.CallID, "err", err)
	}
}
