package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/speaches-ai/realtime-console/pkg/console"
	"github.com/speaches-ai/realtime-console/pkg/events"
)

// startBridge forwards console activity to the bubbletea program. All
// callbacks only call p.Send() — they never touch model state directly.
// Returns a function that detaches the event observers.
func startBridge(p *tea.Program, c *console.Console) func() {
	c.Conversation().OnUpdate(func() {
		p.Send(conversationChangedMsg{})
	})

	removeAny := c.Dispatcher().HandleAny(func(_ context.Context, ev events.Event) error {
		p.Send(serverEventMsg{ev: ev})
		return nil
	})

	removeSent := c.Dispatcher().OnSent(func(ev events.Event) {
		p.Send(clientEventMsg{ev: ev})
	})

	return func() {
		removeAny()
		removeSent()
	}
}
