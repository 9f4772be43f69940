package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/speaches-ai/realtime-console/pkg/events"
)

// programReadyMsg passes the *tea.Program to the model so it can start the
// bridge callbacks.
type programReadyMsg struct {
	program *tea.Program
}

// conversationChangedMsg signals that the mirrored conversation mutated and
// the transcript view must re-render.
type conversationChangedMsg struct{}

// serverEventMsg delivers an inbound server event from the bridge.
type serverEventMsg struct {
	ev events.Event
}

// clientEventMsg delivers an outbound client event from the bridge.
type clientEventMsg struct {
	ev events.Event
}

// sendCompleteMsg is returned by the tea.Cmd that sends a user turn.
type sendCompleteMsg struct {
	err error
}
