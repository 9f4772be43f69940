package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/speaches-ai/realtime-console/pkg/console"
)

// appState represents the application state machine.
type appState int

const (
	stateIdle appState = iota
	stateWaiting
)

// appModel is the root bubbletea model.
type appModel struct {
	ctx     context.Context
	con     *console.Console
	program *tea.Program

	transcript viewport.Model
	input      textarea.Model
	eventLog   []string

	state      appState
	verbose    bool
	stopBridge func()
	lastError  string
	width      int
	height     int
	ready      bool
}

func newAppModel(ctx context.Context, con *console.Console, verbose bool) appModel {
	input := textarea.New()
	input.Placeholder = "Type a message (enter to send, /help for commands)"
	input.ShowLineNumbers = false
	input.SetHeight(1)
	input.Focus()

	return appModel{
		ctx:     ctx,
		con:     con,
		input:   input,
		verbose: verbose,
		state:   stateIdle,
	}
}

func (m appModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case programReadyMsg:
		m.program = msg.program
		m.stopBridge = startBridge(msg.program, m.con)
		return m, nil

	case conversationChangedMsg:
		m.refreshTranscript()
		return m, nil

	case serverEventMsg:
		m.logEvent("←", msg)
		return m, nil

	case clientEventMsg:
		m.eventLog = append(m.eventLog, renderEventLine("→", msg.ev, m.width))
		m.trimEventLog()
		if m.verbose {
			m.refreshTranscript()
		}
		return m, nil

	case sendCompleteMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		m.state = stateIdle
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) View() string {
	if !m.ready {
		return "Connecting..."
	}

	parts := []string{m.transcript.View()}

	if m.lastError != "" {
		parts = append(parts, errorBlockStyle.Render("error: "+m.lastError))
	}

	parts = append(parts,
		inputStyle.Width(m.width-2).Render(m.input.View()),
		m.statusLine(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *appModel) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	initMarkdownRenderer(m.width - 4)

	inputHeight := m.input.Height() + 2
	transcriptHeight := max(m.height-inputHeight-2, 4)

	if !m.ready {
		m.transcript = viewport.New(m.width, transcriptHeight)
		m.ready = true
	} else {
		m.transcript.Width = m.width
		m.transcript.Height = transcriptHeight
	}

	m.input.SetWidth(m.width - 4)
	m.refreshTranscript()

	return m, nil
}

func (m *appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.stopBridge != nil {
			m.stopBridge()
		}
		return m, tea.Quit

	case "enter":
		return m.handleSubmit()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *appModel) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.lastError = ""

	switch text {
	case "/quit", "/exit":
		if m.stopBridge != nil {
			m.stopBridge()
		}
		return m, tea.Quit

	case "/log":
		m.verbose = !m.verbose
		m.refreshTranscript()
		return m, nil

	case "/help":
		m.lastError = ""
		m.eventLog = append(m.eventLog, dimStyle.Render(helpText()))
		m.refreshTranscript()
		return m, nil
	}

	m.state = stateWaiting

	sess := m.con.Session()
	ctx := m.ctx
	return m, func() tea.Msg {
		return sendCompleteMsg{err: sess.SendText(ctx, text)}
	}
}

func (m *appModel) logEvent(dir string, msg serverEventMsg) {
	m.eventLog = append(m.eventLog, renderEventLine(dir, msg.ev, m.width))
	m.trimEventLog()

	if msg.ev.Error != nil {
		m.lastError = msg.ev.Error.Message
	}

	if m.verbose {
		m.refreshTranscript()
	}
}

// trimEventLog bounds the verbose log so long sessions don't grow without
// limit.
func (m *appModel) trimEventLog() {
	const maxLogLines = 200
	if len(m.eventLog) > maxLogLines {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogLines:]
	}
}

func (m *appModel) refreshTranscript() {
	if !m.ready {
		return
	}

	content := renderItems(m.con.Conversation().Items(), m.width, m.verbose)

	if m.verbose && len(m.eventLog) > 0 {
		content += "\n\n" + dimStyle.Render("— events —") + "\n" + strings.Join(m.eventLog, "\n")
	}

	m.transcript.SetContent(content)
	m.transcript.GotoBottom()
}

func (m *appModel) statusLine() string {
	servers := m.con.Manager().Servers()
	tools := m.con.Session().Tools()

	var b strings.Builder
	b.WriteString(" ")
	if m.state == stateWaiting {
		b.WriteString("waiting · ")
	}
	if len(servers) == 0 {
		b.WriteString("no mcp servers")
	} else {
		b.WriteString(strings.Join(servers, ", "))
		fmt.Fprintf(&b, " · %d tools", len(tools))
	}
	if m.verbose {
		b.WriteString(" · verbose")
	}

	return statusStyle.Render(truncate(b.String(), max(m.width-1, 16)))
}

func helpText() string {
	return "Commands:\n" +
		"  /help    Show this help message\n" +
		"  /log     Toggle the protocol event log\n" +
		"  /quit    Exit\n\n" +
		"Shortcuts:\n" +
		"  Enter    Send message\n" +
		"  PgUp/Dn  Scroll transcript\n" +
		"  Ctrl+C   Exit"
}
