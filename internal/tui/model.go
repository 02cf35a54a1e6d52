// Package tui is a terminal chat front end for the assistant.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Answerer turns a question into a display string.
type Answerer interface {
	Answer(ctx context.Context, query string) string
}

// Turn is one question and its reply.
type Turn struct {
	Question string
	Reply    string
}

// answerMsg carries a finished reply back into Update.
type answerMsg struct {
	question string
	reply    string
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	assistant Answerer
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	history   []Turn
	title     string
	status    string
	pending   bool
	ready     bool
}

// New creates a chat model. A non-positive timeout leaves questions unbounded.
func New(assistant Answerer, title string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the Constitution and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		assistant: assistant,
		timeout:   timeout,
		input:     ti,
		viewport:  viewport.New(0, 0),
		title:     title,
		status:    "Ready.",
	}
}

// History returns the completed turns.
func (m Model) History() []Turn { return m.history }

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // title, status, input frame, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		m.history = append(m.history, Turn{Question: msg.question, Reply: msg.reply})
		m.status = "Ready."
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			m.input.Reset()
			return m, m.ask(q)
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	assistant, timeout := m.assistant, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return answerMsg{question: q, reply: assistant.Answer(ctx, q)}
	}
}

// View renders the title, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := titleStyle.Render(m.title)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return title + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.history))
	m.viewport.GotoBottom()
}

func renderTranscript(history []Turn) string {
	if len(history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.Question))
		b.WriteString("\n")
		if strings.HasPrefix(t.Reply, "Error: ") {
			b.WriteString(errorStyle.Render(t.Reply))
		} else {
			b.WriteString(t.Reply)
		}
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
