package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnswerer struct {
	reply string
	got   []string
}

func (s *stubAnswerer) Answer(_ context.Context, q string) string {
	s.got = append(s.got, q)
	return s.reply
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestModel_AskAndReply(t *testing.T) {
	a := &stubAnswerer{reply: "Article 21 protects life and personal liberty."}
	m := sized(t, New(a, "Civic Assistant", 0))
	m = typeText(m, "What is Article 21?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value(), "input is cleared once the question is sent")

	msg := cmd()
	assert.Equal(t, []string{"What is Article 21?"}, a.got)

	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.pending)
	require.Len(t, m.History(), 1)
	assert.Equal(t, "What is Article 21?", m.History()[0].Question)
	assert.Equal(t, a.reply, m.History()[0].Reply)
	assert.Contains(t, m.View(), "personal liberty")
}

func TestModel_BlankInputIgnored(t *testing.T) {
	a := &stubAnswerer{}
	m := sized(t, New(a, "Civic Assistant", 0))
	m = typeText(m, "   ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).pending)
	assert.Empty(t, a.got)
}

func TestModel_NoSecondQuestionWhilePending(t *testing.T) {
	a := &stubAnswerer{reply: "ok"}
	m := sized(t, New(a, "Civic Assistant", 0))
	m = typeText(m, "first")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(next.(Model), "second")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestModel_Quit(t *testing.T) {
	m := New(&stubAnswerer{}, "Civic Assistant", 0)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_ViewBeforeSize(t *testing.T) {
	assert.Equal(t, "Loading...", New(&stubAnswerer{}, "t", 0).View())
}

func TestRenderTranscript(t *testing.T) {
	assert.Equal(t, "No questions yet.", renderTranscript(nil))

	out := renderTranscript([]Turn{
		{Question: "q1", Reply: "a1"},
		{Question: "q2", Reply: "Error: quota exceeded"},
	})
	assert.Contains(t, out, "q1")
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "Error: quota exceeded")
}
