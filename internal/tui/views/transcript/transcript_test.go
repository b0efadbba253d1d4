package transcript

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/api"
	"secondbrain/internal/chat"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
)

// MockSession implements Session for testing.
type MockSession struct {
	SendFunc func(ctx context.Context, content string) error
	State    chat.State
}

func (m *MockSession) SendMessage(ctx context.Context, content string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, content)
	}
	return nil
}

func (m *MockSession) Snapshot() chat.State {
	return m.State
}

func typeText(v *View, text string) *View {
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return v
}

func TestNewView(t *testing.T) {
	v := NewView(context.Background(), styles.DefaultStyles(), &MockSession{})

	require.NotNil(t, v)
	assert.True(t, v.Focused())
	assert.Contains(t, v.View(), "No messages yet")
}

func TestEnter_SendsAndClearsInput(t *testing.T) {
	var sent string
	session := &MockSession{
		SendFunc: func(ctx context.Context, content string) error {
			sent = content
			return nil
		},
	}
	v := NewView(context.Background(), styles.DefaultStyles(), session)
	v = typeText(v, "  what did I read?  ")

	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.Empty(t, v.Draft())

	msg := cmd()
	finished, ok := msg.(messages.SendFinished)
	require.True(t, ok)
	assert.NoError(t, finished.Err)
	assert.Equal(t, "what did I read?", sent)
}

func TestEnter_EmptyInputDoesNothing(t *testing.T) {
	v := NewView(context.Background(), styles.DefaultStyles(), &MockSession{})
	v = typeText(v, "   ")

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestEnter_IgnoredWhileBusy(t *testing.T) {
	session := &MockSession{}
	v := NewView(context.Background(), styles.DefaultStyles(), session)
	v = typeText(v, "question")

	session.State = chat.State{Busy: true}
	v, _ = v.Update(messages.SessionUpdated{})

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "question", v.Draft())
}

func TestSendFinished_FailureRestoresDraft(t *testing.T) {
	session := &MockSession{}
	v := NewView(context.Background(), styles.DefaultStyles(), session)

	session.State = chat.State{Err: "LLM unavailable"}
	v, _ = v.Update(messages.SendFinished{Content: "retry me", Err: errors.New("LLM unavailable")})

	assert.Equal(t, "retry me", v.Draft())
	assert.Contains(t, v.View(), "LLM unavailable")
}

func TestSendFinished_SuccessKeepsInputEmpty(t *testing.T) {
	v := NewView(context.Background(), styles.DefaultStyles(), &MockSession{})

	v, _ = v.Update(messages.SendFinished{Content: "done"})

	assert.Empty(t, v.Draft())
}

func TestSessionUpdated_RendersTranscript(t *testing.T) {
	session := &MockSession{}
	v := NewView(context.Background(), styles.DefaultStyles(), session)
	v.SetDimensions(100, 40)

	session.State = chat.State{
		ConversationID: "c1",
		Messages: []chat.Message{
			{Token: "u", Role: chat.RoleUser, Content: "what is in my notes?"},
			{Token: "a", Role: chat.RoleAssistant, State: chat.IdentityConfirmed, Content: "Groceries", Citations: []api.Citation{
				{Title: "Shopping list", SourceType: api.SourceText, TextSnippet: "eggs, milk"},
			}},
		},
	}
	v, _ = v.Update(messages.SessionUpdated{})

	out := v.View()
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "what is in my notes?")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "Shopping list")
	assert.Equal(t, "c1", v.State().ConversationID)
}

func TestSessionUpdated_StartsSpinnerWhenBusy(t *testing.T) {
	session := &MockSession{}
	v := NewView(context.Background(), styles.DefaultStyles(), session)

	session.State = chat.State{Busy: true, Messages: []chat.Message{
		{Token: "u", Role: chat.RoleUser, Content: "hi"},
		{Token: "a", Role: chat.RoleAssistant, Content: "partial answ"},
	}}
	v, cmd := v.Update(messages.SessionUpdated{})

	assert.NotNil(t, cmd)
	assert.Contains(t, v.View(), "partial answ")
	assert.Contains(t, v.View(), "waiting for the answer")
}
