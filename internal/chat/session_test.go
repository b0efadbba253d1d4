package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/api"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	StreamFunc func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error
	GetFunc    func(ctx context.Context, id string) (*api.Conversation, error)
	DeleteFunc func(ctx context.Context, id string) error
}

func (m *mockBackend) ChatStream(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req, onEvent)
	}
	return nil
}

func (m *mockBackend) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBackend) DeleteConversation(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// replay returns a StreamFunc that emits events in order
func replay(events ...api.StreamEvent) func(context.Context, api.ChatRequest, api.StreamCallback) error {
	return func(_ context.Context, _ api.ChatRequest, onEvent api.StreamCallback) error {
		for _, ev := range events {
			onEvent(ev)
		}
		return nil
	}
}

var citationX = api.Citation{
	ChunkID:     "k1",
	DocumentID:  "d1",
	Title:       "Notes",
	SourceType:  api.SourcePDF,
	TextSnippet: "snippet",
}

func TestSendMessage_AppendsTurnBeforeNetworkResolves(t *testing.T) {
	var session *Session
	var during State

	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			during = session.Snapshot()
			return nil
		},
	}
	session = NewSession(backend)

	require.NoError(t, session.SendMessage(context.Background(), "hello"))

	require.Len(t, during.Messages, 2)
	assert.Equal(t, RoleUser, during.Messages[0].Role)
	assert.Equal(t, "hello", during.Messages[0].Content)
	assert.Equal(t, RoleAssistant, during.Messages[1].Role)
	assert.Empty(t, during.Messages[1].Content)
	assert.Empty(t, during.Messages[1].Citations)
	assert.True(t, during.Busy)

	assert.False(t, session.Busy())
}

func TestSendMessage_StreamProtocol(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: api.EventStart, ConversationID: "c1"},
			api.StreamEvent{Type: api.EventToken, Token: "Hel"},
			api.StreamEvent{Type: api.EventToken, Token: "lo"},
			api.StreamEvent{Type: api.EventCitations, Citations: []api.Citation{citationX}},
			api.StreamEvent{Type: api.EventDone, MessageID: "m1"},
		),
	}
	session := NewSession(backend)

	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	state := session.Snapshot()
	assert.Equal(t, "c1", state.ConversationID)
	require.Len(t, state.Messages, 2)

	last := state.Messages[1]
	assert.Equal(t, "Hello", last.Content)
	assert.Equal(t, []api.Citation{citationX}, last.Citations)
	assert.Equal(t, "m1", last.ID)
	assert.Equal(t, IdentityConfirmed, last.State)
	assert.Empty(t, state.Err)
	assert.False(t, state.Busy)
}

func TestSendMessage_TokensCarryLatestCitations(t *testing.T) {
	var session *Session
	var afterToken State

	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			onEvent(api.StreamEvent{Type: api.EventCitations, Citations: []api.Citation{citationX}})
			onEvent(api.StreamEvent{Type: api.EventToken, Token: "A"})
			afterToken = session.Snapshot()
			return nil
		},
	}
	session = NewSession(backend)

	require.NoError(t, session.SendMessage(context.Background(), "q"))

	assert.Equal(t, "A", afterToken.Messages[1].Content)
	assert.Equal(t, []api.Citation{citationX}, afterToken.Messages[1].Citations)
}

func TestSendMessage_RequestCarriesConversationAndTimezone(t *testing.T) {
	var requests []api.ChatRequest
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			requests = append(requests, req)
			onEvent(api.StreamEvent{Type: api.EventStart, ConversationID: "c1"})
			return nil
		},
	}
	session := NewSession(backend, WithTimezone("Europe/Berlin"))

	require.NoError(t, session.SendMessage(context.Background(), "first"))
	require.NoError(t, session.SendMessage(context.Background(), "second"))

	require.Len(t, requests, 2)
	assert.Empty(t, requests[0].ConversationID)
	assert.Equal(t, "c1", requests[1].ConversationID)
	assert.Equal(t, "Europe/Berlin", requests[1].Timezone)
}

func TestSendMessage_StartDoesNotOverrideExistingConversation(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: api.EventStart, ConversationID: "c1"},
		),
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "one"))

	backend.StreamFunc = replay(api.StreamEvent{Type: api.EventStart, ConversationID: "c2"})
	require.NoError(t, session.SendMessage(context.Background(), "two"))

	assert.Equal(t, "c1", session.ConversationID())
}

func TestSendMessage_FailureRollsBackAssistant(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: api.EventStart, ConversationID: "c1"},
			api.StreamEvent{Type: api.EventToken, Token: "ok"},
		),
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "first"))
	before := len(session.Messages())

	streamErr := &api.Error{StatusCode: 500, Detail: "LLM unavailable"}
	backend.StreamFunc = func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
		onEvent(api.StreamEvent{Type: api.EventToken, Token: "partial"})
		return streamErr
	}

	err := session.SendMessage(context.Background(), "second")

	require.Error(t, err)
	assert.ErrorIs(t, err, streamErr)

	state := session.Snapshot()
	require.Len(t, state.Messages, before+1)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Equal(t, "second", last.Content)
	assert.Equal(t, "LLM unavailable", state.Err)
	assert.False(t, state.Busy)
}

func TestSendMessage_TransportPanicReleasesBusy(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			panic("connection reset")
		},
	}
	session := NewSession(backend)

	err := session.SendMessage(context.Background(), "hi")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, session.Busy())
	assert.Len(t, session.Messages(), 1)
	assert.NotEmpty(t, session.Err())
}

func TestSendMessage_WithoutDoneKeepsProvisionalIdentity(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(api.StreamEvent{Type: api.EventToken, Token: "partial answer"}),
	}
	session := NewSession(backend)

	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	last := session.Messages()[1]
	assert.Equal(t, "partial answer", last.Content)
	assert.Equal(t, IdentityPending, last.State)
	assert.Equal(t, last.Token, last.ID)
	assert.Empty(t, session.Err())
}

func TestSendMessage_UnknownEventIgnored(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: "progress"},
			api.StreamEvent{Type: api.EventToken, Token: "x"},
		),
	}
	session := NewSession(backend)

	require.NoError(t, session.SendMessage(context.Background(), "hi"))
	assert.Equal(t, "x", session.Messages()[1].Content)
}

func TestSendMessage_EmptyContent(t *testing.T) {
	called := false
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			called = true
			return nil
		},
	}
	session := NewSession(backend)

	assert.ErrorIs(t, session.SendMessage(context.Background(), "   \n"), ErrEmptyMessage)
	assert.False(t, called)
	assert.Empty(t, session.Messages())
}

func TestSendMessage_BusyRejectsSecondSend(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			close(started)
			<-release
			return nil
		},
	}
	session := NewSession(backend)

	done := make(chan error, 1)
	go func() {
		done <- session.SendMessage(context.Background(), "first")
	}()
	<-started

	assert.ErrorIs(t, session.SendMessage(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, session.LoadConversation(context.Background(), "c1"), ErrBusy)
	assert.Len(t, session.Messages(), 2)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, session.Busy())
}

func TestSendMessage_ClearDuringStreamDropsLateEvents(t *testing.T) {
	var session *Session
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			session.ClearMessages()
			onEvent(api.StreamEvent{Type: api.EventStart, ConversationID: "stale"})
			onEvent(api.StreamEvent{Type: api.EventToken, Token: "late"})
			return errors.New("boom")
		},
	}
	session = NewSession(backend)

	require.Error(t, session.SendMessage(context.Background(), "hi"))

	state := session.Snapshot()
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.ConversationID)
	assert.Empty(t, state.Err)
}

func TestSendMessage_UsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	session := NewSession(&mockBackend{}, WithClock(func() time.Time { return fixed }))

	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	for _, m := range session.Messages() {
		assert.Equal(t, fixed, m.CreatedAt)
	}
}

func TestSendMessage_NotifiesListener(t *testing.T) {
	var calls atomic.Int32
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: api.EventToken, Token: "a"},
			api.StreamEvent{Type: api.EventToken, Token: "b"},
		),
	}
	session := NewSession(backend, WithListener(func() { calls.Add(1) }))

	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	// turn appended, two tokens, busy released
	assert.EqualValues(t, 4, calls.Load())
}

func TestClearMessages(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: func(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error {
			onEvent(api.StreamEvent{Type: api.EventStart, ConversationID: "c1"})
			return errors.New("boom")
		},
	}
	session := NewSession(backend)
	require.Error(t, session.SendMessage(context.Background(), "hi"))
	require.NotEmpty(t, session.Err())

	session.ClearMessages()

	state := session.Snapshot()
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.ConversationID)
	assert.Empty(t, state.Err)
}

func TestLoadConversation_ReplacesState(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	backend := &mockBackend{
		StreamFunc: replay(api.StreamEvent{Type: api.EventStart, ConversationID: "c-old"}),
		GetFunc: func(ctx context.Context, id string) (*api.Conversation, error) {
			assert.Equal(t, "c2", id)
			return &api.Conversation{
				ID: "c2",
				Messages: []api.Message{
					{ID: "m1", Role: RoleUser, Content: "question", CreatedAt: api.Timestamp{Time: created}},
					{ID: "m2", Role: RoleAssistant, Content: "answer", Citations: []api.Citation{citationX}},
				},
			}, nil
		},
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "old"))

	require.NoError(t, session.LoadConversation(context.Background(), "c2"))

	state := session.Snapshot()
	assert.Equal(t, "c2", state.ConversationID)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "m1", state.Messages[0].ID)
	assert.Equal(t, created, state.Messages[0].CreatedAt)
	assert.Equal(t, IdentityConfirmed, state.Messages[1].State)
	assert.Equal(t, []api.Citation{citationX}, state.Messages[1].Citations)
	assert.NotEmpty(t, state.Messages[1].Token)
	assert.False(t, state.Busy)
}

func TestLoadConversation_Failure(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(api.StreamEvent{Type: api.EventStart, ConversationID: "c1"}),
		GetFunc: func(ctx context.Context, id string) (*api.Conversation, error) {
			return nil, &api.Error{StatusCode: 404, Detail: "Conversation not found"}
		},
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "keep me"))

	err := session.LoadConversation(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	state := session.Snapshot()
	assert.Equal(t, "Conversation not found", state.Err)
	assert.Equal(t, "c1", state.ConversationID)
	assert.Len(t, state.Messages, 2)
	assert.False(t, state.Busy)
}

func TestDeleteConversation(t *testing.T) {
	var deleted []string
	backend := &mockBackend{
		StreamFunc: replay(api.StreamEvent{Type: api.EventStart, ConversationID: "c1"}),
		DeleteFunc: func(ctx context.Context, id string) error {
			deleted = append(deleted, id)
			return nil
		},
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	require.NoError(t, session.DeleteConversation(context.Background(), "other"))
	assert.Equal(t, "c1", session.ConversationID())

	require.NoError(t, session.DeleteConversation(context.Background(), "c1"))
	assert.Empty(t, session.ConversationID())
	assert.Empty(t, session.Messages())
	assert.Equal(t, []string{"other", "c1"}, deleted)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	backend := &mockBackend{
		StreamFunc: replay(
			api.StreamEvent{Type: api.EventCitations, Citations: []api.Citation{citationX}},
			api.StreamEvent{Type: api.EventToken, Token: "a"},
		),
	}
	session := NewSession(backend)
	require.NoError(t, session.SendMessage(context.Background(), "hi"))

	snap := session.Snapshot()
	snap.Messages[1].Content = "changed"
	snap.Messages[1].Citations[0].Title = "changed"

	again := session.Snapshot()
	assert.Equal(t, "a", again.Messages[1].Content)
	assert.Equal(t, "Notes", again.Messages[1].Citations[0].Title)
}
