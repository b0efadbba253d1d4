package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"secondbrain/internal/api"
	"secondbrain/internal/logger"
)

var (
	// ErrEmptyMessage is returned when SendMessage is called with blank content
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy is returned when another send or load is still in flight
	ErrBusy = errors.New("another request is in progress")
)

// Roles of a conversation turn
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// IdentityState tells whether a message ID was assigned by the server
type IdentityState int

const (
	// IdentityPending means the ID is the client-generated token
	IdentityPending IdentityState = iota
	// IdentityConfirmed means the ID came from the server
	IdentityConfirmed
)

func (s IdentityState) String() string {
	if s == IdentityConfirmed {
		return "confirmed"
	}
	return "pending"
}

// Message is one turn of the active conversation
type Message struct {
	ID        string
	Token     string
	State     IdentityState
	Role      string
	Content   string
	Citations []api.Citation
	CreatedAt time.Time
}

// State is a point-in-time copy of the session
type State struct {
	ConversationID string
	Messages       []Message
	Busy           bool
	Err            string
}

// Backend is the part of the API adapter the session needs
type Backend interface {
	ChatStream(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) error
	GetConversation(ctx context.Context, id string) (*api.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Option configures a Session
type Option func(*Session)

// WithTimezone sets the IANA zone name sent with every chat request
func WithTimezone(tz string) Option {
	return func(s *Session) {
		s.timezone = tz
	}
}

// WithClock replaces time.Now for message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithListener registers a function called after every observable change
func WithListener(fn func()) Option {
	return func(s *Session) {
		s.listener = fn
	}
}

// Session owns the message list of the active conversation and drives the
// streaming protocol. It is safe for concurrent use.
type Session struct {
	backend  Backend
	timezone string
	now      func() time.Time

	mu             sync.Mutex
	listener       func()
	conversationID string
	messages       []Message
	busy           bool
	err            string
	// generation changes whenever the message list is replaced, so events
	// from a turn started before a clear or load are dropped
	generation int
}

// NewSession creates an empty session
func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		timezone: "UTC",
		now:      time.Now,
		messages: []Message{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetListener replaces the change listener
func (s *Session) SetListener(fn func()) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// turn is the client-side state of one streamed reply
type turn struct {
	generation int
	token      string
	content    strings.Builder
	citations  []api.Citation
	messageID  string
}

// SendMessage appends the user's message and an empty assistant reply, then
// streams the answer into that reply. On failure the reply is removed, the
// error recorded and returned; the user message stays.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}

	now := s.now()
	userToken := uuid.New().String()
	s.messages = append(s.messages, Message{
		ID:        userToken,
		Token:     userToken,
		State:     IdentityPending,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: now,
	})

	t := &turn{generation: s.generation, token: uuid.New().String()}
	s.messages = append(s.messages, Message{
		ID:        t.token,
		Token:     t.token,
		State:     IdentityPending,
		Role:      RoleAssistant,
		CreatedAt: now,
	})

	s.busy = true
	s.err = ""
	req := api.ChatRequest{
		Message:        content,
		ConversationID: s.conversationID,
		Timezone:       s.timezone,
	}
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.notify()
	}()

	err := s.stream(ctx, req, func(ev api.StreamEvent) {
		if s.apply(t, ev) {
			s.notify()
		}
	})
	if err != nil {
		s.fail(t, err)
		return err
	}

	s.finish(t)
	return nil
}

// stream runs the transport call, turning a panic into an error
func (s *Session) stream(ctx context.Context, req api.ChatRequest, onEvent api.StreamCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat stream panicked: %v", r)
		}
	}()
	return s.backend.ChatStream(ctx, req, onEvent)
}

// apply folds one event into the session and reports whether anything visible changed
func (s *Session) apply(t *turn, ev api.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.generation != s.generation {
		return false
	}

	switch ev.Type {
	case api.EventStart:
		if ev.ConversationID != "" && s.conversationID == "" {
			s.conversationID = ev.ConversationID
			return true
		}
	case api.EventCitations:
		t.citations = ev.Citations
	case api.EventToken:
		t.content.WriteString(ev.Token)
		if i := s.indexOf(t.token); i >= 0 && s.messages[i].Role == RoleAssistant {
			s.messages[i].Content = t.content.String()
			s.messages[i].Citations = cloneCitations(t.citations)
			return true
		}
	case api.EventDone:
		t.messageID = ev.MessageID
	default:
		logger.Debug("ignoring stream event %q", ev.Type)
	}
	return false
}

// finish writes the final content, citations and server identity into the reply
func (s *Session) finish(t *turn) {
	s.mu.Lock()
	if t.generation == s.generation {
		if i := s.indexOf(t.token); i >= 0 {
			msg := &s.messages[i]
			msg.Content = t.content.String()
			msg.Citations = cloneCitations(t.citations)
			if t.messageID != "" {
				msg.ID = t.messageID
				msg.State = IdentityConfirmed
			} else {
				logger.Debug("stream ended without a message id, keeping %s", t.token)
			}
		}
	}
	s.mu.Unlock()
}

// fail removes the in-flight reply and records err
func (s *Session) fail(t *turn, err error) {
	s.mu.Lock()
	if t.generation == s.generation {
		if i := s.indexOf(t.token); i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
		s.err = api.ErrorMessage(err, "Failed to send message")
	}
	s.mu.Unlock()
	logger.Debug("chat turn failed: %v", err)
}

// ClearMessages starts a fresh conversation context
func (s *Session) ClearMessages() {
	s.mu.Lock()
	s.messages = []Message{}
	s.conversationID = ""
	s.err = ""
	s.generation++
	s.mu.Unlock()
	s.notify()
}

// LoadConversation replaces the message list and conversation ID with the
// server's copy of conversation id
func (s *Session) LoadConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.err = ""
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.notify()
	}()

	conv, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.err = api.ErrorMessage(err, "Failed to load conversation")
		s.mu.Unlock()
		return err
	}

	messages := make([]Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, Message{
			ID:        m.ID,
			Token:     uuid.New().String(),
			State:     IdentityConfirmed,
			Role:      m.Role,
			Content:   m.Content,
			Citations: cloneCitations(m.Citations),
			CreatedAt: m.CreatedAt.Time,
		})
	}

	s.mu.Lock()
	s.messages = messages
	s.conversationID = conv.ID
	s.generation++
	s.mu.Unlock()
	return nil
}

// DeleteConversation deletes a conversation on the server. If it is the
// active one the session is cleared.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if err := s.backend.DeleteConversation(ctx, id); err != nil {
		s.mu.Lock()
		s.err = api.ErrorMessage(err, "Failed to delete conversation")
		s.mu.Unlock()
		s.notify()
		return err
	}

	s.mu.Lock()
	active := s.conversationID == id
	s.mu.Unlock()
	if active {
		s.ClearMessages()
	}
	return nil
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, len(s.messages))
	for i, m := range s.messages {
		m.Citations = cloneCitations(m.Citations)
		messages[i] = m
	}
	return State{
		ConversationID: s.conversationID,
		Messages:       messages,
		Busy:           s.busy,
		Err:            s.err,
	}
}

// Messages returns a copy of the message list
func (s *Session) Messages() []Message {
	return s.Snapshot().Messages
}

// ConversationID returns the active conversation, empty before the first reply
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Busy reports whether a send or load is in flight
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Err returns the last recorded error message
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError dismisses the recorded error
func (s *Session) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
	s.notify()
}

// indexOf finds a message by token (must be called with lock held)
func (s *Session) indexOf(token string) int {
	for i := range s.messages {
		if s.messages[i].Token == token {
			return i
		}
	}
	return -1
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func cloneCitations(in []api.Citation) []api.Citation {
	if in == nil {
		return nil
	}
	out := make([]api.Citation, len(in))
	copy(out, in)
	return out
}
