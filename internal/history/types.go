package history

import (
	"time"
)

// History is the on-disk record of recently used conversations
type History struct {
	Entries []Entry `json:"entries"`
}

// Entry is one conversation the user touched from this machine
type Entry struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	FirstUsed      time.Time `json:"first_used"`
	LastUsed       time.Time `json:"last_used"`
	Turns          int       `json:"turns"`
}

// Label returns the title, or the conversation id when there is none
func (e Entry) Label() string {
	if e.Title != "" {
		return e.Title
	}
	return e.ConversationID
}
